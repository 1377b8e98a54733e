package offlineshell

import "github.com/prometheus/client_golang/prometheus"

// workerMetrics holds per-worker counters on an isolated registry, so
// multiple workers can live in one process.
type workerMetrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	precacheFailures prometheus.Counter
}

func newWorkerMetrics() *workerMetrics {
	m := &workerMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offline_shell",
			Name:      "requests_total",
			Help:      "Intercepted requests by route class and outcome.",
		}, []string{"class", "outcome"}),
		precacheFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "offline_shell",
			Name:      "precache_failures_total",
			Help:      "Shell assets that could not be primed into the cache.",
		}),
	}
	m.registry.MustRegister(m.requests, m.precacheFailures)
	return m
}

func (m *workerMetrics) request(class, outcome string) {
	m.requests.WithLabelValues(class, outcome).Inc()
}

func (m *workerMetrics) precacheFailure() {
	m.precacheFailures.Inc()
}
