package offlineshell

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/offline-shell/offline-shell/cache"
	routeclassifier "github.com/offline-shell/offline-shell/pkg/route-classifier"

	"github.com/rs/zerolog"
)

// cacheNamePrefix scopes store names owned by this worker.
// Activation only ever drops stores carrying this prefix, so unrelated
// stores sharing the same provider are left alone.
const cacheNamePrefix = "offline-shell-"

type Config struct {
	// Storage for cache entries.
	Cache cache.CacheProvider
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	OriginHost string
	// Build identifier of the deployed application.
	// The current cache store is named after it; deploying a new
	// version and activating evicts every older store.
	Version string
	// Shell asset paths primed into the cache on install.
	Precache []string
	// Headers attached to install-time and pre-warm fetches,
	// standing in for same-origin credentials.
	PrecacheHeader http.Header
	// Path of the offline fallback document served for uncached pages.
	OfflinePath string
	// Primary landing route, the notification click default target.
	LandingPath string
	// Route classification table. The default table is used if nil.
	Routes *routeclassifier.Table
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
	// Notification display surface. Logged-only if nil.
	Notifier Notifier
	// Registry of open application instances. Empty in-memory
	// registry if nil.
	Clients ClientRegistry
	// Deferred offline-action queue. No-op if nil.
	SyncQueue SyncQueue
}

// Worker is the request-interception layer.
// It implements http.Handler and sits in front of the origin: every
// request is classified and routed to a caching strategy, or passed
// through untouched.
type Worker struct {
	cache          cache.CacheProvider
	store          string
	origin         url.URL
	hostHeader     string
	routes         routeclassifier.Table
	precache       []string
	precacheHeader http.Header
	offlinePath    string
	landingPath    string
	log            zerolog.Logger
	client         http.Client
	passthrough    httputil.ReverseProxy
	notifier       Notifier
	clients        ClientRegistry
	syncQueue      SyncQueue
	metrics        *workerMetrics
	active         uint32
}

// New initializes the worker instance.
// It does not touch the cache store; call Install and Activate to run
// the lifecycle.
func New(config Config) *Worker {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	version := config.Version
	if version == "" {
		version = "dev"
	}
	store := cacheNamePrefix + version

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Str("store", store).
		Logger()

	w := &Worker{
		cache:          config.Cache,
		store:          store,
		origin:         config.OriginURL,
		precache:       config.Precache,
		precacheHeader: config.PrecacheHeader,
		offlinePath:    config.OfflinePath,
		landingPath:    config.LandingPath,
		log:            logger,
		notifier:       config.Notifier,
		clients:        config.Clients,
		syncQueue:      config.SyncQueue,
		metrics:        newWorkerMetrics(),
		client: http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	w.routes = routeclassifier.Default()
	if config.Routes != nil {
		w.routes = *config.Routes
	}
	if len(w.precache) == 0 {
		w.precache = []string{"/chat/", "/calendar/", "/static/manifest.json", "/static/offline.html"}
	}
	if w.offlinePath == "" {
		w.offlinePath = "/static/offline.html"
	}
	if w.landingPath == "" {
		w.landingPath = "/chat/"
	}
	if w.notifier == nil {
		w.notifier = logNotifier{logger}
	}
	if w.clients == nil {
		w.clients = NewMemoryClients()
	}
	if w.syncQueue == nil {
		w.syncQueue = noopSyncQueue{logger}
	}

	host := config.OriginURL.Host
	hostHeader := host
	transport := http.DefaultTransport
	if config.OriginHost != "" {
		hostHeader = config.OriginHost
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				ServerName: config.OriginHost,
			},
		}
	}
	w.hostHeader = hostHeader
	w.client.Transport = transport

	w.passthrough = httputil.ReverseProxy{
		Director:  createDirector(config.OriginURL.Scheme, host, hostHeader),
		Transport: transport,
	}

	return w
}

// Store returns the name of the current cache store.
func (w *Worker) Store() string {
	return w.store
}

// ServeHTTP implements the http.Handler interface.
// It is the single entry point for request interception: every request
// resolves to exactly one strategy or an explicit pass-through.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	// anything but a read goes straight to the origin
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.finish(r, "passthrough", outcomePassthrough)
		w.passthrough.ServeHTTP(rw, r)
		return
	}
	class := w.routes.Classify(r.URL.Path)
	switch class {
	case routeclassifier.Media:
		// media bypasses the layer so range requests and streaming
		// behave exactly as the transport provides
		w.finish(r, class.String(), outcomePassthrough)
		w.passthrough.ServeHTTP(rw, r)
	case routeclassifier.API:
		w.networkFirst(rw, r)
	case routeclassifier.StaticAsset:
		w.cacheFirst(rw, r)
	default:
		w.pageWithFallback(rw, r)
	}
}

// finish records the outcome of a dispatched request.
func (w *Worker) finish(r *http.Request, class, outcome string) {
	w.metrics.request(class, outcome)
	w.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("class", class).
		Str("outcome", outcome).
		Msg("Sending response to client")
}

func createDirector(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}

// send writes the given response to the client.
func (w *Worker) send(rw http.ResponseWriter, res *http.Response) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(rw.Header(), res.Header)
	rw.WriteHeader(res.StatusCode)
	if res.Body == nil {
		return
	}
	bytesWritten, err := io.Copy(rw, res.Body)
	if err != nil {
		w.log.Error().Err(err).Msg("Could not write response body to client")
	}
	w.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
