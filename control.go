package offlineshell

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// controlMessage is a command from a foreground application context.
type controlMessage struct {
	Type string   `json:"type"`
	URLs []string `json:"urls"`
}

const (
	messageForceActivate = "force-activate"
	messagePreWarm       = "pre-warm"
)

// ControlHandler returns the control-plane router: cross-context
// commands, push and sync event injection, and metrics. Mount it next
// to the worker itself, outside the intercepted path space.
func (w *Worker) ControlHandler() http.Handler {
	r := chi.NewRouter()
	r.Post("/control", w.handleControlMessage)
	r.Post("/push", w.handlePushEvent)
	r.Post("/sync", w.handleSyncEvent)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(w.metrics.registry, promhttp.HandlerOpts{}))
	return r
}

// handleControlMessage accepts a structured command.
// A malformed body decodes to the zero message and falls through to a
// no-op: control messages never produce errors.
func (w *Worker) handleControlMessage(rw http.ResponseWriter, r *http.Request) {
	var msg controlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		w.log.Debug().Err(err).Msg("Malformed control message")
	}
	switch msg.Type {
	case messageForceActivate:
		// promote this instance now, skip waiting for older ones
		if err := w.Activate(r.Context()); err != nil {
			w.log.Error().Err(err).Msg("Forced activation failed")
		}
	case messagePreWarm:
		go w.warm(msg.URLs)
	default:
		w.log.Debug().Str("type", msg.Type).Msg("Ignoring unknown control message")
	}
	rw.WriteHeader(http.StatusAccepted)
}

// warm adds the given urls to the current store.
// It runs detached from the triggering message.
func (w *Worker) warm(urls []string) {
	for _, u := range urls {
		if err := w.precachePath(context.Background(), u); err != nil {
			w.log.Error().Err(err).Str("path", u).Msg("Could not pre-warm url")
		}
	}
}

func (w *Worker) handlePushEvent(rw http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		w.log.Debug().Err(err).Msg("Could not read push payload")
		payload = nil
	}
	// the event completes only after display has been attempted
	w.HandlePush(payload)
	rw.WriteHeader(http.StatusAccepted)
}

func (w *Worker) handleSyncEvent(rw http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if err := w.HandleSync(r.Context(), tag); err != nil {
		// signal the caller to retry the sync later
		w.log.Error().Err(err).Str("tag", tag).Msg("Sync replay failed")
		http.Error(rw, "sync failed", http.StatusInternalServerError)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}
