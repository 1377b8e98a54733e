package offlineshell

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	snapshot "github.com/offline-shell/offline-shell/pkg/response-snapshot"
)

// Install primes the current cache store with the shell asset manifest.
// Per-asset failures are logged and skipped: a partially primed cache
// is still usable, so Install never fails on a bad manifest entry.
func (w *Worker) Install(ctx context.Context) error {
	w.log.Info().Msgf("Priming cache store with %d shell assets", len(w.precache))
	for _, p := range w.precache {
		if err := w.precachePath(ctx, p); err != nil {
			w.metrics.precacheFailure()
			w.log.Error().Err(err).Str("path", p).Msg("Could not pre-cache shell asset")
		}
	}
	return ctx.Err()
}

// precachePath fetches a single path from the origin and stores it.
// It is shared by Install and the pre-warm control message.
func (w *Worker) precachePath(ctx context.Context, p string) error {
	res, err := w.fetchPath(ctx, p)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if !isSuccess(res.StatusCode) {
		return fmt.Errorf("origin returned %d for %s", res.StatusCode, p)
	}
	bts, err := snapshot.ResponseToBytes(res)
	if err != nil {
		return err
	}
	return w.cache.Put(w.store, "GET "+p, bts)
}

// fetchPath requests a path from the origin outside of any intercepted
// request, attaching the configured pre-cache headers.
func (w *Worker) fetchPath(ctx context.Context, p string) (*http.Response, error) {
	rel, err := url.Parse(p)
	if err != nil {
		return nil, err
	}
	target := w.origin.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Host = w.hostHeader
	for name, values := range w.precacheHeader {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	return w.client.Do(req)
}

// Activate drops every stale store owned by this worker and promotes
// the instance to active. Stores outside the worker's naming
// convention are never touched. Stale stores are dropped concurrently.
func (w *Worker) Activate(ctx context.Context) error {
	stores, err := w.cache.Stores()
	if err != nil {
		w.log.Error().Err(err).Msg("Could not enumerate cache stores")
		return err
	}
	var wg sync.WaitGroup
	for _, store := range stores {
		if store == w.store || !strings.HasPrefix(store, cacheNamePrefix) {
			continue
		}
		wg.Add(1)
		go func(store string) {
			defer wg.Done()
			w.log.Info().Str("stale", store).Msg("Dropping stale cache store")
			if err := w.cache.Drop(store); err != nil {
				w.log.Error().Err(err).Str("stale", store).Msg("Could not drop stale cache store")
			}
		}(store)
	}
	wg.Wait()
	atomic.StoreUint32(&w.active, 1)
	w.log.Info().Msg("Worker active, controlling traffic immediately")
	return ctx.Err()
}

// Active reports whether activation has completed.
func (w *Worker) Active() bool {
	return atomic.LoadUint32(&w.active) != 0
}
