package offlineshell

import (
	"context"
	"net/http"
	"path"
	"strings"

	snapshot "github.com/offline-shell/offline-shell/pkg/response-snapshot"
)

const (
	outcomeNetwork     = "network"
	outcomeCache       = "cache"
	outcomeFallback    = "fallback"
	outcomePassthrough = "passthrough"
)

// cacheKey identifies a stored response within the current store.
// There is no Vary handling: one variant per method and URI.
func cacheKey(r *http.Request) string {
	return r.Method + " " + r.URL.RequestURI()
}

// fetch forwards the intercepted request to the origin.
// A returned error is a transport failure; HTTP error statuses come
// back as regular responses.
func (w *Worker) fetch(r *http.Request) (*http.Response, error) {
	req := r.Clone(r.Context())
	req.URL.Scheme = w.origin.Scheme
	req.URL.Host = w.origin.Host
	// address the origin's vhost, not the host the client asked for
	req.Host = w.hostHeader
	req.RequestURI = ""
	return w.client.Do(req)
}

// networkFirst handles api requests: the live response wins, the cache
// is the fallback, and a synthesized JSON error is the last resort.
func (w *Worker) networkFirst(rw http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	res, err := w.fetch(r)
	if err == nil {
		w.finish(r, "api", outcomeNetwork)
		if isCacheable(res) {
			w.storeAndSend(rw, res, key)
		} else {
			// error statuses pass through verbatim, uncached
			w.send(rw, res)
		}
		return
	}
	w.log.Debug().Err(err).Str("key", key).Msg("Network failed, trying cache")
	if bts, ok := w.cached(key); ok && w.sendStored(rw, bts) {
		w.finish(r, "api", outcomeCache)
		return
	}
	w.finish(r, "api", outcomeFallback)
	writeOfflineJSON(rw)
}

// cacheFirst handles static assets: serve from cache and revalidate in
// the background (stale-while-revalidate), fetch on a miss, and
// synthesize a placeholder when both fail.
func (w *Worker) cacheFirst(rw http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	if bts, ok := w.cached(key); ok {
		if w.sendStored(rw, bts) {
			w.finish(r, "static", outcomeCache)
			// detach from the request context so the revalidation
			// outlives the response
			go w.revalidate(r.Clone(context.Background()), key)
			return
		}
	}
	res, err := w.fetch(r)
	if err == nil {
		w.finish(r, "static", outcomeNetwork)
		if isCacheable(res) {
			w.storeAndSend(rw, res, key)
		} else {
			w.send(rw, res)
		}
		return
	}
	w.log.Debug().Err(err).Str("key", key).Msg("Network failed for asset")
	w.finish(r, "static", outcomeFallback)
	if isImageRequest(r) {
		writeOfflineImage(rw)
	} else {
		writeOfflineText(rw)
	}
}

// pageWithFallback handles navigations: network first, then the cached
// page, then the cached offline document, then an inline offline page.
func (w *Worker) pageWithFallback(rw http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	res, err := w.fetch(r)
	if err == nil {
		w.finish(r, "page", outcomeNetwork)
		if isCacheable(res) {
			w.storeAndSend(rw, res, key)
		} else {
			w.send(rw, res)
		}
		return
	}
	w.log.Debug().Err(err).Str("key", key).Msg("Network failed, trying cached page")
	if bts, ok := w.cached(key); ok && w.sendStored(rw, bts) {
		w.finish(r, "page", outcomeCache)
		return
	}
	if bts, ok := w.cached("GET " + w.offlinePath); ok && w.sendStored(rw, bts) {
		w.finish(r, "page", outcomeCache)
		return
	}
	w.finish(r, "page", outcomeFallback)
	writeOfflinePage(rw)
}

// revalidate refreshes a cache entry after it has been served.
// Failures are swallowed: the client already has its response.
func (w *Worker) revalidate(r *http.Request, key string) {
	res, err := w.fetch(r)
	if err != nil {
		w.log.Trace().Err(err).Str("key", key).Msg("Revalidation fetch failed")
		return
	}
	defer res.Body.Close()
	if !isSuccess(res.StatusCode) {
		return
	}
	bts, err := snapshot.ResponseToBytes(res)
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not serialize revalidated response")
		return
	}
	if err := w.cache.Put(w.store, key, bts); err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
	}
	w.log.Trace().Str("key", key).Msg("Revalidated cache entry")
}

// storeAndSend returns the response to the client and stores a copy in
// the current store. The write happens in a goroutine so it never
// delays the response.
func (w *Worker) storeAndSend(rw http.ResponseWriter, res *http.Response, key string) {
	bts, err := snapshot.ResponseToBytes(res)
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not serialize response")
		w.send(rw, res)
		return
	}
	go func() {
		if err := w.cache.Put(w.store, key, bts); err != nil {
			w.log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		}
	}()
	w.send(rw, res)
}

// cached reads an entry from the current store.
// Storage errors count as a miss.
func (w *Worker) cached(key string) ([]byte, bool) {
	bts, ok, err := w.cache.Get(w.store, key)
	if err != nil {
		w.log.Error().Err(err).Str("key", key).Msg("Could not retrieve from cache")
		return nil, false
	}
	return bts, ok
}

// sendStored writes a stored entry to the client.
// It reports false if the entry cannot be deserialized, in which case
// nothing has been written yet.
func (w *Worker) sendStored(rw http.ResponseWriter, bts []byte) bool {
	res, err := snapshot.BytesToResponse(bts)
	if err != nil {
		w.log.Error().Err(err).Msg("Could not create response from cache entry")
		return false
	}
	w.send(rw, res)
	return true
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// isCacheable reports whether a response may be stored. Only full,
// successful GET responses are kept: partial content would later be
// served as the whole resource, and HEAD snapshots carry headers for a
// body they do not contain.
func isCacheable(res *http.Response) bool {
	if !isSuccess(res.StatusCode) || res.StatusCode == http.StatusPartialContent {
		return false
	}
	return res.Request == nil || res.Request.Method == http.MethodGet
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".svg":  true,
	".ico":  true,
	".webp": true,
}

// isImageRequest tells whether the client was asking for an image, so
// the offline fallback can be a visible placeholder instead of a
// broken-image indicator.
func isImageRequest(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Dest") == "image" {
		return true
	}
	if strings.HasPrefix(r.Header.Get("Accept"), "image/") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(r.URL.Path))]
}
