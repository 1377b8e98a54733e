package offlineshell

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstallPrimesManifest(t *testing.T) {
	// the handler runs on server goroutines
	var mu sync.Mutex
	var paths []string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte("shell for " + r.URL.Path))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin.URL)

	require.NoError(t, worker.Install(context.Background()))

	for _, p := range []string{"/chat/", "/calendar/", "/static/manifest.json", "/static/offline.html"} {
		require.True(t, worker.cache.Has(worker.store, "GET "+p), "missing %s", p)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 4)
}

// One manifest entry failing must not prevent the rest from being
// primed.
func TestInstallPartialFailure(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/calendar/" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin.URL)

	require.NoError(t, worker.Install(context.Background()))

	require.True(t, worker.cache.Has(worker.store, "GET /chat/"))
	require.True(t, worker.cache.Has(worker.store, "GET /static/manifest.json"))
	require.True(t, worker.cache.Has(worker.store, "GET /static/offline.html"))
	require.False(t, worker.cache.Has(worker.store, "GET /calendar/"))
}

func TestInstallForwardsPrecacheHeader(t *testing.T) {
	var sawCookie atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawCookie.Store(r.Header.Get("Cookie"))
		w.Write([]byte("ok"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin.URL, func(c *Config) {
		c.Precache = []string{"/chat/"}
		c.PrecacheHeader = http.Header{"Cookie": {"sessionid=abc"}}
	})

	require.NoError(t, worker.Install(context.Background()))
	require.Equal(t, "sessionid=abc", sawCookie.Load())
}

// Activation drops stale stores with the worker's naming prefix only;
// the current store and unrelated stores survive.
func TestActivateDropsStaleVersionsOnly(t *testing.T) {
	worker := newTestWorker(t, offlineOrigin(t), func(c *Config) {
		c.Version = "v-current"
	})
	require.NoError(t, worker.cache.Put("offline-shell-v-old", "GET /", []byte("old")))
	require.NoError(t, worker.cache.Put("offline-shell-v-current", "GET /", []byte("current")))
	require.NoError(t, worker.cache.Put("unrelated-cache", "GET /", []byte("other")))

	require.False(t, worker.Active())
	require.NoError(t, worker.Activate(context.Background()))
	require.True(t, worker.Active())

	stores, err := worker.cache.Stores()
	require.NoError(t, err)
	sort.Strings(stores)
	require.Equal(t, []string{"offline-shell-v-current", "unrelated-cache"}, stores)
}
