package offlineshell

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/offline-shell/offline-shell/cache"
	snapshot "github.com/offline-shell/offline-shell/pkg/response-snapshot"

	"github.com/rs/zerolog"
)

// newTestWorker builds a worker in front of the given origin url with
// an in-memory cache and silent logging.
func newTestWorker(t *testing.T, origin string, configure ...func(*Config)) *Worker {
	t.Helper()
	originURL, err := url.Parse(origin)
	if err != nil {
		t.Fatal(err)
	}
	logger := zerolog.Nop()
	config := Config{
		Cache:     cache.NewMemCache(),
		OriginURL: *originURL,
		Version:   "test",
		Logger:    &logger,
	}
	for _, c := range configure {
		c(&config)
	}
	return New(config)
}

// offlineOrigin returns a url nothing listens on.
func offlineOrigin(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.NotFoundHandler())
	origin := server.URL
	server.Close()
	return origin
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", msg)
}

// storedSnapshot serializes a synthetic response for seeding the cache.
func storedSnapshot(t *testing.T, status int, contentType, body string) []byte {
	t.Helper()
	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", contentType)
	rec.WriteHeader(status)
	rec.Body.WriteString(body)
	bts, err := snapshot.ResponseToBytes(rec.Result())
	if err != nil {
		t.Fatal(err)
	}
	return bts
}

func TestDispatcherPassesThroughWrites(t *testing.T) {
	var sawMethod atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawMethod.Store(r.Method)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin.URL)

	rr := httptest.NewRecorder()
	worker.ServeHTTP(rr, httptest.NewRequest("POST", "/api/voice/chat/send/", strings.NewReader("{}")))

	if method := sawMethod.Load(); method != "POST" {
		t.Fatalf("Origin saw method %q", method)
	}
	if rr.Code != http.StatusCreated {
		t.Fatalf("Status is %d", rr.Code)
	}
	if worker.cache.Has(worker.store, "POST /api/voice/chat/send/") {
		t.Fatal("Write request was cached")
	}
}

func TestDispatcherMediaBypass(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") == "" {
			t.Error("Range header not forwarded")
		}
		w.Header().Set("Content-Range", "bytes 0-3/1000")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("data"))
	}))
	defer origin.Close()
	worker := newTestWorker(t, origin.URL)

	req := httptest.NewRequest("GET", "/media/voice_recordings/rec.webm", nil)
	req.Header.Set("Range", "bytes=0-3")
	rr := httptest.NewRecorder()
	worker.ServeHTTP(rr, req)

	if rr.Code != http.StatusPartialContent {
		t.Fatalf("Status is %d", rr.Code)
	}
	if rr.Body.String() != "data" {
		t.Fatalf("Body is %s", rr.Body.String())
	}
	if worker.cache.Has(worker.store, "GET /media/voice_recordings/rec.webm") {
		t.Fatal("Media request was cached")
	}
}

// settleRecorder tracks whether a handler actually committed a status,
// since ResponseRecorder defaults Code to 200 either way.
type settleRecorder struct {
	*httptest.ResponseRecorder
	wroteHeader bool
}

func (s *settleRecorder) WriteHeader(statusCode int) {
	s.wroteHeader = true
	s.ResponseRecorder.WriteHeader(statusCode)
}

func (s *settleRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.wroteHeader = true
	}
	return s.ResponseRecorder.Write(b)
}

func TestDispatcherAlwaysSettles(t *testing.T) {
	// everything offline, nothing cached: every classified request
	// must still resolve to a usable response
	worker := newTestWorker(t, offlineOrigin(t))
	for _, path := range []string{"/api/voice/requests/", "/static/app.js", "/chat/"} {
		rr := &settleRecorder{ResponseRecorder: httptest.NewRecorder()}
		worker.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		if !rr.wroteHeader {
			t.Fatalf("No response written for %s", path)
		}
		if body, err := io.ReadAll(rr.Result().Body); err != nil || len(body) == 0 {
			t.Fatalf("Empty body for %s", path)
		}
	}
}
