package offlineshell

import (
	"encoding/json"
	"io"
	"net/http"
)

// The fallback synthesizer manufactures substitute responses when the
// network and the cache both come up empty. Every strategy terminates
// in one of these, so the dispatcher always settles with a usable
// response.

// writeOfflineJSON answers an api request that cannot be served.
// The body is structured so the calling UI can show an offline banner.
func writeOfflineJSON(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(rw).Encode(map[string]interface{}{
		"error":   "You are offline and this content is not available",
		"offline": true,
	})
}

// offlineImageSVG is a labeled placeholder shown instead of a
// broken-image indicator.
const offlineImageSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="300" viewBox="0 0 400 300">
  <rect width="400" height="300" fill="#e9ecef"/>
  <text x="200" y="150" font-family="sans-serif" font-size="24" fill="#868e96" text-anchor="middle" dominant-baseline="middle">Offline</text>
</svg>`

func writeOfflineImage(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "image/svg+xml")
	rw.WriteHeader(http.StatusOK)
	io.WriteString(rw, offlineImageSVG)
}

func writeOfflineText(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(rw, "Offline")
}

// offlinePageHTML is the inline last-resort page, used only when the
// pre-cached offline document is itself missing.
const offlinePageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Offline</title>
<style>
  body { font-family: sans-serif; display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; background: #f8f9fa; color: #343a40; }
  main { text-align: center; }
  h1 { font-size: 1.5rem; }
  button { padding: .5rem 1.5rem; font-size: 1rem; border: none; border-radius: .25rem; background: #4263eb; color: white; cursor: pointer; }
</style>
</head>
<body>
<main>
  <h1>You are offline</h1>
  <p>This page is not available without a network connection.</p>
  <button onclick="location.reload()">Retry</button>
</main>
</body>
</html>`

func writeOfflinePage(rw http.ResponseWriter) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	rw.WriteHeader(http.StatusServiceUnavailable)
	io.WriteString(rw, offlinePageHTML)
}
