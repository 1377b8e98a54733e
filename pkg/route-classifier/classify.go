package routeclassifier

import "strings"

// Class is the handling category for a request path.
type Class int

const (
	// Page is the default class for anything not matched below.
	Page Class = iota
	// Media requests bypass the caching layer entirely.
	Media
	// API requests are handled network-first.
	API
	// StaticAsset requests are handled cache-first.
	StaticAsset
)

func (c Class) String() string {
	switch c {
	case Media:
		return "media"
	case API:
		return "api"
	case StaticAsset:
		return "static"
	default:
		return "page"
	}
}

// Table holds the ordered classification rule sets.
// It is read-only after construction and safe for concurrent use.
type Table struct {
	MediaExtensions []string `yaml:"mediaExtensions"`
	MediaPrefixes   []string `yaml:"mediaPrefixes"`
	APIPrefixes     []string `yaml:"apiPrefixes"`
	StaticPrefixes  []string `yaml:"staticPrefixes"`
	AssetExtensions []string `yaml:"assetExtensions"`
}

// Default returns the table matching the application's route layout:
// voice recordings under /media/, the JSON API under /api/, and
// collected assets under /static/.
func Default() Table {
	return Table{
		MediaExtensions: []string{".mp3", ".wav", ".ogg", ".webm", ".m4a", ".mp4"},
		MediaPrefixes:   []string{"/media/"},
		APIPrefixes:     []string{"/api/"},
		StaticPrefixes:  []string{"/static/"},
		AssetExtensions: []string{
			".js", ".css",
			".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
			".woff", ".woff2", ".ttf",
		},
	}
}

// Classify maps a request path to its handling class.
// The checks are ordered: media is exclusionary and must come first,
// then api, then static asset. A path under an api prefix ending in an
// asset extension is therefore still classified as api.
func (t Table) Classify(path string) Class {
	p := strings.ToLower(path)
	if hasAnyPrefix(p, t.MediaPrefixes) || hasAnySuffix(p, t.MediaExtensions) {
		return Media
	}
	if hasAnyPrefix(p, t.APIPrefixes) {
		return API
	}
	if hasAnyPrefix(p, t.StaticPrefixes) || hasAnySuffix(p, t.AssetExtensions) {
		return StaticAsset
	}
	return Page
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func hasAnySuffix(path string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
