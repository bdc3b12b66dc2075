package playlist

import (
	"path/filepath"
	"strings"
)

// Track is an entry of the playlist. Its identity is Path.
type Track struct {
	Path           string   `json:"path"`
	DisplayName    string   `json:"displayName"`
	Extension      string   `json:"extension"`
	CachedDuration *float64 `json:"cachedDuration,omitempty"`
}

// NewTrack builds a Track for a file path: DisplayName is the base name and
// Extension the suffix without the dot.
func NewTrack(path string) Track {
	return Track{
		Path:        path,
		DisplayName: filepath.Base(path),
		Extension:   strings.TrimPrefix(filepath.Ext(path), "."),
	}
}

// Duration returns the cached duration in seconds, if known.
func (t Track) Duration() (float64, bool) {
	if t.CachedDuration == nil {
		return 0, false
	}
	return *t.CachedDuration, true
}

func (t Track) clone() Track {
	if t.CachedDuration != nil {
		d := *t.CachedDuration
		t.CachedDuration = &d
	}
	return t
}
