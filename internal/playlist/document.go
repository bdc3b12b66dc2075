package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrMalformed is wrapped by every document decoding failure.
var ErrMalformed = errors.New("playlist: malformed document")

// Encode serializes tracks as the playlist document: a JSON array of track
// records in list order.
func Encode(tracks []Track) ([]byte, error) {
	if tracks == nil {
		tracks = []Track{}
	}
	return json.MarshalIndent(tracks, "", "  ")
}

// Decode parses a playlist document. Records missing a display name or
// extension get them derived from the path. Any invalid record fails the
// whole document.
func Decode(data []byte) ([]Track, error) {
	var tracks []Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i := range tracks {
		t := &tracks[i]
		if strings.TrimSpace(t.Path) == "" {
			return nil, fmt.Errorf("%w: entry %d has no path", ErrMalformed, i)
		}
		if t.CachedDuration != nil && *t.CachedDuration < 0 {
			return nil, fmt.Errorf("%w: entry %d has negative duration", ErrMalformed, i)
		}
		if t.DisplayName == "" {
			t.DisplayName = filepath.Base(t.Path)
		}
		if t.Extension == "" {
			t.Extension = strings.TrimPrefix(filepath.Ext(t.Path), ".")
		}
	}
	return tracks, nil
}
