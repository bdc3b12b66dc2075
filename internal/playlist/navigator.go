// Package playlist holds the ordered track list, its navigation rules and
// the playlist document format.
package playlist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/echoplayer/echoplayer-go/internal/decode"
	"github.com/echoplayer/echoplayer-go/internal/store"
)

// StoreKey is the durable store key holding the last-session playlist.
const StoreKey = "lastPlaybackList"

// FileExtension is the extension of playlist documents.
const FileExtension = "eplist"

var ErrInvalidIndex = errors.New("playlist: index out of range")

// IsMedia reports whether path has a supported media extension.
func IsMedia(path string) bool {
	return decode.Supported(filepath.Ext(path))
}

// IsPlaylistFile reports whether path names a playlist document.
func IsPlaylistFile(path string) bool {
	return extOf(path) == FileExtension
}

func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

type Option func(*Navigator)

func WithLogger(l zerolog.Logger) Option {
	return func(n *Navigator) { n.log = l }
}

// Navigator owns the playlist. Every mutation is written to the store; a
// store failure is returned but the in-memory list keeps the mutation.
// A Navigator is not safe for concurrent use.
type Navigator struct {
	store  store.Store
	log    zerolog.Logger
	tracks []Track
}

// NewNavigator returns an empty navigator persisting to s. A nil s disables
// persistence.
func NewNavigator(s store.Store, opts ...Option) *Navigator {
	n := &Navigator{store: s, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Tracks returns a copy of the list.
func (n *Navigator) Tracks() []Track {
	out := make([]Track, len(n.tracks))
	for i, t := range n.tracks {
		out[i] = t.clone()
	}
	return out
}

func (n *Navigator) Len() int { return len(n.tracks) }

// IndexOf returns the position of path, or -1.
func (n *Navigator) IndexOf(path string) int {
	return slices.IndexFunc(n.tracks, func(t Track) bool { return t.Path == path })
}

// Track returns the entry for path.
func (n *Navigator) Track(path string) (Track, bool) {
	i := n.IndexOf(path)
	if i < 0 {
		return Track{}, false
	}
	return n.tracks[i].clone(), true
}

// First returns the head of the list.
func (n *Navigator) First() (Track, bool) {
	if len(n.tracks) == 0 {
		return Track{}, false
	}
	return n.tracks[0].clone(), true
}

// Next returns the entry after current, wrapping at the end. It reports
// false if the list is empty or current is not in it.
func (n *Navigator) Next(current string) (Track, bool) {
	return n.step(current, 1)
}

// Previous returns the entry before current, wrapping at the start.
func (n *Navigator) Previous(current string) (Track, bool) {
	return n.step(current, -1)
}

func (n *Navigator) step(current string, delta int) (Track, bool) {
	size := len(n.tracks)
	i := n.IndexOf(current)
	if size == 0 || i < 0 {
		return Track{}, false
	}
	return n.tracks[(i+delta+size)%size].clone(), true
}

// Add appends the media files named by paths, expanding directories
// recursively in lexical order. Paths already present are skipped. A playlist
// document named directly replaces the current list with its contents; media
// named in the same call is appended after the replacement.
// Paths that cannot be read are reported in the returned error while the rest
// are still added. It returns the number of tracks appended.
func (n *Navigator) Add(paths ...string) (int, error) {
	var (
		errs     []error
		pending  []string
		replaced bool
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			found, err := scanDir(p)
			pending = append(pending, found...)
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		switch {
		case IsPlaylistFile(p):
			tracks, err := readDocument(p)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			n.tracks = nil
			n.merge(tracks)
			replaced = true
		case IsMedia(p):
			pending = append(pending, p)
		default:
			n.log.Debug().Str("path", p).Msg("skipping unsupported file")
		}
	}
	added := 0
	for _, p := range pending {
		if n.appendPath(p) {
			added++
		}
	}
	if added > 0 || replaced {
		errs = append(errs, n.persist())
	}
	return added, errors.Join(errs...)
}

// scanDir lists the media files under root in lexical order.
func scanDir(root string) ([]string, error) {
	var (
		errs  []error
		found []string
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err)
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsMedia(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	return found, errors.Join(errs...)
}

func (n *Navigator) appendPath(path string) bool {
	if n.IndexOf(path) >= 0 {
		return false
	}
	n.tracks = append(n.tracks, NewTrack(path))
	return true
}

// merge appends tracks not already present. On a path collision the
// existing entry is kept; it only adopts the incoming duration if it has
// none of its own.
func (n *Navigator) merge(tracks []Track) {
	for _, t := range tracks {
		if i := n.IndexOf(t.Path); i >= 0 {
			if n.tracks[i].CachedDuration == nil && t.CachedDuration != nil {
				d := *t.CachedDuration
				n.tracks[i].CachedDuration = &d
			}
			continue
		}
		n.tracks = append(n.tracks, t.clone())
	}
}

// Reorder moves the entries at indices so they sit, in their original
// relative order, before the entry that was at dest. dest may equal Len to
// move to the end.
func (n *Navigator) Reorder(indices []int, dest int) error {
	if dest < 0 || dest > len(n.tracks) {
		return fmt.Errorf("%w: destination %d", ErrInvalidIndex, dest)
	}
	moving := make([]bool, len(n.tracks))
	for _, i := range indices {
		if i < 0 || i >= len(n.tracks) {
			return fmt.Errorf("%w: %d", ErrInvalidIndex, i)
		}
		moving[i] = true
	}
	var moved, kept []Track
	insert := 0
	for i, t := range n.tracks {
		if moving[i] {
			moved = append(moved, t)
			continue
		}
		if i < dest {
			insert++
		}
		kept = append(kept, t)
	}
	if len(moved) == 0 {
		return nil
	}
	n.tracks = slices.Concat(kept[:insert], moved, kept[insert:])
	return n.persist()
}

// Clear empties the list.
func (n *Navigator) Clear() error {
	n.tracks = nil
	return n.persist()
}

// SetDuration records the duration of path in seconds.
func (n *Navigator) SetDuration(path string, seconds float64) error {
	i := n.IndexOf(path)
	if i < 0 {
		return nil
	}
	if d := n.tracks[i].CachedDuration; d != nil && *d == seconds {
		return nil
	}
	n.tracks[i].CachedDuration = &seconds
	return n.persist()
}

// SaveFile writes the list as a playlist document. The file is replaced
// atomically.
func (n *Navigator) SaveFile(path string) error {
	data, err := Encode(n.tracks)
	if err != nil {
		return err
	}
	if err := store.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("playlist: save %s: %w", path, err)
	}
	return nil
}

// LoadFile merges the playlist document at path into the list. Nothing is
// merged if the document cannot be read or parsed.
func (n *Navigator) LoadFile(path string) error {
	tracks, err := readDocument(path)
	if err != nil {
		return err
	}
	n.merge(tracks)
	return n.persist()
}

// Restore merges the last-session list from the store.
func (n *Navigator) Restore() error {
	if n.store == nil {
		return nil
	}
	data, ok, err := n.store.Get(StoreKey)
	if err != nil {
		return fmt.Errorf("playlist: restore: %w", err)
	}
	if !ok {
		return nil
	}
	tracks, err := Decode(data)
	if err != nil {
		return fmt.Errorf("playlist: restore: %w", err)
	}
	n.merge(tracks)
	n.log.Debug().Int("tracks", len(n.tracks)).Msg("playlist restored")
	return nil
}

func readDocument(path string) ([]Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("playlist: load %s: %w", path, err)
	}
	tracks, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("playlist: load %s: %w", path, err)
	}
	return tracks, nil
}

func (n *Navigator) persist() error {
	if n.store == nil {
		return nil
	}
	data, err := Encode(n.tracks)
	if err != nil {
		return err
	}
	if err := n.store.Set(StoreKey, data); err != nil {
		n.log.Warn().Err(err).Msg("playlist not persisted")
		return fmt.Errorf("playlist: persist: %w", err)
	}
	return nil
}
