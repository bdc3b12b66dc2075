// Package echoplayer is the playback engine of a desktop media player: a
// render graph with a parametric equalizer, a sample-accurate position
// tracker, a spectrum analyzer and a navigable playlist behind one transport
// controller.
package echoplayer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	intaudio "github.com/echoplayer/echoplayer-go/internal/audio"
	intdecode "github.com/echoplayer/echoplayer-go/internal/decode"
	intfx "github.com/echoplayer/echoplayer-go/internal/effects"
	intgraph "github.com/echoplayer/echoplayer-go/internal/graph"
	intlist "github.com/echoplayer/echoplayer-go/internal/playlist"
	intspec "github.com/echoplayer/echoplayer-go/internal/spectrum"
	intstore "github.com/echoplayer/echoplayer-go/internal/store"
	inttrack "github.com/echoplayer/echoplayer-go/internal/tracker"
)

type (
	Track          = intlist.Track
	SpectrumFrame  = intspec.Frame
	SpectrumMode   = intspec.Mode
	EqualizerState = intfx.EQState
	DecodeError    = intgraph.DecodeError
	EngineError    = intgraph.EngineError
	Store          = intstore.Store
	Decoder        = intgraph.Decoder
	OutputFactory  = intgraph.OutputFactory
	Ticker         = inttrack.Ticker
)

const (
	SpectrumDB     = intspec.ModeDB
	SpectrumLinear = intspec.ModeLinear
)

var (
	ErrBandOutOfRange = intfx.ErrBandOutOfRange
	ErrInvalidIndex   = intlist.ErrInvalidIndex
)

func IsDecodeError(err error) bool { return intgraph.IsDecodeError(err) }
func IsEngineError(err error) bool { return intgraph.IsEngineError(err) }

// Session is a snapshot of the playback position of the current track.
type Session struct {
	Track           *Track
	PositionSeconds float64
	DurationSeconds float64
	IsPlaying       bool
	SeekFrameOffset int64
}

type PlayerOption func(*playerConfig)

type playerConfig struct {
	log       zerolog.Logger
	store     Store
	decoder   Decoder
	output    OutputFactory
	newTicker inttrack.NewTickerFunc
	interval  time.Duration
	sampleTap func([]float32)
	mode      SpectrumMode
	dbMax     float64
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		log:       zerolog.Nop(),
		newTicker: inttrack.NewTicker,
		interval:  inttrack.DefaultPollInterval,
		mode:      SpectrumDB,
		dbMax:     intspec.DefaultDBMax,
	}
}

func WithLogger(l zerolog.Logger) PlayerOption {
	return func(cfg *playerConfig) { cfg.log = l }
}

// WithStore persists the playlist across sessions.
func WithStore(s Store) PlayerOption {
	return func(cfg *playerConfig) { cfg.store = s }
}

// WithDecoder replaces the built-in mp3/wav/ogg decoder.
func WithDecoder(d Decoder) PlayerOption {
	return func(cfg *playerConfig) { cfg.decoder = d }
}

// WithOutputFactory replaces the system audio device.
func WithOutputFactory(f OutputFactory) PlayerOption {
	return func(cfg *playerConfig) { cfg.output = f }
}

// WithTicker replaces the ticker used by Run.
func WithTicker(f func(time.Duration) Ticker) PlayerOption {
	return func(cfg *playerConfig) { cfg.newTicker = f }
}

func WithPollInterval(d time.Duration) PlayerOption {
	return func(cfg *playerConfig) {
		if d > 0 {
			cfg.interval = d
		}
	}
}

// WithSampleTap installs a callback invoked with each rendered stereo block.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) { cfg.sampleTap = tap }
}

func WithSpectrumMode(m SpectrumMode) PlayerOption {
	return func(cfg *playerConfig) { cfg.mode = m }
}

// WithSpectrumDBMax sets the dB ceiling used by SpectrumDB normalization.
func WithSpectrumDBMax(v float64) PlayerOption {
	return func(cfg *playerConfig) { cfg.dbMax = v }
}

// Player is the transport controller. Its methods are safe for concurrent
// use; they are serialized and form the control domain of the engine.
type Player struct {
	mu       sync.Mutex
	log      zerolog.Logger
	graph    *intgraph.Graph
	tracker  *inttrack.Tracker
	nav      *intlist.Navigator
	analyzer *intspec.Analyzer
	frames   *intspec.Mailbox[SpectrumFrame]

	newTicker inttrack.NewTickerFunc
	interval  time.Duration

	state   State
	current *Track
	info    intaudio.Info

	// suspended holds the track that was current when the engine failed; it is
	// rescheduled by Reinitialize.
	suspended *Track

	events dispatcher
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.decoder == nil {
		cfg.decoder = intdecode.New(sampleRate)
	}

	frames := intspec.NewMailbox[SpectrumFrame]()
	analyzer := intspec.NewAnalyzer(frames)
	analyzer.SetMode(cfg.mode)
	analyzer.SetDBMax(cfg.dbMax)

	graphOpts := []intgraph.Option{
		intgraph.WithLogger(cfg.log),
		intgraph.WithTap(func(block []float32) { analyzer.Process(block, intaudio.Channels) }),
	}
	if cfg.output != nil {
		graphOpts = append(graphOpts, intgraph.WithOutputFactory(cfg.output))
	}
	if cfg.sampleTap != nil {
		graphOpts = append(graphOpts, intgraph.WithTap(cfg.sampleTap))
	}
	g := intgraph.New(sampleRate, cfg.decoder, graphOpts...)

	return &Player{
		log:       cfg.log,
		graph:     g,
		tracker:   inttrack.New(g),
		nav:       intlist.NewNavigator(cfg.store, intlist.WithLogger(cfg.log)),
		analyzer:  analyzer,
		frames:    frames,
		newTicker: cfg.newTicker,
		interval:  cfg.interval,
	}, nil
}

// do runs fn under the player lock and then delivers the events it queued.
func (p *Player) do(fn func() error) error {
	p.mu.Lock()
	err := fn()
	p.mu.Unlock()
	p.events.flush()
	return err
}

// Subscribe registers fn for every transport event. Events are delivered in
// order, after the call that caused them has released the player. The
// returned func removes the subscription.
func (p *Player) Subscribe(fn func(Event)) (unsubscribe func()) {
	return p.events.subscribe(fn)
}

func (p *Player) setState(s State) {
	if p.state == s {
		return
	}
	p.state = s
	p.log.Debug().Stringer("state", s).Msg("transport")
	p.events.emit(Event{Kind: EventStateChanged, State: s, Track: p.trackCopy()})
}

func (p *Player) trackCopy() *Track {
	if p.current == nil {
		return nil
	}
	t := *p.current
	if t.CachedDuration != nil {
		d := *t.CachedDuration
		t.CachedDuration = &d
	}
	return &t
}

func (p *Player) report(err error) error {
	if err != nil {
		p.events.emit(Event{Kind: EventError, State: p.state, Track: p.trackCopy(), Err: err})
	}
	return err
}

// halted reports whether the output latched an EngineError. Transport
// commands do nothing until Reinitialize.
func (p *Player) halted() bool {
	return p.graph.Failed() != nil
}

// fail records a transport failure. An EngineError also drops the player to
// Idle.
func (p *Player) fail(err error) error {
	if intgraph.IsEngineError(err) {
		p.log.Error().Err(err).Msg("transport halted")
		p.tracker.SetState(inttrack.Stopped)
		if p.current != nil {
			p.suspended, p.current = p.current, nil
		}
		p.setState(Idle)
	}
	return p.report(err)
}

// OpenFile decodes path and starts playing it. On a DecodeError nothing
// changes.
func (p *Player) OpenFile(path string) error {
	return p.do(func() error {
		if p.halted() {
			return nil
		}
		return p.openTrack(path)
	})
}

func (p *Player) openTrack(path string) error {
	info, err := p.graph.Load(path)
	if err != nil {
		p.log.Warn().Err(err).Str("path", path).Msg("open failed")
		return p.report(err)
	}
	p.graph.Stop()
	p.tracker.Load(info.TotalFrames, info.SampleRate)
	p.info = info

	track, ok := p.nav.Track(path)
	if !ok {
		track = intlist.NewTrack(path)
	}
	dur := info.Duration()
	track.CachedDuration = &dur
	if err := p.nav.SetDuration(path, dur); err != nil {
		p.log.Warn().Err(err).Msg("duration not persisted")
	}
	p.current = &track

	if err := p.graph.ScheduleSegment(0, info.TotalFrames); err != nil {
		return p.fail(err)
	}
	p.setState(Loaded)
	p.events.emit(Event{Kind: EventTrackChanged, State: p.state, Track: p.trackCopy()})
	p.log.Info().Str("track", track.DisplayName).Float64("duration", dur).Msg("opened")
	return p.resume()
}

// resume starts or continues delivery of the scheduled segment.
func (p *Player) resume() error {
	if err := p.graph.Play(); err != nil {
		return p.fail(err)
	}
	p.tracker.SetState(inttrack.Playing)
	p.setState(Playing)
	return nil
}

// Play resumes a loaded or paused track. From Idle it plays the head of the
// playlist, if any.
func (p *Player) Play() error {
	return p.do(func() error {
		if p.halted() {
			return nil
		}
		switch p.state {
		case Idle:
			return p.playFirst()
		case Loaded, Paused:
			return p.resume()
		}
		return nil
	})
}

func (p *Player) playFirst() error {
	first, ok := p.nav.First()
	if !ok {
		return nil
	}
	return p.openTrack(first.Path)
}

func (p *Player) Pause() error {
	return p.do(func() error {
		if p.halted() {
			return nil
		}
		p.pause()
		return nil
	})
}

func (p *Player) pause() {
	if p.state != Playing {
		return
	}
	p.graph.Pause()
	p.tracker.SetState(inttrack.Paused)
	p.setState(Paused)
}

// TogglePlay flips between playing and paused. From Idle it plays the head of
// the playlist; with an empty playlist it does nothing.
func (p *Player) TogglePlay() error {
	return p.do(func() error {
		if p.halted() {
			return nil
		}
		switch p.state {
		case Idle:
			return p.playFirst()
		case Playing:
			p.pause()
			return nil
		default:
			return p.resume()
		}
	})
}

// Stop halts playback and returns to Idle.
func (p *Player) Stop() error {
	return p.do(func() error {
		if p.halted() {
			return nil
		}
		p.stop()
		return nil
	})
}

func (p *Player) stop() {
	p.graph.Stop()
	p.tracker.Unload()
	p.current = nil
	p.info = intaudio.Info{}
	p.setState(Idle)
}

// Seek moves to progress (0..1) of the current track. Playback resumes only
// if it was playing before the seek.
func (p *Player) Seek(progress float64) error {
	return p.do(func() error {
		if p.halted() || p.current == nil {
			return nil
		}
		finished, err := p.tracker.Seek(progress)
		if err != nil {
			return p.fail(err)
		}
		if finished {
			return p.finish()
		}
		return nil
	})
}

// Next plays the entry after the current track, wrapping at the end.
func (p *Player) Next() error {
	return p.do(func() error {
		if p.halted() {
			return nil
		}
		return p.step(p.nav.Next)
	})
}

// Previous plays the entry before the current track, wrapping at the start.
func (p *Player) Previous() error {
	return p.do(func() error {
		if p.halted() {
			return nil
		}
		return p.step(p.nav.Previous)
	})
}

func (p *Player) step(resolve func(string) (Track, bool)) error {
	var (
		t  Track
		ok bool
	)
	if p.current != nil {
		t, ok = resolve(p.current.Path)
	}
	if !ok {
		p.stop()
		return nil
	}
	return p.openTrack(t.Path)
}

func (p *Player) finish() error {
	p.log.Debug().Str("track", p.current.DisplayName).Msg("track finished")
	p.events.emit(Event{Kind: EventTrackFinished, State: p.state, Track: p.trackCopy()})
	return p.step(p.nav.Next)
}

// Tick polls the position once and advances to the next track when the
// current one has finished.
func (p *Player) Tick() error {
	return p.do(func() error {
		if p.halted() || p.current == nil {
			return nil
		}
		if _, finished := p.tracker.Poll(); finished {
			return p.finish()
		}
		return nil
	})
}

// Run calls Tick on the poll interval until ctx is done.
func (p *Player) Run(ctx context.Context) error {
	t := p.newTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
			if err := p.Tick(); err != nil {
				p.log.Warn().Err(err).Msg("poll")
			}
		}
	}
}

// Reinitialize recovers from an EngineError. The output is reopened on the
// next Play; the current track, if any, is rescheduled from its start.
func (p *Player) Reinitialize() error {
	return p.do(func() error {
		if err := p.graph.Reinitialize(); err != nil {
			p.log.Warn().Err(err).Msg("closing output")
		}
		if p.current == nil {
			p.current, p.suspended = p.suspended, nil
		}
		if p.current == nil {
			p.tracker.Unload()
			p.setState(Idle)
			return nil
		}
		p.tracker.Load(p.info.TotalFrames, p.info.SampleRate)
		if err := p.graph.ScheduleSegment(0, p.info.TotalFrames); err != nil {
			p.stop()
			return p.report(err)
		}
		p.setState(Loaded)
		return nil
	})
}

// Close releases the audio output.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph.Close()
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Session returns the position as of the last poll or seek.
func (p *Player) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.tracker.Session()
	return Session{
		Track:           p.trackCopy(),
		PositionSeconds: s.PositionSeconds,
		DurationSeconds: s.DurationSeconds,
		IsPlaying:       s.IsPlaying,
		SeekFrameOffset: s.SeekFrameOffset,
	}
}

// Spectrum returns the most recent analysis frame. It keeps its last value
// while playback is paused or stopped.
func (p *Player) Spectrum() (SpectrumFrame, bool) {
	f := p.frames.Load()
	if f == nil {
		return SpectrumFrame{}, false
	}
	return *f, true
}

// SpectrumUpdates signals that a new frame is available. Intermediate frames
// are dropped when the reader falls behind.
func (p *Player) SpectrumUpdates() <-chan struct{} {
	return p.frames.Updates()
}

func (p *Player) SetSpectrumMode(m SpectrumMode) { p.analyzer.SetMode(m) }

func (p *Player) SetSpectrumDBMax(v float64) { p.analyzer.SetDBMax(v) }

// SetBandGain sets equalizer band i (0-11) in dB, clamped to ±24.
func (p *Player) SetBandGain(band int, gainDB float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph.SetBandGain(band, gainDB)
}

// SetGlobalGain sets the equalizer's global gain in dB, clamped to ±24.
func (p *Player) SetGlobalGain(gainDB float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph.SetGlobalGain(gainDB)
}

func (p *Player) SetEqualizer(s EqualizerState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph.SetEqualizer(s)
}

func (p *Player) Equalizer() EqualizerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph.Equalizer()
}

// SetVolume sets the master volume, clamped to [0, 1].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.graph.SetVolume(v)
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.graph.Volume()
}

// Playlist returns a copy of the playlist.
func (p *Player) Playlist() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nav.Tracks()
}

// AddTracks adds media files and directories to the playlist. A playlist
// document among paths replaces the list. It returns the number of tracks
// appended.
func (p *Player) AddTracks(paths ...string) (int, error) {
	var added int
	err := p.do(func() error {
		before := p.nav.Tracks()
		var err error
		added, err = p.nav.Add(paths...)
		p.playlistChanged(before)
		return p.report(err)
	})
	return added, err
}

// ClearPlaylist empties the playlist and stops playback.
func (p *Player) ClearPlaylist() error {
	return p.do(func() error {
		if p.halted() {
			p.suspended = nil
		} else {
			p.stop()
		}
		err := p.nav.Clear()
		p.events.emit(Event{Kind: EventPlaylistChanged, State: p.state})
		return p.report(err)
	})
}

// Reorder moves the entries at indices before the entry at dest.
func (p *Player) Reorder(indices []int, dest int) error {
	return p.do(func() error {
		before := p.nav.Tracks()
		err := p.nav.Reorder(indices, dest)
		p.playlistChanged(before)
		return err
	})
}

// SaveToFile writes the playlist document to path.
func (p *Player) SaveToFile(path string) error {
	return p.do(func() error {
		return p.report(p.nav.SaveFile(path))
	})
}

// LoadFromFile merges the playlist document at path into the playlist.
func (p *Player) LoadFromFile(path string) error {
	return p.do(func() error {
		before := p.nav.Tracks()
		err := p.nav.LoadFile(path)
		p.playlistChanged(before)
		return p.report(err)
	})
}

// RestorePlaylist merges the playlist saved by the previous session.
func (p *Player) RestorePlaylist() error {
	return p.do(func() error {
		before := p.nav.Tracks()
		err := p.nav.Restore()
		p.playlistChanged(before)
		return p.report(err)
	})
}

func (p *Player) playlistChanged(before []Track) {
	after := p.nav.Tracks()
	if sameOrder(before, after) {
		return
	}
	p.events.emit(Event{Kind: EventPlaylistChanged, State: p.state, Track: p.trackCopy()})
}

func sameOrder(a, b []Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path {
			return false
		}
	}
	return true
}
