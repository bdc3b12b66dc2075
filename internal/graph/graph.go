// Package graph owns the signal path of the player: the decoded source,
// the equalizer, the mix stage and the hardware output.
package graph

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/echoplayer/echoplayer-go/internal/audio"
	"github.com/echoplayer/echoplayer-go/internal/effects"
)

// startAttempts is the number of times Play tries to open the output before
// latching an EngineError.
const startAttempts = 2

// Decoder opens a media file into memory.
type Decoder interface {
	Open(path string) (*audio.PCM, error)
}

// Output is a running hardware stream pulling blocks from the graph.
type Output interface {
	Play()
	Pause()
	IsPlaying() bool
	Close() error
}

// OutputFactory opens an Output that renders src at sampleRate.
type OutputFactory func(sampleRate int, src audio.SampleSource) (Output, error)

// DeviceOutput opens the system audio device.
func DeviceOutput(sampleRate int, src audio.SampleSource) (Output, error) {
	d, err := audio.OpenDevice(sampleRate, src)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// segment is a span of the loaded track scheduled for playback. It is
// published by pointer; rendered is advanced only by the audio thread.
type segment struct {
	pcm      *audio.PCM
	start    int64
	end      int64
	rendered atomic.Int64
}

type Option func(*Graph)

func WithLogger(l zerolog.Logger) Option {
	return func(g *Graph) { g.log = l }
}

// WithOutputFactory replaces the system audio device.
func WithOutputFactory(f OutputFactory) Option {
	return func(g *Graph) { g.newOutput = f }
}

// WithTap installs a callback invoked with each processed block after the
// equalizer and mix stage. Blocks without track audio are not tapped. It
// runs on the audio thread.
func WithTap(tap func(block []float32)) Option {
	return func(g *Graph) { g.taps = append(g.taps, tap) }
}

// Graph is configured from a single control goroutine; only Process runs on
// the audio thread, and it touches nothing but atomics and state it owns.
type Graph struct {
	sampleRate int
	decoder    Decoder
	newOutput  OutputFactory
	log        zerolog.Logger

	eq    *effects.ParametricEQ
	mixer *effects.Mixer
	chain *effects.Chain
	taps  []func([]float32)

	current atomic.Pointer[segment]

	track  *audio.PCM
	out    Output
	failed *EngineError
}

func New(sampleRate int, dec Decoder, opts ...Option) *Graph {
	g := &Graph{
		sampleRate: sampleRate,
		decoder:    dec,
		newOutput:  DeviceOutput,
		log:        zerolog.Nop(),
		eq:         effects.NewParametricEQ(sampleRate),
		mixer:      effects.NewMixer(),
	}
	g.chain = effects.NewChain(g.eq, g.mixer)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Graph) SampleRate() int { return g.sampleRate }

// Load decodes path and makes it the track for subsequent ScheduleSegment
// calls. A segment that is already playing keeps playing its own track.
func (g *Graph) Load(path string) (audio.Info, error) {
	pcm, err := g.decoder.Open(path)
	if err != nil {
		return audio.Info{}, &DecodeError{Path: path, Err: err}
	}
	g.track = pcm
	info := pcm.Info()
	g.log.Debug().Str("path", path).Int64("frames", info.TotalFrames).Int("rate", info.SampleRate).Msg("track loaded")
	return info, nil
}

// ScheduleSegment replaces whatever is scheduled with frames
// [startFrame, startFrame+frameCount) of the loaded track.
func (g *Graph) ScheduleSegment(startFrame, frameCount int64) error {
	if g.track == nil {
		return ErrNoTrack
	}
	total := g.track.Frames()
	start := min(max(startFrame, 0), total)
	end := min(start+max(frameCount, 0), total)
	s := &segment{pcm: g.track, start: start, end: end}
	g.current.Store(s)
	return nil
}

// Play starts sample delivery, opening the output first if needed. A failed
// open is retried once; the second failure is latched and returned by every
// later Play until Reinitialize.
func (g *Graph) Play() error {
	if g.failed != nil {
		return g.failed
	}
	if g.out == nil {
		if err := g.start(); err != nil {
			return err
		}
	}
	g.out.Play()
	return nil
}

func (g *Graph) start() error {
	var err error
	for attempt := 1; attempt <= startAttempts; attempt++ {
		var out Output
		out, err = g.newOutput(g.sampleRate, g)
		if err == nil {
			g.out = out
			return nil
		}
		g.log.Warn().Err(err).Int("attempt", attempt).Msg("audio output failed to start")
	}
	g.failed = &EngineError{Attempts: startAttempts, Err: err}
	g.log.Error().Err(err).Msg("audio output unavailable; reinitialize to recover")
	return g.failed
}

// Pause halts delivery; the scheduled segment is kept.
func (g *Graph) Pause() {
	if g.out != nil {
		g.out.Pause()
	}
}

// Stop halts delivery and releases the scheduled segment.
func (g *Graph) Stop() {
	g.current.Store(nil)
	if g.out != nil {
		g.out.Pause()
	}
}

// Failed returns the latched engine error, if any.
func (g *Graph) Failed() error {
	if g.failed == nil {
		return nil
	}
	return g.failed
}

// Running reports whether the output exists and is pulling samples.
func (g *Graph) Running() bool {
	return g.out != nil && g.out.IsPlaying()
}

// Reinitialize closes the output and clears a latched engine error. The
// loaded track is kept; nothing is scheduled afterwards.
func (g *Graph) Reinitialize() error {
	g.current.Store(nil)
	g.failed = nil
	var err error
	if g.out != nil {
		err = g.out.Close()
		g.out = nil
	}
	// no output pulls blocks now, so the filter memory can be cleared here
	g.chain.Reset()
	return err
}

// Close releases the output.
func (g *Graph) Close() error {
	g.current.Store(nil)
	if g.out == nil {
		return nil
	}
	err := g.out.Close()
	g.out = nil
	return err
}

// ElapsedFrames is the render clock: frames delivered since the current
// segment was scheduled.
func (g *Graph) ElapsedFrames() int64 {
	s := g.current.Load()
	if s == nil {
		return 0
	}
	return s.rendered.Load()
}

func (g *Graph) SetBandGain(band int, gainDB float64) error {
	return g.eq.SetBandGain(band, gainDB)
}

func (g *Graph) SetGlobalGain(gainDB float64) {
	g.eq.SetGlobalGain(gainDB)
}

func (g *Graph) SetEqualizer(s effects.EQState) {
	g.eq.SetState(s)
}

func (g *Graph) Equalizer() effects.EQState {
	return g.eq.State()
}

func (g *Graph) SetVolume(v float64) {
	g.mixer.SetVolume(v)
}

func (g *Graph) Volume() float64 {
	return g.mixer.Volume()
}

// Process renders one block. It implements audio.SampleSource.
func (g *Graph) Process(dst []float32) {
	n := 0
	if s := g.current.Load(); s != nil {
		pos := s.start + s.rendered.Load()
		want := min(int64(len(dst)/audio.Channels), s.end-pos)
		if want > 0 {
			n = s.pcm.CopyFrames(dst[:want*audio.Channels], pos)
			s.rendered.Add(int64(n))
		}
	}
	clear(dst[n*audio.Channels:])
	g.chain.Process(dst)
	if n == 0 {
		return
	}
	for _, tap := range g.taps {
		tap(dst)
	}
}
