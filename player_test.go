package echoplayer

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	intaudio "github.com/echoplayer/echoplayer-go/internal/audio"
	intgraph "github.com/echoplayer/echoplayer-go/internal/graph"
	intstore "github.com/echoplayer/echoplayer-go/internal/store"
	inttrack "github.com/echoplayer/echoplayer-go/internal/tracker"
)

const testRate = 1000

type fakeDecoder map[string]int64 // path -> frames

func (d fakeDecoder) Open(path string) (*intaudio.PCM, error) {
	frames, ok := d[path]
	if !ok {
		return nil, errors.New("cannot decode")
	}
	s := make([]float32, frames*intaudio.Channels)
	for i := range s {
		s[i] = float32(0.5 * math.Sin(float64(i/2)*0.7))
	}
	return &intaudio.PCM{Samples: s, SampleRate: testRate}, nil
}

type fakeOutput struct {
	playing bool
	closed  bool
}

func (o *fakeOutput) Play()           { o.playing = true }
func (o *fakeOutput) Pause()          { o.playing = false }
func (o *fakeOutput) IsPlaying() bool { return o.playing }
func (o *fakeOutput) Close() error    { o.closed = true; return nil }

// rig drives a Player without an audio device: render pulls blocks through
// the graph the way the output's reader goroutine would.
type rig struct {
	t      *testing.T
	p      *Player
	dir    string
	dec    fakeDecoder
	src    intaudio.SampleSource
	out    *fakeOutput
	fail   int
	opens  int
	events []Event
}

func newRig(t *testing.T, opts ...PlayerOption) *rig {
	t.Helper()
	r := &rig{t: t, dir: t.TempDir(), dec: fakeDecoder{}}
	opts = append([]PlayerOption{
		WithDecoder(r.dec),
		WithOutputFactory(r.open),
	}, opts...)
	p, err := NewPlayer(testRate, opts...)
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	r.p = p
	p.Subscribe(func(ev Event) { r.events = append(r.events, ev) })
	return r
}

func (r *rig) open(sampleRate int, src intaudio.SampleSource) (intgraph.Output, error) {
	r.opens++
	if r.fail > 0 {
		r.fail--
		return nil, errors.New("no device")
	}
	r.src = src
	r.out = &fakeOutput{}
	return r.out, nil
}

// file creates a media file whose decoded length is frames.
func (r *rig) file(name string, frames int64) string {
	r.t.Helper()
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		r.t.Fatal(err)
	}
	r.dec[path] = frames
	return path
}

func (r *rig) render(blocks int) {
	r.t.Helper()
	if r.src == nil {
		r.t.Fatal("output never opened")
	}
	block := make([]float32, intaudio.BlockSamples)
	for i := 0; i < blocks; i++ {
		r.src.Process(block)
	}
}

func (r *rig) current() string {
	if s := r.p.Session(); s.Track != nil {
		return s.Track.Path
	}
	return ""
}

func (r *rig) kinds() []EventKind {
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func TestNewPlayerRejectsBadRate(t *testing.T) {
	if _, err := NewPlayer(0); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenFilePlays(t *testing.T) {
	r := newRig(t)
	a := r.file("a.mp3", 3000)
	if err := r.p.OpenFile(a); err != nil {
		t.Fatal(err)
	}
	if got := r.p.State(); got != Playing {
		t.Fatalf("state = %v, want playing", got)
	}
	if !r.out.playing {
		t.Fatal("output not started")
	}
	s := r.p.Session()
	if s.Track == nil || s.Track.DisplayName != "a.mp3" || s.DurationSeconds != 3 || !s.IsPlaying {
		t.Fatalf("session = %+v", s)
	}
	if d, ok := s.Track.Duration(); !ok || d != 3 {
		t.Fatalf("cached duration = %v, %v", d, ok)
	}
	want := []EventKind{EventStateChanged, EventTrackChanged, EventStateChanged}
	if got := r.kinds(); len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if r.events[0].State != Loaded || r.events[2].State != Playing {
		t.Fatalf("states = %v then %v", r.events[0].State, r.events[2].State)
	}
}

func TestOpenFileDecodeErrorKeepsState(t *testing.T) {
	r := newRig(t)
	a := r.file("a.mp3", 3000)
	if err := r.p.OpenFile(a); err != nil {
		t.Fatal(err)
	}
	r.render(1)
	err := r.p.OpenFile(filepath.Join(r.dir, "broken.mp3"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if r.p.State() != Playing || r.current() != a {
		t.Fatalf("state = %v track = %s, want playing %s", r.p.State(), r.current(), a)
	}
	if err := r.p.Tick(); err != nil {
		t.Fatal(err)
	}
	if got := r.p.Session().PositionSeconds; got != 1.024 {
		t.Fatalf("position = %v, want 1.024 (undisturbed)", got)
	}
}

func TestTrackFinishedAdvancesAndWraps(t *testing.T) {
	r := newRig(t)
	a := r.file("a.mp3", 2048)
	b := r.file("b.mp3", 2048)
	c := r.file("c.mp3", 2048)
	if n, err := r.p.AddTracks(r.dir); err != nil || n != 3 {
		t.Fatalf("add = %d, %v", n, err)
	}

	if err := r.p.OpenFile(a); err != nil {
		t.Fatal(err)
	}
	r.render(2)
	r.events = nil
	if err := r.p.Tick(); err != nil {
		t.Fatal(err)
	}
	if got := r.current(); got != b {
		t.Fatalf("after a finished current = %s, want %s", got, b)
	}
	if r.events[0].Kind != EventTrackFinished || r.events[0].Track.Path != a {
		t.Fatalf("first event = %+v, want track-finished for a", r.events[0])
	}
	if r.p.State() != Playing {
		t.Fatalf("state = %v, want playing", r.p.State())
	}

	if err := r.p.OpenFile(c); err != nil {
		t.Fatal(err)
	}
	r.render(2)
	if err := r.p.Tick(); err != nil {
		t.Fatal(err)
	}
	if got := r.current(); got != a {
		t.Fatalf("after c finished current = %s, want wrap to %s", got, a)
	}
}

func TestFinishedReportedOnce(t *testing.T) {
	r := newRig(t)
	a := r.file("a.mp3", 1024)
	if err := r.p.OpenFile(a); err != nil {
		t.Fatal(err)
	}
	r.render(1)
	r.events = nil
	_ = r.p.Tick()
	// a is not in the playlist: nothing to advance to.
	if r.p.State() != Idle || r.current() != "" {
		t.Fatalf("state = %v, track = %q, want idle", r.p.State(), r.current())
	}
	finished := 0
	_ = r.p.Tick()
	for _, ev := range r.events {
		if ev.Kind == EventTrackFinished {
			finished++
		}
	}
	if finished != 1 {
		t.Fatalf("track-finished delivered %d times", finished)
	}
}

func TestSeekHalfwayKeepsPlaying(t *testing.T) {
	r := newRig(t)
	long := r.file("long.wav", 200*testRate)
	if err := r.p.OpenFile(long); err != nil {
		t.Fatal(err)
	}
	r.render(3)
	if err := r.p.Seek(0.5); err != nil {
		t.Fatal(err)
	}
	s := r.p.Session()
	if s.PositionSeconds != 100 || !s.IsPlaying || r.p.State() != Playing {
		t.Fatalf("session = %+v state = %v, want 100s playing", s, r.p.State())
	}
	if !r.out.playing {
		t.Fatal("output should be running after seek")
	}
	r.render(1)
	_ = r.p.Tick()
	if got := r.p.Session().PositionSeconds; math.Abs(got-101.024) > 1e-9 {
		t.Fatalf("position = %v, want 101.024", got)
	}
}

func TestSeekWhilePausedStaysPaused(t *testing.T) {
	r := newRig(t)
	long := r.file("long.wav", 200*testRate)
	_ = r.p.OpenFile(long)
	if err := r.p.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := r.p.Seek(0.25); err != nil {
		t.Fatal(err)
	}
	if r.p.State() != Paused || r.out.playing {
		t.Fatalf("state = %v output playing = %v, want paused", r.p.State(), r.out.playing)
	}
	if got := r.p.Session().PositionSeconds; got != 50 {
		t.Fatalf("position = %v, want 50", got)
	}
}

func TestSeekPositionWithinOneBlock(t *testing.T) {
	r := newRig(t)
	track := r.file("t.wav", 123457)
	_ = r.p.OpenFile(track)
	dur := 123.457
	tol := float64(intaudio.BlockFrames) / testRate
	// seek(1) finishes the track; see TestSeekToEndAdvances.
	for i := 0; i < 20; i++ {
		p := float64(i) / 20
		if err := r.p.Seek(p); err != nil {
			t.Fatal(err)
		}
		if got := r.p.Session().PositionSeconds; math.Abs(got-p*dur) > tol {
			t.Fatalf("seek(%v) position = %v, want %v", p, got, p*dur)
		}
	}
}

func TestSeekToEndAdvances(t *testing.T) {
	r := newRig(t)
	a := r.file("a.mp3", 4096)
	b := r.file("b.mp3", 4096)
	_, _ = r.p.AddTracks(a, b)
	_ = r.p.OpenFile(a)
	if err := r.p.Seek(1); err != nil {
		t.Fatal(err)
	}
	if got := r.current(); got != b {
		t.Fatalf("current = %s, want %s", got, b)
	}
}

func TestToggleFromIdle(t *testing.T) {
	r := newRig(t)
	if err := r.p.TogglePlay(); err != nil {
		t.Fatal(err)
	}
	if r.p.State() != Idle || len(r.events) != 0 {
		t.Fatalf("empty toggle: state = %v events = %v", r.p.State(), r.kinds())
	}

	a := r.file("a.mp3", 4096)
	r.file("b.mp3", 4096)
	_, _ = r.p.AddTracks(r.dir)
	if err := r.p.TogglePlay(); err != nil {
		t.Fatal(err)
	}
	if r.p.State() != Playing || r.current() != a {
		t.Fatalf("state = %v track = %s, want playing %s", r.p.State(), r.current(), a)
	}
	_ = r.p.TogglePlay()
	if r.p.State() != Paused || r.out.playing {
		t.Fatalf("state = %v, want paused", r.p.State())
	}
	_ = r.p.TogglePlay()
	if r.p.State() != Playing || !r.out.playing {
		t.Fatalf("state = %v, want playing", r.p.State())
	}
}

func TestNavigationOnEmptyPlaylistIsNoop(t *testing.T) {
	r := newRig(t)
	for name, cmd := range map[string]func() error{
		"next": r.p.Next, "previous": r.p.Previous, "play": r.p.Play, "pause": r.p.Pause, "stop": r.p.Stop,
	} {
		if err := cmd(); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if err := r.p.Seek(0.5); err != nil {
		t.Fatal(err)
	}
	if r.p.State() != Idle || len(r.events) != 0 {
		t.Fatalf("state = %v events = %v", r.p.State(), r.kinds())
	}
}

func TestNextPrevious(t *testing.T) {
	r := newRig(t)
	a := r.file("a.mp3", 4096)
	b := r.file("b.mp3", 4096)
	c := r.file("c.mp3", 4096)
	_, _ = r.p.AddTracks(r.dir)
	_ = r.p.OpenFile(b)
	_ = r.p.Next()
	if got := r.current(); got != c {
		t.Fatalf("next = %s, want %s", got, c)
	}
	_ = r.p.Previous()
	_ = r.p.Previous()
	if got := r.current(); got != a {
		t.Fatalf("previous twice = %s, want %s", got, a)
	}
	_ = r.p.Previous()
	if got := r.current(); got != c {
		t.Fatalf("previous wrap = %s, want %s", got, c)
	}
}

func TestClearPlaylistReturnsToIdle(t *testing.T) {
	r := newRig(t)
	a := r.file("a.mp3", 4096)
	_, _ = r.p.AddTracks(a)
	_ = r.p.OpenFile(a)
	if err := r.p.ClearPlaylist(); err != nil {
		t.Fatal(err)
	}
	if r.p.State() != Idle || len(r.p.Playlist()) != 0 || r.out.playing {
		t.Fatalf("state = %v playlist = %d", r.p.State(), len(r.p.Playlist()))
	}
	if s := r.p.Session(); s.DurationSeconds != 0 || s.PositionSeconds != 0 {
		t.Fatalf("session after clear = %+v", s)
	}
}

func TestEngineErrorHaltsTransport(t *testing.T) {
	r := newRig(t)
	r.fail = 2
	a := r.file("a.mp3", 4096)
	_, _ = r.p.AddTracks(a)

	err := r.p.OpenFile(a)
	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want EngineError", err)
	}
	if r.p.State() != Idle {
		t.Fatalf("state = %v, want idle", r.p.State())
	}
	if s := r.p.Session(); s.Track != nil {
		t.Fatalf("session track while idle = %v, want nil", s.Track.Path)
	}
	for name, cmd := range map[string]func() error{
		"play": r.p.Play, "toggle": r.p.TogglePlay, "next": r.p.Next, "open": func() error { return r.p.OpenFile(a) },
	} {
		if err := cmd(); err != nil {
			t.Fatalf("%s after engine failure = %v, want no-op", name, err)
		}
	}
	if r.opens != 2 {
		t.Fatalf("output opened %d times, want 2", r.opens)
	}

	if err := r.p.Reinitialize(); err != nil {
		t.Fatal(err)
	}
	if r.p.State() != Loaded {
		t.Fatalf("state after reinitialize = %v, want loaded", r.p.State())
	}
	if s := r.p.Session(); s.Track == nil || s.Track.Path != a {
		t.Fatalf("session track after reinitialize = %+v, want %s", s.Track, a)
	}
	if err := r.p.Play(); err != nil {
		t.Fatal(err)
	}
	if r.p.State() != Playing || !r.out.playing {
		t.Fatalf("state = %v, want playing", r.p.State())
	}
}

func TestSubscriberMayCallBack(t *testing.T) {
	r := newRig(t)
	var seen []State
	r.p.Subscribe(func(ev Event) {
		if ev.Kind == EventStateChanged {
			seen = append(seen, r.p.State())
		}
	})
	a := r.file("a.mp3", 4096)
	_ = r.p.OpenFile(a)
	_ = r.p.Pause()
	want := []State{Playing, Playing, Paused}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	r := newRig(t)
	n := 0
	unsubscribe := r.p.Subscribe(func(Event) { n++ })
	unsubscribe()
	_ = r.p.OpenFile(r.file("a.mp3", 4096))
	if n != 0 {
		t.Fatalf("unsubscribed callback ran %d times", n)
	}
}

func TestSpectrumFrozenOnStop(t *testing.T) {
	r := newRig(t, WithSpectrumMode(SpectrumLinear))
	if _, ok := r.p.Spectrum(); ok {
		t.Fatal("no frame expected before playback")
	}
	_ = r.p.OpenFile(r.file("a.mp3", 8192))
	r.render(1)
	select {
	case <-r.p.SpectrumUpdates():
	default:
		t.Fatal("no spectrum update signalled")
	}
	before, ok := r.p.Spectrum()
	if !ok {
		t.Fatal("no frame after rendering")
	}
	_ = r.p.Stop()
	r.render(2)
	after, _ := r.p.Spectrum()
	if after != before {
		t.Fatal("spectrum changed after stop")
	}
}

func TestSampleTapSeesOutput(t *testing.T) {
	var blocks int
	r := newRig(t, WithSampleTap(func(b []float32) {
		if len(b) == intaudio.BlockSamples {
			blocks++
		}
	}))
	_ = r.p.OpenFile(r.file("a.mp3", 4096))
	r.render(2)
	if blocks != 2 {
		t.Fatalf("tap saw %d blocks, want 2", blocks)
	}
}

func TestEqualizerAndVolume(t *testing.T) {
	r := newRig(t)
	if err := r.p.SetBandGain(0, 30); err != nil {
		t.Fatal(err)
	}
	if err := r.p.SetBandGain(12, 1); !errors.Is(err, ErrBandOutOfRange) {
		t.Fatalf("err = %v, want ErrBandOutOfRange", err)
	}
	r.p.SetGlobalGain(-6)
	eq := r.p.Equalizer()
	if eq.Bands[0] != 24 || eq.Global != -6 {
		t.Fatalf("equalizer = %+v", eq)
	}
	r.p.SetVolume(0.35)
	if got := r.p.Volume(); got != 0.35 {
		t.Fatalf("volume = %v, want 0.35", got)
	}
	r.p.SetVolume(-2)
	if got := r.p.Volume(); got != 0 {
		t.Fatalf("volume should clamp to 0, got %v", got)
	}
}

func TestPlaylistPersistsAcrossPlayers(t *testing.T) {
	mem := intstore.NewMemory()
	r := newRig(t, WithStore(mem))
	a := r.file("a.mp3", 4096)
	b := r.file("b.mp3", 4096)
	_, _ = r.p.AddTracks(r.dir)
	if err := r.p.Reorder([]int{1}, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.p.Reorder([]int{5}, 0); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("err = %v, want ErrInvalidIndex", err)
	}

	next, err := NewPlayer(testRate, WithStore(mem), WithDecoder(r.dec))
	if err != nil {
		t.Fatal(err)
	}
	if err := next.RestorePlaylist(); err != nil {
		t.Fatal(err)
	}
	got := next.Playlist()
	if len(got) != 2 || got[0].Path != b || got[1].Path != a {
		t.Fatalf("restored = %+v", got)
	}
}

func TestSaveLoadPlaylistFile(t *testing.T) {
	r := newRig(t)
	_ = r.file("a.mp3", 4096)
	_ = r.file("b.mp3", 4096)
	_, _ = r.p.AddTracks(r.dir)
	doc := filepath.Join(t.TempDir(), "mix.eplist")
	if err := r.p.SaveToFile(doc); err != nil {
		t.Fatal(err)
	}
	other := newRig(t)
	r.events = nil
	if err := other.p.LoadFromFile(doc); err != nil {
		t.Fatal(err)
	}
	if err := other.p.LoadFromFile(doc); err != nil {
		t.Fatal(err)
	}
	if len(other.p.Playlist()) != 2 {
		t.Fatalf("playlist = %d entries, want 2 after merging twice", len(other.p.Playlist()))
	}
	changed := 0
	for _, ev := range other.events {
		if ev.Kind == EventPlaylistChanged {
			changed++
		}
	}
	if changed != 1 {
		t.Fatalf("playlist-changed sent %d times, want 1", changed)
	}
}

type manualTicker struct{ c chan time.Time }

func (m manualTicker) C() <-chan time.Time { return m.c }
func (m manualTicker) Stop()               {}

func TestRunPollsOnTicker(t *testing.T) {
	tick := manualTicker{c: make(chan time.Time)}
	var interval time.Duration
	r := newRig(t,
		WithPollInterval(250*time.Millisecond),
		WithTicker(func(d time.Duration) inttrack.Ticker { interval = d; return tick }),
	)
	a := r.file("a.mp3", 1024)
	b := r.file("b.mp3", 1024)
	_, _ = r.p.AddTracks(a, b)
	_ = r.p.OpenFile(a)
	r.render(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.p.Run(ctx) }()
	tick.c <- time.Now()
	tick.c <- time.Now() // returns once the first tick has been handled
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if interval != 250*time.Millisecond {
		t.Fatalf("interval = %v", interval)
	}
	if got := r.current(); got != b {
		t.Fatalf("current = %s, want %s", got, b)
	}
}
