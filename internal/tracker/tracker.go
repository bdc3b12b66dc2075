// Package tracker reconstructs the playback position of the current track
// from the render clock and the frame offset of the scheduled segment.
package tracker

import (
	"math"
)

type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Transport is the part of the audio graph the tracker drives on seek.
type Transport interface {
	// ElapsedFrames is the render clock: frames rendered since the current
	// segment was scheduled.
	ElapsedFrames() int64
	ScheduleSegment(startFrame, frameCount int64) error
	Stop()
	Play() error
}

// Session is a snapshot of the playback position.
type Session struct {
	PositionSeconds float64
	DurationSeconds float64
	IsPlaying       bool
	SeekFrameOffset int64
}

// Tracker is owned by the control goroutine and is not safe for concurrent
// use.
type Tracker struct {
	transport Transport

	state       State
	loaded      bool
	totalFrames int64
	sampleRate  int
	offset      int64
	finished    bool // trackFinished already reported for this completion
	session     Session
}

func New(t Transport) *Tracker {
	return &Tracker{transport: t}
}

// Load resets the tracker for a freshly scheduled track.
func (t *Tracker) Load(totalFrames int64, sampleRate int) {
	t.loaded = sampleRate > 0
	t.totalFrames = totalFrames
	t.sampleRate = sampleRate
	t.offset = 0
	t.finished = false
	t.state = Stopped
	t.session = Session{DurationSeconds: t.duration()}
}

// Unload forgets the current track; position and duration read 0 afterwards.
func (t *Tracker) Unload() {
	*t = Tracker{transport: t.transport}
}

func (t *Tracker) SetState(s State) {
	t.state = s
	t.session.IsPlaying = s == Playing
}

func (t *Tracker) State() State { return t.state }

func (t *Tracker) Session() Session { return t.session }

// Seek moves playback to progress (0..1) of the track. It reports finished
// when the target is the end of the track, in which case nothing is
// scheduled. A NaN progress is ignored.
func (t *Tracker) Seek(progress float64) (finished bool, err error) {
	if !t.loaded || math.IsNaN(progress) {
		return false, nil
	}
	progress = math.Min(math.Max(progress, 0), 1)
	target := int64(math.Round(progress * float64(t.totalFrames)))
	wasPlaying := t.state == Playing

	t.transport.Stop()
	t.offset = target
	t.finished = false
	remaining := t.totalFrames - target
	if remaining <= 0 {
		t.update()
		return t.reportFinished(), nil
	}
	if err := t.transport.ScheduleSegment(target, remaining); err != nil {
		return false, err
	}
	if wasPlaying {
		if err := t.transport.Play(); err != nil {
			return false, err
		}
	}
	t.update()
	return false, nil
}

// Poll recomputes the session from the render clock and reports finished
// once per track completion.
func (t *Tracker) Poll() (Session, bool) {
	if !t.loaded {
		return Session{}, false
	}
	t.update()
	if t.session.PositionSeconds >= t.session.DurationSeconds {
		return t.session, t.reportFinished()
	}
	return t.session, false
}

func (t *Tracker) reportFinished() bool {
	if t.finished {
		return false
	}
	t.finished = true
	return true
}

func (t *Tracker) update() {
	dur := t.duration()
	elapsed := float64(t.transport.ElapsedFrames()) / float64(t.sampleRate)
	pos := float64(t.offset)/float64(t.sampleRate) + elapsed
	t.session = Session{
		PositionSeconds: math.Min(math.Max(pos, 0), dur),
		DurationSeconds: dur,
		IsPlaying:       t.state == Playing,
		SeekFrameOffset: t.offset,
	}
}

func (t *Tracker) duration() float64 {
	if t.sampleRate <= 0 {
		return 0
	}
	return float64(t.totalFrames) / float64(t.sampleRate)
}
