package echoplayer

import "sync"

// State is the transport state of a Player.
type State int

const (
	Idle State = iota
	Loaded
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	// EventStateChanged carries the new State.
	EventStateChanged EventKind = iota
	// EventTrackChanged carries the track that was just opened.
	EventTrackChanged
	// EventTrackFinished carries the track that reached its end.
	EventTrackFinished
	// EventPlaylistChanged is sent after every playlist mutation.
	EventPlaylistChanged
	// EventError carries an error that was also returned to the caller.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventTrackChanged:
		return "track-changed"
	case EventTrackFinished:
		return "track-finished"
	case EventPlaylistChanged:
		return "playlist-changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a transport notification delivered to subscribers.
type Event struct {
	Kind  EventKind
	State State
	Track *Track
	Err   error
}

type subscriber struct {
	id int
	fn func(Event)
}

// dispatcher delivers events in order to every subscriber. Events are queued
// while the player lock is held and delivered after it is released; a
// subscriber may call back into the player.
type dispatcher struct {
	mu          sync.Mutex
	subs        []subscriber
	nextID      int
	queue       []Event
	dispatching bool
}

func (d *dispatcher) subscribe(fn func(Event)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	subs := make([]subscriber, len(d.subs), len(d.subs)+1)
	copy(subs, d.subs)
	d.subs = append(subs, subscriber{id: id, fn: fn})
	return func() { d.unsubscribe(id) }
}

func (d *dispatcher) unsubscribe(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := make([]subscriber, 0, len(d.subs))
	for _, s := range d.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	d.subs = subs
}

func (d *dispatcher) emit(ev Event) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()
}

// flush delivers queued events. A nested or concurrent flush returns at once;
// the running one drains whatever was queued meanwhile.
func (d *dispatcher) flush() {
	d.mu.Lock()
	if d.dispatching {
		d.mu.Unlock()
		return
	}
	d.dispatching = true
	for len(d.queue) > 0 {
		ev := d.queue[0]
		d.queue = d.queue[1:]
		subs := d.subs
		d.mu.Unlock()
		for _, s := range subs {
			s.fn(ev)
		}
		d.mu.Lock()
	}
	d.queue = nil
	d.dispatching = false
	d.mu.Unlock()
}
