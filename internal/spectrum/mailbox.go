package spectrum

import "sync/atomic"

// Mailbox is a single-slot, latest-value-wins handoff from the audio thread
// to the control goroutine. Store never blocks; values that are overwritten
// before being read are dropped.
type Mailbox[T any] struct {
	slot    atomic.Pointer[T]
	updates chan struct{}
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{updates: make(chan struct{}, 1)}
}

// Store replaces the current value and signals Updates without blocking.
func (m *Mailbox[T]) Store(v *T) {
	m.slot.Store(v)
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// Load returns the latest value, or nil if nothing was stored yet.
func (m *Mailbox[T]) Load() *T {
	return m.slot.Load()
}

// Updates receives a signal after one or more Stores. Read Load afterwards.
func (m *Mailbox[T]) Updates() <-chan struct{} {
	return m.updates
}
