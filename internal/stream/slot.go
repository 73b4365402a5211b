package stream

import (
	"context"
	"sync"
)

// Slot serializes channels for one logical target (one draft-generation
// slot, one revision slot, one conversation reply slot). Opening a new
// channel supersedes and aborts the previous one, and handler callbacks are
// guarded by a liveness check so a superseded channel's late events never
// reach the consumer.
type Slot struct {
	mu     sync.Mutex
	active *Channel
}

func NewSlot() *Slot {
	return &Slot{}
}

// Open aborts any channel already occupying the slot and starts a new one.
func (s *Slot) Open(ctx context.Context, producer Producer, handlers Handlers) *Channel {
	s.mu.Lock()
	prev := s.active

	var ch *Channel
	guarded := Handlers{
		OnChunk: func(text string) {
			if s.isActive(ch) && handlers.OnChunk != nil {
				handlers.OnChunk(text)
			}
		},
		OnDone: func(versionID string, versionNumber int) {
			if s.isActive(ch) && handlers.OnDone != nil {
				handlers.OnDone(versionID, versionNumber)
			}
		},
		OnError: func(message string, retryable bool) {
			if s.isActive(ch) && handlers.OnError != nil {
				handlers.OnError(message, retryable)
			}
		},
	}

	ch = newChannel(guarded)
	s.active = ch
	s.mu.Unlock()

	// Abort outside the slot lock: the superseded channel's dispatcher may
	// be inside a liveness check that needs it.
	if prev != nil {
		prev.Abort()
	}

	ch.start(ctx, producer)
	return ch
}

func (s *Slot) isActive(ch *Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == ch
}

// Active returns the channel currently bound to the slot, or nil.
func (s *Slot) Active() *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Busy reports whether a channel is open in the slot right now.
func (s *Slot) Busy() bool {
	ch := s.Active()
	return ch != nil && ch.State() == StateOpen
}

// Abort cancels the slot's active channel, if any, and empties the slot.
// Safe to call repeatedly; used on teardown and on discard.
func (s *Slot) Abort() {
	s.mu.Lock()
	ch := s.active
	s.active = nil
	s.mu.Unlock()
	if ch != nil {
		ch.Abort()
	}
}
