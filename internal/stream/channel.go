// Package stream implements the cancellable, ordered, incremental text
// transport shared by draft generation, draft revision, and the elicitation
// conversation. Each Channel is a small state machine
// (idle -> open -> done | error | cancelled) fed by a producer goroutine and
// drained by a single dispatcher, so handler callbacks are serialized and
// chunk order is preserved end to end.
package stream

import (
	"context"
	"strings"
	"sync"
)

type State int

const (
	StateIdle State = iota
	StateOpen
	StateDone
	StateError
	StateCancelled
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateError || s == StateCancelled
}

type EventType int

const (
	EventChunk EventType = iota
	EventDone
	EventError
)

// Event is the single typed unit a producer pushes through a Channel.
// Chunk events carry Text; done events carry the committed draft version
// identity; error events carry a human-readable message and a retryable flag.
type Event struct {
	Type          EventType
	Text          string
	VersionID     string
	VersionNumber int
	Message       string
	Retryable     bool
}

// Handlers receive channel callbacks on the dispatcher goroutine. Exactly
// one of OnDone or OnError fires per channel, never after Abort returns, and
// no OnChunk follows either. Handlers must not call back into the Channel
// and must not block indefinitely: delivery holds the channel lock, so a
// stalled handler also stalls Abort.
type Handlers struct {
	OnChunk func(text string)
	OnDone  func(versionID string, versionNumber int)
	OnError func(message string, retryable bool)
}

// Producer generates the event sequence for one channel. It runs on its own
// goroutine, must emit events in delivery order, and must finish with exactly
// one terminal event unless emit reports the channel stopped accepting.
// The context is cancelled when the channel is aborted or superseded.
type Producer func(ctx context.Context, emit func(Event) bool)

// Channel carries one generation attempt from a producer to its consumer.
type Channel struct {
	mu      sync.Mutex
	state   State
	text    strings.Builder
	handler Handlers
	cancel  context.CancelFunc
	events  chan Event
	drained chan struct{}
}

// Open starts a producer feeding handlers and returns the channel as its
// cancellation handle.
func Open(ctx context.Context, producer Producer, handlers Handlers) *Channel {
	c := newChannel(handlers)
	c.start(ctx, producer)
	return c
}

func newChannel(handlers Handlers) *Channel {
	return &Channel{
		state:   StateIdle,
		handler: handlers,
		events:  make(chan Event, 16),
		drained: make(chan struct{}),
	}
}

func (c *Channel) start(ctx context.Context, producer Producer) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		cancel()
		return
	}
	c.state = StateOpen
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer close(c.events)
		producer(ctx, func(evt Event) bool {
			select {
			case c.events <- evt:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	go c.dispatch()
}

// dispatch drains the producer's events one at a time. Accepting and acting
// on an event happens under the channel mutex, so an Abort that has returned
// is guaranteed to see no further callbacks.
func (c *Channel) dispatch() {
	defer close(c.drained)
	for evt := range c.events {
		if c.deliver(evt) {
			return
		}
	}
}

// deliver applies a single event and reports whether it was terminal.
func (c *Channel) deliver(evt Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		// Aborted or already terminal: late events are dropped.
		return true
	}

	switch evt.Type {
	case EventChunk:
		c.text.WriteString(evt.Text)
		if c.handler.OnChunk != nil {
			c.handler.OnChunk(evt.Text)
		}
		return false
	case EventDone:
		c.state = StateDone
		c.cancel()
		if c.handler.OnDone != nil {
			c.handler.OnDone(evt.VersionID, evt.VersionNumber)
		}
		return true
	case EventError:
		c.state = StateError
		c.cancel()
		if c.handler.OnError != nil {
			c.handler.OnError(evt.Message, evt.Retryable)
		}
		return true
	}
	return false
}

// Abort stops further delivery. It is idempotent, and once it returns no
// handler fires again. Partial text is discarded by the consumer; aborting
// never commits a draft version.
func (c *Channel) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return
	}
	c.state = StateCancelled
	c.cancel()
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Text returns the text accumulated so far. After OnDone it is the
// authoritative full draft content.
func (c *Channel) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text.String()
}

// Wait blocks until the dispatcher has drained, for callers that need the
// terminal callback to have fired before proceeding.
func (c *Channel) Wait() {
	<-c.drained
}
