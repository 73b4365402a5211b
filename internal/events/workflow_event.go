package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInfo    EventType = "info"
	EventChunk   EventType = "chunk"
	EventDone    EventType = "done"
	EventError   EventType = "error"
	EventPhase   EventType = "phase"
	EventWarn    EventType = "warn"
	EventSuccess EventType = "success"
)

const (
	EvolutionEventStream  = "events:evolution:stream"
	EvolutionEventPhase   = "events:evolution:phase"
	EvolutionEventMessage = "events:evolution:message"
)

// WorkflowEvent is the payload emitted by the evolution pipeline: stream
// chunks, terminal stream outcomes, and phase changes.
type WorkflowEvent struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	Message    string            `json:"message,omitempty"`
	Text       string            `json:"text,omitempty"`
	Phase      string            `json:"phase,omitempty"`
	Retryable  bool              `json:"retryable,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	SessionKey string            `json:"sessionKey,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type contextKey string

const sessionContextKey contextKey = "evermore/events/session"

// WithSession returns a derived context annotated with the given session key
// so event emitters can automatically scope payloads.
func WithSession(ctx context.Context, sessionKey string) context.Context {
	if strings.TrimSpace(sessionKey) == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey, sessionKey)
}

// SessionFromContext extracts the session key associated with ctx.
func SessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionContextKey).(string); ok {
		return v
	}
	return ""
}

func CreateWorkflowEvent(eventType EventType, message string) WorkflowEvent {
	return WorkflowEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewChunk creates a chunk WorkflowEvent carrying incremental text.
func NewChunk(text string) WorkflowEvent {
	evt := CreateWorkflowEvent(EventChunk, "")
	evt.Text = text
	return evt
}

// NewPhase creates a phase-change WorkflowEvent.
func NewPhase(phase string) WorkflowEvent {
	evt := CreateWorkflowEvent(EventPhase, "")
	evt.Phase = phase
	return evt
}

// NewError creates an error WorkflowEvent.
func NewError(message string, retryable bool) WorkflowEvent {
	evt := CreateWorkflowEvent(EventError, message)
	evt.Retryable = retryable
	return evt
}

// NewDone creates a terminal success WorkflowEvent.
func NewDone(metadata map[string]string) WorkflowEvent {
	evt := CreateWorkflowEvent(EventDone, "")
	evt.Metadata = metadata
	return evt
}
