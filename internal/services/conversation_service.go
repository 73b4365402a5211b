package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"evermore/internal/events"
	"evermore/internal/llm/client"
	"evermore/internal/models"
	"evermore/internal/repositories"
	"evermore/internal/stream"
)

// TextStreamer is the slice of the chat client the conversation and a
// summary/draft pipeline consume. *client.ChatClient satisfies it.
type TextStreamer interface {
	Complete(ctx context.Context, messages []*schema.Message) (string, error)
	StreamText(ctx context.Context, messages []*schema.Message, onChunk func(text string) error) (string, error)
}

// ConversationService manages the elicitation chat: ordered message
// history, streamed assistant replies, retry of failed turns, and the
// derived ready-to-summarize signal.
type ConversationService interface {
	Startup(ctx context.Context)
	History(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, session *models.EvolutionSession, text string, handlers stream.Handlers) (*stream.Channel, error)
	RetryLast(ctx context.Context, session *models.EvolutionSession, handlers stream.Handlers) (*stream.Channel, error)
	ReadyToSummarize(ctx context.Context, session *models.EvolutionSession) (bool, error)
	Teardown(conversationID string)
}

type conversationService struct {
	messages    repositories.ChatMessageRepository
	stories     repositories.StoryRepository
	llm         TextStreamer
	summaryBusy func(sessionID string) bool
	ctx         context.Context

	slotMu sync.Mutex
	slots  map[string]*stream.Slot // conversationID -> reply slot
}

func NewConversationService(
	messages repositories.ChatMessageRepository,
	stories repositories.StoryRepository,
	llm TextStreamer,
	summaryBusy func(sessionID string) bool,
) ConversationService {
	if summaryBusy == nil {
		summaryBusy = func(string) bool { return false }
	}
	return &conversationService{
		messages:    messages,
		stories:     stories,
		llm:         llm,
		summaryBusy: summaryBusy,
		slots:       make(map[string]*stream.Slot),
	}
}

func (s *conversationService) Startup(ctx context.Context) {
	s.ctx = ctx
}

func (s *conversationService) History(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	if conversationID == "" {
		return nil, ValidationError("conversation ID is required")
	}
	return s.messages.ListByConversation(ctx, conversationID)
}

// SendMessage appends a user message and opens a streamed assistant reply.
// It is a deliberate no-op (nil channel, nil error) while a reply is already
// streaming, matching the disabled send affordance.
func (s *conversationService) SendMessage(ctx context.Context, session *models.EvolutionSession, text string, handlers stream.Handlers) (*stream.Channel, error) {
	if session == nil {
		return nil, ValidationError("session is required")
	}
	if session.Phase.Terminal() {
		return nil, ErrSessionTerminal
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ValidationError("message text is required")
	}

	busy, err := s.replyInFlight(ctx, session.ConversationID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, nil
	}

	// History snapshot before this turn's rows exist; the prompt builder
	// appends the new user text itself.
	history, err := s.messages.ListByConversation(ctx, session.ConversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: session.ConversationID,
		Role:           models.RoleUser,
		Content:        text,
		Status:         models.MessageComplete,
	}
	if err := s.messages.Create(ctx, userMsg); err != nil {
		return nil, err
	}

	placeholder := &models.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: session.ConversationID,
		Role:           models.RoleAssistant,
		Status:         models.MessagePending,
	}
	if err := s.messages.Create(ctx, placeholder); err != nil {
		return nil, err
	}

	return s.streamReply(ctx, session, history, text, placeholder.ID, handlers), nil
}

// RetryLast re-runs the most recent failed assistant turn's underlying
// request, reusing its placeholder row so the author does not re-type.
func (s *conversationService) RetryLast(ctx context.Context, session *models.EvolutionSession, handlers stream.Handlers) (*stream.Channel, error) {
	if session == nil {
		return nil, ValidationError("session is required")
	}
	if session.Phase.Terminal() {
		return nil, ErrSessionTerminal
	}

	busy, err := s.replyInFlight(ctx, session.ConversationID)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, nil
	}

	history, err := s.messages.ListByConversation(ctx, session.ConversationID)
	if err != nil {
		return nil, err
	}

	failedIdx := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant && history[i].Status == models.MessageError {
			failedIdx = i
			break
		}
	}
	if failedIdx == -1 {
		return nil, ErrNoRetryTarget
	}

	userText := ""
	for i := failedIdx - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			userText = history[i].Content
			break
		}
	}
	if userText == "" {
		return nil, fmt.Errorf("no user message found for the failed turn")
	}

	failed := history[failedIdx]
	if err := s.messages.UpdateByID(ctx, failed.ID, map[string]interface{}{
		"content": "",
		"status":  models.MessagePending,
		"error":   nil,
	}); err != nil {
		return nil, err
	}

	// Prompt history stops before the user turn being retried; the builder
	// re-appends the user text.
	prior := history[:failedIdx]
	return s.streamReply(ctx, session, prior, userText, failed.ID, handlers), nil
}

// ReadyToSummarize is true iff at least one assistant message completed, no
// message is streaming, and no summary generation is in flight. It gates
// the advance-to-summary affordance; it never mutates phase itself.
func (s *conversationService) ReadyToSummarize(ctx context.Context, session *models.EvolutionSession) (bool, error) {
	if session == nil {
		return false, ValidationError("session is required")
	}
	complete, err := s.messages.HasComplete(ctx, session.ConversationID)
	if err != nil {
		return false, err
	}
	if !complete {
		return false, nil
	}
	streaming, err := s.messages.HasStreaming(ctx, session.ConversationID)
	if err != nil {
		return false, err
	}
	if streaming {
		return false, nil
	}
	return !s.summaryBusy(session.ID), nil
}

// Teardown aborts the conversation's open reply stream, if any.
func (s *conversationService) Teardown(conversationID string) {
	s.slotMu.Lock()
	slot := s.slots[conversationID]
	s.slotMu.Unlock()
	if slot != nil {
		slot.Abort()
	}
}

// replyInFlight reports whether a reply stream is open for the conversation.
// The slot check covers the window between opening a channel and the
// producer's first row update, when no row is marked streaming yet.
func (s *conversationService) replyInFlight(ctx context.Context, conversationID string) (bool, error) {
	if s.slot(conversationID).Busy() {
		return true, nil
	}
	return s.messages.HasStreaming(ctx, conversationID)
}

func (s *conversationService) slot(conversationID string) *stream.Slot {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.slots[conversationID] == nil {
		s.slots[conversationID] = stream.NewSlot()
	}
	return s.slots[conversationID]
}

func (s *conversationService) streamReply(ctx context.Context, session *models.EvolutionSession, history []models.ChatMessage, userText, messageID string, handlers stream.Handlers) *stream.Channel {
	storyContent := ""
	if story, err := s.stories.GetByID(ctx, session.StoryID); err == nil {
		storyContent = story.Content
	}
	msgs := client.ElicitationMessages(session.PersonaID, storyContent, history, userText)

	// Row updates must survive stream cancellation so the placeholder never
	// sticks in a streaming state.
	persistCtx := context.WithoutCancel(ctx)
	eventCtx := events.WithSession(ctx, session.ID)

	producer := func(ctx context.Context, emit func(stream.Event) bool) {
		// Superseded before running: leave the row alone.
		if ctx.Err() != nil {
			return
		}
		_ = s.messages.UpdateByID(persistCtx, messageID, map[string]interface{}{
			"status": models.MessageStreaming,
		})

		var acc strings.Builder
		full, err := s.llm.StreamText(ctx, msgs, func(text string) error {
			acc.WriteString(text)
			if !emit(stream.Event{Type: stream.EventChunk, Text: text}) {
				return context.Canceled
			}
			_ = s.messages.UpdateByID(persistCtx, messageID, map[string]interface{}{
				"content": acc.String(),
			})
			events.Emit(eventCtx, events.EvolutionEventMessage, events.NewChunk(text))
			return nil
		})
		if err != nil {
			msg := err.Error()
			if errors.Is(err, context.Canceled) {
				msg = "response interrupted"
			}
			_ = s.messages.UpdateByID(persistCtx, messageID, map[string]interface{}{
				"status": models.MessageError,
				"error":  msg,
			})
			emit(stream.Event{Type: stream.EventError, Message: msg, Retryable: retryableError(err)})
			return
		}

		_ = s.messages.UpdateByID(persistCtx, messageID, map[string]interface{}{
			"content": full,
			"status":  models.MessageComplete,
		})
		events.Emit(eventCtx, events.EvolutionEventMessage, events.NewDone(map[string]string{"messageId": messageID}))
		emit(stream.Event{Type: stream.EventDone})
	}

	return s.slot(session.ConversationID).Open(ctx, producer, handlers)
}

func retryableError(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
