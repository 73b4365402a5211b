package services

import (
	"context"
	"fmt"
	"sync"

	"evermore/internal/llm/client"
	"evermore/internal/models"
	"evermore/internal/repositories"
)

// SummaryService runs the on-demand, non-streaming summarization of the
// elicitation conversation. One request per session at a time.
type SummaryService interface {
	Startup(ctx context.Context)
	Generate(ctx context.Context, session *models.EvolutionSession) (string, error)
	InFlight(sessionID string) bool
}

type summaryService struct {
	sessions EvolutionService
	messages repositories.ChatMessageRepository
	stories  repositories.StoryRepository
	llm      TextStreamer
	ctx      context.Context

	mu      sync.Mutex
	pending map[string]bool
}

func NewSummaryService(
	sessions EvolutionService,
	messages repositories.ChatMessageRepository,
	stories repositories.StoryRepository,
	llm TextStreamer,
) SummaryService {
	return &summaryService{
		sessions: sessions,
		messages: messages,
		stories:  stories,
		llm:      llm,
		pending:  make(map[string]bool),
	}
}

func (s *summaryService) Startup(ctx context.Context) {
	s.ctx = ctx
}

// InFlight reports whether a summarize request is pending for the session.
// The conversation's ready-to-summarize signal consults this.
func (s *summaryService) InFlight(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[sessionID]
}

// Generate summarizes the conversation and persists the result as the
// session's summary text.
func (s *summaryService) Generate(ctx context.Context, session *models.EvolutionSession) (string, error) {
	if session == nil {
		return "", ValidationError("session is required")
	}
	if session.Phase.Terminal() {
		return "", ErrSessionTerminal
	}

	s.mu.Lock()
	if s.pending[session.ID] {
		s.mu.Unlock()
		return "", ErrSummaryInFlight
	}
	s.pending[session.ID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, session.ID)
		s.mu.Unlock()
	}()

	story, err := s.stories.GetByID(ctx, session.StoryID)
	if err != nil {
		return "", err
	}
	history, err := s.messages.ListByConversation(ctx, session.ConversationID)
	if err != nil {
		return "", err
	}

	text, err := s.llm.Complete(ctx, client.SummaryMessages(story.Content, history))
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	if _, err := s.sessions.SetSummary(ctx, session.ID, text); err != nil {
		return "", err
	}
	return text, nil
}
