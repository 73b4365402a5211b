package services

import (
	"context"

	"gorm.io/gorm"

	"evermore/internal/repositories"
)

// DbServices aggregates all domain services backed by the database.
// Fields use plural names (e.g., Conversations) to align with Go
// conventions seen in service/store containers.
type DbServices struct {
	Evolution     EvolutionService
	Conversations ConversationService
	Summaries     SummaryService
	Drafts        DraftService
	ModelConfigs  ModelConfigService

	Stories repositories.StoryRepository
}

// NewDbServices constructs the service container using repositories backed
// by db. The chat client is injected so tests can substitute a fake.
func NewDbServices(db *gorm.DB, llm TextStreamer) *DbServices {
	sessionRepo := repositories.NewEvolutionSessionRepository(db)
	messageRepo := repositories.NewChatMessageRepository(db)
	draftRepo := repositories.NewDraftVersionRepository(db)
	storyRepo := repositories.NewStoryRepository(db)
	modelSettingRepo := repositories.NewModelSettingRepository(db)

	evolution := NewEvolutionService(sessionRepo, draftRepo, storyRepo)
	summaries := NewSummaryService(evolution, messageRepo, storyRepo, llm)
	conversations := NewConversationService(messageRepo, storyRepo, llm, summaries.InFlight)
	drafts := NewDraftService(sessionRepo, draftRepo, storyRepo, llm)

	return &DbServices{
		Evolution:     evolution,
		Conversations: conversations,
		Summaries:     summaries,
		Drafts:        drafts,
		ModelConfigs:  NewModelConfigService(modelSettingRepo),
		Stories:       storyRepo,
	}
}

// StartDbServices passes the startup context to every service that keeps
// one.
func (s *DbServices) StartDbServices(ctx context.Context) error {
	s.Evolution.Startup(ctx)
	s.Conversations.Startup(ctx)
	s.Summaries.Startup(ctx)
	s.Drafts.Startup(ctx)
	return s.ModelConfigs.Startup(ctx)
}
