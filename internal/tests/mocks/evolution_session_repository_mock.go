package mocks

import (
	"context"

	"evermore/internal/models"
	"evermore/internal/repositories"
)

type EvolutionSessionRepositoryMock struct {
	CreateFunc           func(ctx context.Context, session *models.EvolutionSession) error
	GetByIDFunc          func(ctx context.Context, id string) (*models.EvolutionSession, error)
	GetActiveByStoryFunc func(ctx context.Context, storyID string) (*models.EvolutionSession, error)
	UpdateByIDFunc       func(ctx context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error)
	ListByStoryFunc      func(ctx context.Context, storyID string) ([]models.EvolutionSession, error)
}

func (m *EvolutionSessionRepositoryMock) Create(ctx context.Context, session *models.EvolutionSession) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *EvolutionSessionRepositoryMock) GetByID(ctx context.Context, id string) (*models.EvolutionSession, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, repositories.ErrNotFound
}

func (m *EvolutionSessionRepositoryMock) GetActiveByStory(ctx context.Context, storyID string) (*models.EvolutionSession, error) {
	if m.GetActiveByStoryFunc != nil {
		return m.GetActiveByStoryFunc(ctx, storyID)
	}
	return nil, nil
}

func (m *EvolutionSessionRepositoryMock) UpdateByID(ctx context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error) {
	if m.UpdateByIDFunc != nil {
		return m.UpdateByIDFunc(ctx, id, updates)
	}
	return nil, repositories.ErrNotFound
}

func (m *EvolutionSessionRepositoryMock) ListByStory(ctx context.Context, storyID string) ([]models.EvolutionSession, error) {
	if m.ListByStoryFunc != nil {
		return m.ListByStoryFunc(ctx, storyID)
	}
	return nil, nil
}
