package mocks

import (
	"context"

	"evermore/internal/models"
	"evermore/internal/repositories"
)

type DraftVersionRepositoryMock struct {
	CreateFunc          func(ctx context.Context, storyID, sessionID, content string) (*models.DraftVersion, error)
	GetByIDFunc         func(ctx context.Context, id string) (*models.DraftVersion, error)
	LatestBySessionFunc func(ctx context.Context, sessionID string) (*models.DraftVersion, error)
	ListBySessionFunc   func(ctx context.Context, sessionID string) ([]models.DraftVersion, error)
}

func (m *DraftVersionRepositoryMock) Create(ctx context.Context, storyID, sessionID, content string) (*models.DraftVersion, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, storyID, sessionID, content)
	}
	return &models.DraftVersion{StoryID: storyID, SessionID: sessionID, Content: content, VersionNumber: 1}, nil
}

func (m *DraftVersionRepositoryMock) GetByID(ctx context.Context, id string) (*models.DraftVersion, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, repositories.ErrNotFound
}

func (m *DraftVersionRepositoryMock) LatestBySession(ctx context.Context, sessionID string) (*models.DraftVersion, error) {
	if m.LatestBySessionFunc != nil {
		return m.LatestBySessionFunc(ctx, sessionID)
	}
	return nil, nil
}

func (m *DraftVersionRepositoryMock) ListBySession(ctx context.Context, sessionID string) ([]models.DraftVersion, error) {
	if m.ListBySessionFunc != nil {
		return m.ListBySessionFunc(ctx, sessionID)
	}
	return nil, nil
}
