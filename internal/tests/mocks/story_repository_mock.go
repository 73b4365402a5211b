package mocks

import (
	"context"

	"evermore/internal/models"
)

type StoryRepositoryMock struct {
	GetByIDFunc       func(ctx context.Context, id string) (*models.Story, error)
	UpdateContentFunc func(ctx context.Context, id, content string) error
}

func (m *StoryRepositoryMock) GetByID(ctx context.Context, id string) (*models.Story, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.Story{ID: id, Title: "Untitled", Content: "original content"}, nil
}

func (m *StoryRepositoryMock) UpdateContent(ctx context.Context, id, content string) error {
	if m.UpdateContentFunc != nil {
		return m.UpdateContentFunc(ctx, id, content)
	}
	return nil
}
