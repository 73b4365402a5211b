package mocks

import (
	"context"

	"evermore/internal/models"
)

type ChatMessageRepositoryMock struct {
	CreateFunc             func(ctx context.Context, msg *models.ChatMessage) error
	UpdateByIDFunc         func(ctx context.Context, id string, updates map[string]interface{}) error
	ListByConversationFunc func(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	HasStreamingFunc       func(ctx context.Context, conversationID string) (bool, error)
	HasCompleteFunc        func(ctx context.Context, conversationID string) (bool, error)
}

func (m *ChatMessageRepositoryMock) Create(ctx context.Context, msg *models.ChatMessage) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, msg)
	}
	return nil
}

func (m *ChatMessageRepositoryMock) UpdateByID(ctx context.Context, id string, updates map[string]interface{}) error {
	if m.UpdateByIDFunc != nil {
		return m.UpdateByIDFunc(ctx, id, updates)
	}
	return nil
}

func (m *ChatMessageRepositoryMock) ListByConversation(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	if m.ListByConversationFunc != nil {
		return m.ListByConversationFunc(ctx, conversationID)
	}
	return nil, nil
}

func (m *ChatMessageRepositoryMock) HasStreaming(ctx context.Context, conversationID string) (bool, error) {
	if m.HasStreamingFunc != nil {
		return m.HasStreamingFunc(ctx, conversationID)
	}
	return false, nil
}

func (m *ChatMessageRepositoryMock) HasComplete(ctx context.Context, conversationID string) (bool, error) {
	if m.HasCompleteFunc != nil {
		return m.HasCompleteFunc(ctx, conversationID)
	}
	return false, nil
}
