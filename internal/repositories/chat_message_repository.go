package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"evermore/internal/models"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, msg *models.ChatMessage) error
	UpdateByID(ctx context.Context, id string, updates map[string]interface{}) error
	ListByConversation(ctx context.Context, conversationID string) ([]models.ChatMessage, error)
	HasStreaming(ctx context.Context, conversationID string) (bool, error)
	HasComplete(ctx context.Context, conversationID string) (bool, error)
}

type chatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &chatMessageRepository{db: db}
}

func (r *chatMessageRepository) Create(ctx context.Context, msg *models.ChatMessage) error {
	if msg == nil {
		return fmt.Errorf("message is required")
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatMessageRepository) UpdateByID(ctx context.Context, id string, updates map[string]interface{}) error {
	if id == "" {
		return fmt.Errorf("message ID is required")
	}
	res := r.db.WithContext(ctx).Model(&models.ChatMessage{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *chatMessageRepository) ListByConversation(ctx context.Context, conversationID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *chatMessageRepository) HasStreaming(ctx context.Context, conversationID string) (bool, error) {
	return r.hasStatus(ctx, conversationID, models.MessageStreaming)
}

// HasComplete reports whether at least one assistant turn finished, the
// first half of the ready-to-summarize signal.
func (r *chatMessageRepository) HasComplete(ctx context.Context, conversationID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("conversation_id = ? AND role = ? AND status = ?",
			conversationID, models.RoleAssistant, models.MessageComplete).
		Count(&count).Error
	return count > 0, err
}

func (r *chatMessageRepository) hasStatus(ctx context.Context, conversationID string, status models.MessageStatus) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("conversation_id = ? AND status = ?", conversationID, status).
		Count(&count).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}
	return count > 0, nil
}
