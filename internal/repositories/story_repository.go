package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"evermore/internal/models"
)

// StoryRepository is the narrow slice of story persistence the evolution
// workflow needs: reading the current text and replacing it on accept.
type StoryRepository interface {
	GetByID(ctx context.Context, id string) (*models.Story, error)
	UpdateContent(ctx context.Context, id, content string) error
}

type storyRepository struct {
	db *gorm.DB
}

func NewStoryRepository(db *gorm.DB) StoryRepository {
	return &storyRepository{db: db}
}

func (r *storyRepository) GetByID(ctx context.Context, id string) (*models.Story, error) {
	var story models.Story
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&story).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &story, nil
}

func (r *storyRepository) UpdateContent(ctx context.Context, id, content string) error {
	if id == "" {
		return fmt.Errorf("story ID is required")
	}
	res := r.db.WithContext(ctx).Model(&models.Story{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
