package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"evermore/internal/models"
)

type EvolutionSessionRepository interface {
	Create(ctx context.Context, session *models.EvolutionSession) error
	GetByID(ctx context.Context, id string) (*models.EvolutionSession, error)
	GetActiveByStory(ctx context.Context, storyID string) (*models.EvolutionSession, error)
	UpdateByID(ctx context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error)
	ListByStory(ctx context.Context, storyID string) ([]models.EvolutionSession, error)
}

type evolutionSessionRepository struct {
	db *gorm.DB
}

func NewEvolutionSessionRepository(db *gorm.DB) EvolutionSessionRepository {
	return &evolutionSessionRepository{db: db}
}

var terminalPhases = []models.Phase{models.PhaseCompleted, models.PhaseDiscarded}

// Create inserts a new session. The check and the insert run in one
// transaction so two concurrent starts for the same story cannot both
// succeed.
func (r *evolutionSessionRepository) Create(ctx context.Context, session *models.EvolutionSession) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.EvolutionSession{}).
			Where("story_id = ? AND phase NOT IN ?", session.StoryID, terminalPhases).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrActiveSessionConflict
		}
		return tx.Create(session).Error
	})
}

func (r *evolutionSessionRepository) GetByID(ctx context.Context, id string) (*models.EvolutionSession, error) {
	var sess models.EvolutionSession
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&sess).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// GetActiveByStory returns the story's non-terminal session, or nil when
// there is none.
func (r *evolutionSessionRepository) GetActiveByStory(ctx context.Context, storyID string) (*models.EvolutionSession, error) {
	var sess models.EvolutionSession
	err := r.db.WithContext(ctx).
		Where("story_id = ? AND phase NOT IN ?", storyID, terminalPhases).
		Order("created_at desc").
		Take(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

func (r *evolutionSessionRepository) UpdateByID(ctx context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error) {
	if id == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	res := r.db.WithContext(ctx).Model(&models.EvolutionSession{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *evolutionSessionRepository) ListByStory(ctx context.Context, storyID string) ([]models.EvolutionSession, error) {
	var sessions []models.EvolutionSession
	if err := r.db.WithContext(ctx).Where("story_id = ?", storyID).Order("created_at desc").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
