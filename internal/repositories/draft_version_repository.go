package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"evermore/internal/models"
)

type DraftVersionRepository interface {
	Create(ctx context.Context, storyID, sessionID, content string) (*models.DraftVersion, error)
	GetByID(ctx context.Context, id string) (*models.DraftVersion, error)
	LatestBySession(ctx context.Context, sessionID string) (*models.DraftVersion, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.DraftVersion, error)
}

type draftVersionRepository struct {
	db *gorm.DB
}

func NewDraftVersionRepository(db *gorm.DB) DraftVersionRepository {
	return &draftVersionRepository{db: db}
}

// Create persists a new version with the next number for the session.
// Number allocation and the insert share a transaction, backed by the unique
// (session_id, version_number) index.
func (r *draftVersionRepository) Create(ctx context.Context, storyID, sessionID, content string) (*models.DraftVersion, error) {
	if storyID == "" || sessionID == "" {
		return nil, fmt.Errorf("story ID and session ID are required")
	}
	version := &models.DraftVersion{
		ID:        uuid.NewString(),
		StoryID:   storyID,
		SessionID: sessionID,
		Content:   content,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var max int64
		if err := tx.Model(&models.DraftVersion{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		version.VersionNumber = int(max) + 1
		return tx.Create(version).Error
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

func (r *draftVersionRepository) GetByID(ctx context.Context, id string) (*models.DraftVersion, error) {
	var v models.DraftVersion
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// LatestBySession returns the highest-numbered version, or nil when the
// session has no committed drafts yet.
func (r *draftVersionRepository) LatestBySession(ctx context.Context, sessionID string) (*models.DraftVersion, error) {
	var v models.DraftVersion
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("version_number desc").
		Take(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func (r *draftVersionRepository) ListBySession(ctx context.Context, sessionID string) ([]models.DraftVersion, error) {
	var versions []models.DraftVersion
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("version_number asc").Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}
