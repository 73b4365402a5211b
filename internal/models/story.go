package models

import "time"

// Story is the narrow slice of the story record the evolution workflow
// touches: Accept replaces Content with the accepted draft, Discard leaves
// it alone. The rest of story management lives elsewhere.
type Story struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	LegacyID  string    `gorm:"size:36;not null;index" json:"legacyId"`
	Title     string    `gorm:"size:255" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
