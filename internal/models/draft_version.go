package models

import "time"

// DraftVersion is an immutable numbered snapshot of generated or revised
// story text. Only completed streams produce a version; partial or aborted
// generations never persist one. Version numbers are strictly increasing
// per session.
type DraftVersion struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	StoryID       string    `gorm:"size:36;not null;index" json:"storyId"`
	SessionID     string    `gorm:"size:36;not null;index:idx_draft_session_version,unique" json:"sessionId"`
	VersionNumber int       `gorm:"not null;index:idx_draft_session_version,unique" json:"versionNumber"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
}
