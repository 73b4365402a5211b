package models

import "time"

// WritingStyle parameterizes the voice of the generated draft.
type WritingStyle string

const (
	StyleVivid          WritingStyle = "vivid"
	StyleEmotional      WritingStyle = "emotional"
	StyleConversational WritingStyle = "conversational"
	StyleConcise        WritingStyle = "concise"
	StyleDocumentary    WritingStyle = "documentary"
)

func (s WritingStyle) Valid() bool {
	switch s {
	case StyleVivid, StyleEmotional, StyleConversational, StyleConcise, StyleDocumentary:
		return true
	}
	return false
}

// LengthPreference parameterizes the target length relative to the
// original story text.
type LengthPreference string

const (
	LengthShorter LengthPreference = "shorter"
	LengthSimilar LengthPreference = "similar"
	LengthLonger  LengthPreference = "longer"
)

func (l LengthPreference) Valid() bool {
	switch l {
	case LengthShorter, LengthSimilar, LengthLonger:
		return true
	}
	return false
}

// EvolutionSession tracks one in-progress (or finished) evolution attempt
// for one story. At most one non-terminal session exists per story; the
// repository enforces that transactionally.
type EvolutionSession struct {
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	StoryID        string `gorm:"size:36;not null;index" json:"storyId"`
	LegacyID       string `gorm:"size:36;not null" json:"legacyId"`
	PersonaID      string `gorm:"size:64;not null" json:"personaId"`
	ConversationID string `gorm:"size:36;not null;index" json:"conversationId"`

	Phase            Phase             `gorm:"size:32;not null" json:"phase"`
	SummaryText      *string           `gorm:"type:text" json:"summaryText"`
	WritingStyle     *WritingStyle     `gorm:"size:32" json:"writingStyle"`
	LengthPreference *LengthPreference `gorm:"size:32" json:"lengthPreference"`

	// Latest reviewed draft, set when a generation or revision stream
	// completes. Nil until the first draft commits.
	DraftVersionID     *string `gorm:"size:36" json:"draftVersionId"`
	DraftVersionNumber *int    `json:"draftVersionNumber"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DraftReady reports whether both generation parameters are set, the gate
// for entering the drafting phase.
func (s *EvolutionSession) DraftReady() bool {
	return s.WritingStyle != nil && s.LengthPreference != nil
}
