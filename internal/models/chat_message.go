package models

import "time"

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageStreaming MessageStatus = "streaming"
	MessageComplete  MessageStatus = "complete"
	MessageError     MessageStatus = "error"
)

// ChatMessage is one turn of the elicitation conversation. User messages
// are written synchronously on send; assistant messages start as pending
// placeholders and are mutated in place as stream chunks arrive, then
// finalized to complete or error. At most one message per conversation is
// streaming at a time.
type ChatMessage struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string        `gorm:"size:36;not null;index" json:"conversationId"`
	Role           MessageRole   `gorm:"size:16;not null" json:"role"`
	Content        string        `gorm:"type:text" json:"content"`
	Status         MessageStatus `gorm:"size:16;not null" json:"status"`
	Error          *string       `gorm:"type:text" json:"error"`
	CreatedAt      time.Time     `json:"createdAt"`
}
