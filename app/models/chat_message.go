package models

import "time"

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is a single turn in a chat session. ContextJSON records which
// source chunks were retrieved for an assistant turn, for debugging retrieval
// quality.
type ChatMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SessionID   uint      `gorm:"not null;index" json:"session_id"`
	Role        string    `gorm:"type:varchar(20);not null" json:"role"`
	Content     string    `gorm:"type:longtext;not null" json:"content"`
	ContextJSON string    `gorm:"type:longtext" json:"-"`
	TokensUsed  int       `gorm:"default:0" json:"tokens_used"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
