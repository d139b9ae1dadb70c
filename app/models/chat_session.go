package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatSession groups the messages of one conversation for a user.
type ChatSession struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UUID         string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	UserID       uint           `gorm:"not null;index" json:"user_id"`
	Title        string         `gorm:"type:varchar(255);default:''" json:"title"`
	MessageCount int            `gorm:"default:0" json:"message_count"`
	LastActiveAt *time.Time     `gorm:"type:timestamp;default:null" json:"last_active_at,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}
