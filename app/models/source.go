package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	SourceStatusPending  = "pending"
	SourceStatusIndexing = "indexing"
	SourceStatusReady    = "ready"
	SourceStatusFailed   = "failed"
)

// Source is a knowledge-base document fed into the RAG pipeline. The raw text
// is chunked on ingestion; chunks and their embeddings live in SourceChunk.
type Source struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        string         `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	Title       string         `gorm:"type:varchar(255);not null" json:"title" validate:"required,min=1,max=255"`
	RawText     string         `gorm:"type:longtext;not null" json:"-" validate:"required"`
	Status      string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ChunkCount  int            `gorm:"default:0" json:"chunk_count"`
	ArchiveKey  string         `gorm:"type:varchar(255);default:''" json:"-"`
	CreatedByID uint           `gorm:"index" json:"created_by_id"`
	IndexedAt   *time.Time     `gorm:"type:timestamp;default:null" json:"indexed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *Source) Validate() error {
	return validator.New().Struct(s)
}
