package models

import (
	"encoding/json"
	"time"
)

// SourceChunk is one sentence-aligned slice of a source document, produced by
// the chunker and embedded asynchronously. EmbeddingJSON holds the vector as
// a JSON float array; empty until the embedding job has run.
type SourceChunk struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	SourceID      uint       `gorm:"not null;index:idx_source_chunks_source_pos,priority:1" json:"source_id"`
	Position      int        `gorm:"not null;index:idx_source_chunks_source_pos,priority:2" json:"position"`
	Content       string     `gorm:"type:text;not null" json:"content"`
	TokenEstimate int        `gorm:"default:0" json:"token_estimate"`
	EmbeddingJSON string     `gorm:"type:longtext" json:"-"`
	EmbeddedAt    *time.Time `gorm:"type:timestamp;default:null" json:"embedded_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Embedding decodes the stored vector. Returns nil when not yet embedded.
func (c *SourceChunk) Embedding() []float32 {
	if c.EmbeddingJSON == "" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(c.EmbeddingJSON), &v); err != nil {
		return nil
	}
	return v
}

// SetEmbedding stores the vector and stamps EmbeddedAt.
func (c *SourceChunk) SetEmbedding(v []float32) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	now := time.Now()
	c.EmbeddingJSON = string(data)
	c.EmbeddedAt = &now
	return nil
}
