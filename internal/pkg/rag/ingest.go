// Package rag implements the knowledge-base pipeline: sources are chunked on
// ingestion, embedded in the background and retrieved by cosine similarity to
// ground chat answers.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/chunker"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/jobqueue"
)

// EmbedJobEnqueuer enqueues the background embedding run for a source.
type EmbedJobEnqueuer interface {
	EnqueueChunkEmbeddingJob(sourceID uint, sourceUUID string) (*jobqueue.Job, error)
}

// Ingestor turns raw documents into chunked, embeddable sources.
type Ingestor struct {
	db      *gorm.DB
	queue   EmbedJobEnqueuer
	maxSize int
	overlap int
}

// NewIngestor creates an ingestor with chunking parameters from app settings.
func NewIngestor(db *gorm.DB, queue EmbedJobEnqueuer) *Ingestor {
	maxSize := chunker.DefaultMaxChunkSize
	overlap := chunker.DefaultOverlapSentences
	if settings := models.GetAppSettings(); settings != nil {
		maxSize = settings.GetChunkMaxSize()
		overlap = settings.GetChunkOverlapSentences()
	}
	return &Ingestor{db: db, queue: queue, maxSize: maxSize, overlap: overlap}
}

// CreateSource stores a new document, chunks it and schedules embedding.
func (in *Ingestor) CreateSource(ctx context.Context, title, rawText string, createdByID uint) (*models.Source, error) {
	_ = ctx
	source := &models.Source{
		UUID:        uuid.New().String(),
		Title:       strings.TrimSpace(title),
		RawText:     rawText,
		Status:      models.SourceStatusPending,
		CreatedByID: createdByID,
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}

	chunks := buildChunkRows(0, rawText, in.maxSize, in.overlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("source text contains no sentences")
	}

	err := in.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(source).Error; err != nil {
			return err
		}
		for i := range chunks {
			chunks[i].SourceID = source.ID
		}
		if err := tx.Create(&chunks).Error; err != nil {
			return err
		}
		return tx.Model(&models.Source{}).Where("id = ?", source.ID).
			Updates(map[string]interface{}{
				"chunk_count": len(chunks),
				"status":      models.SourceStatusIndexing,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store source: %w", err)
	}
	source.ChunkCount = len(chunks)
	source.Status = models.SourceStatusIndexing

	if _, err := in.queue.EnqueueChunkEmbeddingJob(source.ID, source.UUID); err != nil {
		// The source stays in indexing; an admin reindex recovers it.
		log.Errorf("[RAG] Failed to enqueue embedding job for source %d: %v", source.ID, err)
	}
	return source, nil
}

// ReindexSource re-chunks an existing source from its stored raw text and
// schedules a fresh embedding run. Old chunks are replaced atomically.
func (in *Ingestor) ReindexSource(ctx context.Context, sourceID uint) (*models.Source, error) {
	_ = ctx
	var source models.Source
	if err := in.db.First(&source, sourceID).Error; err != nil {
		return nil, err
	}

	chunks := buildChunkRows(source.ID, source.RawText, in.maxSize, in.overlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("source text contains no sentences")
	}

	err := in.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", source.ID).Delete(&models.SourceChunk{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&chunks).Error; err != nil {
			return err
		}
		return tx.Model(&models.Source{}).Where("id = ?", source.ID).
			Updates(map[string]interface{}{
				"chunk_count": len(chunks),
				"status":      models.SourceStatusIndexing,
				"indexed_at":  nil,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reindex source: %w", err)
	}
	source.ChunkCount = len(chunks)
	source.Status = models.SourceStatusIndexing

	if _, err := in.queue.EnqueueChunkEmbeddingJob(source.ID, source.UUID); err != nil {
		log.Errorf("[RAG] Failed to enqueue embedding job for source %d: %v", source.ID, err)
	}
	return &source, nil
}

// DeleteSource removes a source and its chunks.
func (in *Ingestor) DeleteSource(ctx context.Context, sourceID uint) error {
	_ = ctx
	return in.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", sourceID).Delete(&models.SourceChunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Source{}, sourceID).Error
	})
}

// buildChunkRows runs the sentence chunker and shapes the result into rows.
func buildChunkRows(sourceID uint, text string, maxSize, overlap int) []models.SourceChunk {
	pieces := chunker.ChunkTextBySentences(text, maxSize, overlap)
	rows := make([]models.SourceChunk, 0, len(pieces))
	for i, content := range pieces {
		rows = append(rows, models.SourceChunk{
			SourceID: sourceID,
			Position: i,
			Content:  content,
			// Rough heuristic: English averages ~4 characters per token.
			TokenEstimate: len(content) / 4,
		})
	}
	return rows
}
