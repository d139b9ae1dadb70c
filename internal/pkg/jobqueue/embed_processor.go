package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/embedding"
)

// newEmbedder builds the embeddings client; swapped out by tests.
var newEmbedder = func() *embedding.OpenAIClient {
	return embedding.NewOpenAIClientFromEnv()
}

// processChunkEmbeddingJob embeds all pending chunks of a source and marks
// the source ready. The job is retried on API failure; chunks that already
// carry an embedding are skipped so retries don't re-pay for finished work.
func (q *Queue) processChunkEmbeddingJob(ctx context.Context, job *Job) error {
	payload, err := ChunkEmbeddingJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse chunk embedding job payload: %w", err)
	}

	log.Infof("[Embedding] Processing embedding job for source %s (ID: %d)", payload.SourceUUID, payload.SourceID)

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	var source models.Source
	if err := db.First(&source, payload.SourceID).Error; err != nil {
		return fmt.Errorf("failed to find source %d: %w", payload.SourceID, err)
	}

	var chunks []models.SourceChunk
	if err := db.Where("source_id = ? AND embedding_json = ''", source.ID).
		Order("position ASC").
		Find(&chunks).Error; err != nil {
		return fmt.Errorf("failed to load pending chunks: %w", err)
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}

		vectors, err := newEmbedder().EmbedTexts(ctx, texts)
		if err != nil {
			markSourceFailed(source.ID)
			return fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
		}

		for i := range chunks {
			if err := chunks[i].SetEmbedding(vectors[i]); err != nil {
				return fmt.Errorf("failed to encode embedding for chunk %d: %w", chunks[i].ID, err)
			}
			if err := db.Model(&models.SourceChunk{}).Where("id = ?", chunks[i].ID).
				Updates(map[string]interface{}{
					"embedding_json": chunks[i].EmbeddingJSON,
					"embedded_at":    chunks[i].EmbeddedAt,
				}).Error; err != nil {
				return fmt.Errorf("failed to store embedding for chunk %d: %w", chunks[i].ID, err)
			}
		}
	}

	now := time.Now()
	if err := db.Model(&models.Source{}).Where("id = ?", source.ID).
		Updates(map[string]interface{}{
			"status":     models.SourceStatusReady,
			"indexed_at": &now,
		}).Error; err != nil {
		return fmt.Errorf("failed to mark source ready: %w", err)
	}

	log.Infof("[Embedding] Source %s ready (%d chunks embedded)", payload.SourceUUID, len(chunks))

	// Archive the raw text once the source is searchable.
	if _, err := q.EnqueueSourceArchiveJob(source.ID, source.UUID); err != nil {
		log.Errorf("[Embedding] Failed to enqueue archive job for source %d: %v", source.ID, err)
	}
	return nil
}

// markSourceFailed flags a source whose embedding run failed; the retry
// mechanism will flip it back on success.
func markSourceFailed(sourceID uint) {
	db := database.GetDB()
	if db == nil {
		return
	}
	if err := db.Model(&models.Source{}).Where("id = ?", sourceID).
		Update("status", models.SourceStatusFailed).Error; err != nil {
		log.Errorf("[Embedding] Failed to mark source %d failed: %v", sourceID, err)
	}
}

// EnqueueChunkEmbeddingJob creates and enqueues a chunk embedding job
func (q *Queue) EnqueueChunkEmbeddingJob(sourceID uint, sourceUUID string) (*Job, error) {
	payload := ChunkEmbeddingJobPayload{
		SourceID:   sourceID,
		SourceUUID: sourceUUID,
	}
	return q.EnqueueJob(JobTypeChunkEmbedding, payload.ToMap())
}
