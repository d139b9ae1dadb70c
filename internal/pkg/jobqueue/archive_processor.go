package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/s3archive"
)

// processSourceArchiveJob uploads a source's raw text to the S3 archive and
// records the object key. Archiving disabled is treated as success so the
// pipeline works without object storage in development.
func (q *Queue) processSourceArchiveJob(ctx context.Context, job *Job) error {
	payload, err := SourceArchiveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse source archive job payload: %w", err)
	}

	config, err := s3archive.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load S3 config: %w", err)
	}
	if !config.IsEnabled() {
		log.Debugf("[S3Archive] Archiving disabled, skipping source %s", payload.SourceUUID)
		return nil
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	var source models.Source
	if err := db.First(&source, payload.SourceID).Error; err != nil {
		return fmt.Errorf("failed to find source %d: %w", payload.SourceID, err)
	}

	client, err := s3archive.NewClient(config)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}

	now := time.Now()
	objectKey := config.GetObjectKey(source.UUID, now.Year(), int(now.Month()))

	result, err := client.UploadText(ctx, objectKey, source.RawText)
	if err != nil {
		return fmt.Errorf("failed to upload source text: %w", err)
	}

	if err := db.Model(&models.Source{}).Where("id = ?", source.ID).
		Update("archive_key", result.ObjectKey).Error; err != nil {
		return fmt.Errorf("failed to store archive key: %w", err)
	}

	log.Infof("[S3Archive] Archived source %s to s3://%s/%s", source.UUID, result.BucketName, result.ObjectKey)
	return nil
}

// EnqueueSourceArchiveJob creates and enqueues a source archive job
func (q *Queue) EnqueueSourceArchiveJob(sourceID uint, sourceUUID string) (*Job, error) {
	payload := SourceArchiveJobPayload{
		SourceID:   sourceID,
		SourceUUID: sourceUUID,
	}
	return q.EnqueueJob(JobTypeSourceArchive, payload.ToMap())
}
