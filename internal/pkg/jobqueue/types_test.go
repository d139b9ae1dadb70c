package jobqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	tests := []struct {
		name     string
		jobType  JobType
		expected string
	}{
		{"Chunk Embedding", JobTypeChunkEmbedding, "chunk_embedding"},
		{"Source Archive", JobTypeSourceArchive, "source_archive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.jobType))
		})
	}
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{
			name:      "Failed job with retries remaining",
			job:       &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3},
			retryable: true,
		},
		{
			name:      "Failed job with retries exhausted",
			job:       &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3},
			retryable: false,
		},
		{
			name:      "Pending job is not retryable",
			job:       &Job{Status: JobStatusPending, RetryCount: 0, MaxRetries: 3},
			retryable: false,
		},
		{
			name:      "Completed job is not retryable",
			job:       &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 3},
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJobStatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestChunkEmbeddingJobPayloadRoundTrip(t *testing.T) {
	payload := ChunkEmbeddingJobPayload{SourceID: 42, SourceUUID: "uuid-42"}

	decoded, err := ChunkEmbeddingJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *decoded)
}

func TestSourceArchiveJobPayloadRoundTrip(t *testing.T) {
	payload := SourceArchiveJobPayload{SourceID: 7, SourceUUID: "uuid-7"}

	decoded, err := SourceArchiveJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload, *decoded)
}

func TestChunkEmbeddingJobPayloadFromMapToleratesFloats(t *testing.T) {
	// Payloads round-trip through JSON, so numeric fields arrive as float64.
	decoded, err := ChunkEmbeddingJobPayloadFromMap(map[string]interface{}{
		"source_id":   float64(9),
		"source_uuid": "uuid-9",
	})
	require.NoError(t, err)
	assert.Equal(t, uint(9), decoded.SourceID)
	assert.Equal(t, "uuid-9", decoded.SourceUUID)
}
