package rag

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/embedding"
)

// QueryEmbedder embeds a search query into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// ScoredChunk is a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk       models.SourceChunk
	SourceTitle string
	Score       float64
}

// Retriever finds the chunks most relevant to a query.
type Retriever struct {
	db       *gorm.DB
	embedder QueryEmbedder
}

// NewRetriever creates a retriever over the given DB and embedder.
func NewRetriever(db *gorm.DB, embedder QueryEmbedder) *Retriever {
	return &Retriever{db: db, embedder: embedder}
}

// TopK returns the k most similar chunks across all ready sources.
// Chunks without a stored embedding are skipped; a missing vector means the
// embedding job hasn't finished, not that the chunk is relevant.
func (r *Retriever) TopK(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 4
	}

	queryVec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type chunkRow struct {
		models.SourceChunk
		SourceTitle string
	}
	var rows []chunkRow
	err = r.db.Model(&models.SourceChunk{}).
		Select("source_chunks.*, sources.title AS source_title").
		Joins("JOIN sources ON sources.id = source_chunks.source_id AND sources.deleted_at IS NULL").
		Where("sources.status = ? AND source_chunks.embedding_json <> ''", models.SourceStatusReady).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	candidates := make([]ScoredChunk, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, ScoredChunk{
			Chunk:       row.SourceChunk,
			SourceTitle: row.SourceTitle,
		})
	}
	return rankChunks(queryVec, candidates, k), nil
}

// rankChunks scores candidates against the query vector and keeps the top k.
func rankChunks(queryVec []float32, candidates []ScoredChunk, k int) []ScoredChunk {
	scored := make([]ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		vec := c.Chunk.Embedding()
		if vec == nil {
			continue
		}
		c.Score = embedding.CosineSimilarity(queryVec, vec)
		scored = append(scored, c)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
