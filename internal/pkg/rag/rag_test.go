package rag

import (
	"testing"

	"github.com/fluxoalfa/fluxoalfa/app/models"
)

func mustChunk(t *testing.T, vec []float32) models.SourceChunk {
	t.Helper()
	c := models.SourceChunk{}
	if err := c.SetEmbedding(vec); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
	return c
}

func TestRankChunksOrdersBySimilarity(t *testing.T) {
	query := []float32{1, 0}
	candidates := []ScoredChunk{
		{Chunk: mustChunk(t, []float32{0, 1}), SourceTitle: "orthogonal"},
		{Chunk: mustChunk(t, []float32{1, 0}), SourceTitle: "exact"},
		{Chunk: mustChunk(t, []float32{1, 1}), SourceTitle: "diagonal"},
	}

	got := rankChunks(query, candidates, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].SourceTitle != "exact" || got[1].SourceTitle != "diagonal" || got[2].SourceTitle != "orthogonal" {
		t.Fatalf("unexpected ranking: %q %q %q", got[0].SourceTitle, got[1].SourceTitle, got[2].SourceTitle)
	}
	if got[0].Score <= got[1].Score || got[1].Score <= got[2].Score {
		t.Fatalf("scores not descending: %v %v %v", got[0].Score, got[1].Score, got[2].Score)
	}
}

func TestRankChunksTruncatesToK(t *testing.T) {
	query := []float32{1, 0}
	var candidates []ScoredChunk
	for i := 0; i < 10; i++ {
		candidates = append(candidates, ScoredChunk{Chunk: mustChunk(t, []float32{1, float32(i)})})
	}

	got := rankChunks(query, candidates, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 results, got %d", len(got))
	}
}

func TestRankChunksSkipsMissingEmbeddings(t *testing.T) {
	query := []float32{1, 0}
	candidates := []ScoredChunk{
		{Chunk: models.SourceChunk{Content: "not embedded"}},
		{Chunk: mustChunk(t, []float32{1, 0}), SourceTitle: "embedded"},
	}

	got := rankChunks(query, candidates, 5)
	if len(got) != 1 || got[0].SourceTitle != "embedded" {
		t.Fatalf("expected only embedded chunk, got %+v", got)
	}
}

func TestBuildChunkRows(t *testing.T) {
	text := "Hello world. This is a test. Short."
	rows := buildChunkRows(3, text, 20, 1)

	if len(rows) == 0 {
		t.Fatalf("expected chunk rows")
	}
	for i, row := range rows {
		if row.SourceID != 3 {
			t.Fatalf("row %d has wrong source ID %d", i, row.SourceID)
		}
		if row.Position != i {
			t.Fatalf("row %d has position %d", i, row.Position)
		}
		if row.Content == "" {
			t.Fatalf("row %d has empty content", i)
		}
		if row.EmbeddingJSON != "" {
			t.Fatalf("row %d should not be embedded yet", i)
		}
	}
}

func TestBuildChunkRowsEmptyText(t *testing.T) {
	if rows := buildChunkRows(1, "", 100, 2); len(rows) != 0 {
		t.Fatalf("expected no rows for empty text, got %d", len(rows))
	}
	if rows := buildChunkRows(1, "no terminator here", 100, 2); len(rows) != 0 {
		t.Fatalf("expected no rows for text without sentences, got %d", len(rows))
	}
}
