package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedTextsReturnsInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("missing auth header")
		}

		// Answer out of order; the client must reorder by index.
		resp := embedResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(i), 1}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key")
	c.SetBaseURL(srv.URL)

	got, err := c.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(got))
	}
	for i, e := range got {
		if e[0] != float32(i) {
			t.Fatalf("embedding %d out of order: %v", i, e)
		}
	}
}

func TestEmbedRetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{1}, Index: 0}}})
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key")
	c.SetBaseURL(srv.URL)

	if _, err := c.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestEmbedDoesNotRetryClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad input"}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("test-key")
	c.SetBaseURL(srv.URL)

	if _, err := c.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatalf("expected error on 400")
	}
	if attempts != 1 {
		t.Fatalf("expected no retry on 400, got %d attempts", attempts)
	}
}

func TestEmbedRequiresAPIKey(t *testing.T) {
	c := NewOpenAIClient("")
	if _, err := c.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatalf("expected error without API key")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "mismatched dims", a: []float32{1, 2}, b: []float32{1}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
	}

	for _, tt := range tests {
		if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("%s: CosineSimilarity = %v, want %v", tt.name, got, tt.want)
		}
	}
}
