package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fluxoalfa/fluxoalfa/internal/pkg/env"
)

const (
	defaultBaseURL = "https://api.openai.com/v1/embeddings"
	defaultModel   = "text-embedding-3-small"

	// OpenAI caps embedding requests at 2048 inputs.
	maxBatchSize = 2048

	maxRetries   = 3
	initialDelay = 1 * time.Second
)

// OpenAIClient embeds texts via the OpenAI embeddings API.
type OpenAIClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewOpenAIClient creates an embeddings client with a bounded HTTP timeout.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// NewOpenAIClientFromEnv builds the client from OPENAI_API_KEY and the
// optional OPENAI_EMBEDDING_MODEL / OPENAI_EMBEDDING_URL overrides.
func NewOpenAIClientFromEnv() *OpenAIClient {
	c := NewOpenAIClient(env.GetEnv("OPENAI_API_KEY", ""))
	c.model = env.GetEnv("OPENAI_EMBEDDING_MODEL", defaultModel)
	c.baseURL = env.GetEnv("OPENAI_EMBEDDING_URL", defaultBaseURL)
	return c
}

// SetBaseURL overrides the API endpoint, used by tests and proxies.
func (c *OpenAIClient) SetBaseURL(url string) {
	c.baseURL = url
}

// EmbedTexts embeds a list of texts, batching transparently when the input
// exceeds the API batch limit. The result preserves input order.
func (c *OpenAIClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) <= maxBatchSize {
		return c.embed(ctx, texts)
	}

	var all [][]float32
	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embed(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d failed: %w", i, end, err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// EmbedQuery embeds a single search query.
func (c *OpenAIClient) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := c.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}

func (c *OpenAIClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	body, err := json.Marshal(embedRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s.
			delay := initialDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response body: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr apiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
				lastErr = fmt.Errorf("openai api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
			} else {
				lastErr = fmt.Errorf("openai api error (%d): %s", resp.StatusCode, string(respBody))
			}
			// Retry rate limits and server errors, fail fast on other 4xx.
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return nil, lastErr
		}

		var parsed embedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if len(parsed.Data) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
		}

		embeddings := make([][]float32, len(parsed.Data))
		for _, d := range parsed.Data {
			if d.Index < 0 || d.Index >= len(embeddings) {
				return nil, fmt.Errorf("invalid embedding index: %d", d.Index)
			}
			embeddings[d.Index] = d.Embedding
		}
		return embeddings, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}
