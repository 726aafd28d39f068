package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Ensure *OllamaClient implements Provider at compile time.
var _ Provider = (*OllamaClient)(nil)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model name (default: nomic-embed-text).
	Model string

	// Dimension is the vector dimension the model produces. Responses with a
	// different dimension are rejected, never truncated or padded.
	Dimension int

	// Timeout is the per-request timeout (default: 15s).
	Timeout time.Duration

	// RequestsPerSec caps the sustained request rate to the backend.
	// Zero disables rate limiting.
	RequestsPerSec float64

	// Breaker tunes the circuit breaker; zero values use defaults.
	Breaker BreakerConfig
}

// embedRequest is the body for the /api/embed endpoint. Input accepts a list
// of texts and the response preserves their order.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaClient generates embeddings via the Ollama HTTP API. All calls go
// through a circuit breaker so a dead backend fails fast, and an optional
// rate limiter keeps batch ingestion from starving interactive queries.
type OllamaClient struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	breaker   *breaker
	limiter   *rate.Limiter
	timeout   time.Duration
}

// NewOllamaClient creates a client with the given configuration, applying
// defaults for unset fields. Dimension must be positive.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding: dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}

	return &OllamaClient{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: cfg.Timeout},
		breaker:   newBreaker(cfg.Breaker),
		limiter:   limiter,
		timeout:   cfg.Timeout,
	}, nil
}

// Embed returns the vector for a single text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany embeds a batch of texts in one request, order-preserving.
func (c *OllamaClient) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	result, err := c.breaker.execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return result.([][]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Embeddings))
	}
	for i, vec := range parsed.Embeddings {
		if len(vec) != c.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(vec), c.dimension)
		}
	}

	return parsed.Embeddings, nil
}

// Dimension returns the configured vector dimension.
func (c *OllamaClient) Dimension() int { return c.dimension }

// Model returns the embedding model name.
func (c *OllamaClient) Model() string { return c.model }

// BreakerState reports the circuit breaker state for health endpoints.
func (c *OllamaClient) BreakerState() string { return c.breaker.state() }
