package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Hosted API defaults. The wire format mirrors the OpenAI-compatible
// /embeddings contract: POST {model, input: []string} -> {data: [{embedding}]}.
const (
	DefaultHostedEndpoint = "https://api.openai.com/v1"
	DefaultHostedModel    = "text-embedding-3-small"
	HostedConnectTimeout  = 10 * time.Second
	HostedPoolSize        = 4
)

// HostedConfig configures the hosted HTTP embedder.
type HostedConfig struct {
	// Endpoint is the base URL of the hosted embeddings API.
	Endpoint string

	// Model is the embedding model name.
	Model string

	// APIKey authenticates requests via the Authorization: Bearer header.
	APIKey string

	// Dimensions can be set to override auto-detection (0 = auto-detect).
	Dimensions int

	// BatchSize for batch embedding requests.
	BatchSize int

	// Timeout for API requests.
	Timeout time.Duration

	// MaxRetries for transient failures.
	MaxRetries int

	// SkipHealthCheck skips the initial availability probe (for testing).
	SkipHealthCheck bool
}

// DefaultHostedConfig returns sensible defaults.
func DefaultHostedConfig() HostedConfig {
	return HostedConfig{
		Endpoint:   DefaultHostedEndpoint,
		Model:      DefaultHostedModel,
		Dimensions: 0,
		BatchSize:  DefaultBatchSize,
		Timeout:    DefaultWarmTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}

type hostedEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type hostedEmbedDatum struct {
	Embedding []float64 `json:"embedding"`
}

type hostedEmbedResponse struct {
	Data []hostedEmbedDatum `json:"data"`
}

// HostedEmbedder generates embeddings using a hosted HTTP API.
type HostedEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HostedConfig
	modelName string
	dims      int

	mu         sync.RWMutex
	closed     bool
	batchIndex int
	final      bool
}

var _ Embedder = (*HostedEmbedder)(nil)

// NewHostedEmbedder creates a new hosted HTTP embedder.
func NewHostedEmbedder(ctx context.Context, cfg HostedConfig) (*HostedEmbedder, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultHostedEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultHostedModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWarmTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	transport := &http.Transport{
		MaxIdleConns:        HostedPoolSize,
		MaxIdleConnsPerHost: HostedPoolSize,
		MaxConnsPerHost:     HostedPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}
	client := &http.Client{Transport: transport}

	e := &HostedEmbedder{
		client:    client,
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, HostedConnectTimeout)
		defer cancel()
		if cfg.Dimensions == 0 {
			dims, err := e.detectDimensions(checkCtx)
			if err != nil {
				transport.CloseIdleConnections()
				return nil, fmt.Errorf("hosted provider unreachable: %w", err)
			}
			e.dims = dims
		}
	}
	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

func (e *HostedEmbedder) detectDimensions(ctx context.Context) (int, error) {
	embeddings, err := e.doEmbed(ctx, []string{"dimension detection"})
	if err != nil {
		return 0, err
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return 0, fmt.Errorf("empty embedding returned")
	}
	return len(embeddings[0]), nil
}

func (e *HostedEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := hostedEmbedRequest{Model: e.modelName, Input: texts}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.config.Endpoint, "/")+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hosted endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("hosted embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result hostedEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	out := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (e *HostedEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < e.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		embeddings, err := e.doEmbed(timeoutCtx, texts)
		cancel()
		if err == nil {
			return embeddings, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", e.config.MaxRetries, lastErr)
}

// Embed generates an embedding for a single text.
func (e *HostedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.dims), nil
	}

	embeddings, err := e.doEmbedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, chunked by BatchSize.
func (e *HostedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}
	if len(nonEmpty) == 0 {
		return results, nil
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}
		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}
		embeddings, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch: %w", err)
		}
		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
		e.mu.Lock()
		e.batchIndex++
		e.mu.Unlock()
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *HostedEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *HostedEmbedder) ModelName() string { return e.modelName }

// Available checks if the hosted endpoint is reachable.
func (e *HostedEmbedder) Available(ctx context.Context) bool {
	_, err := e.doEmbed(ctx, []string{"ping"})
	return err == nil
}

// Close releases transport resources.
func (e *HostedEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

// SetBatchIndex is a no-op for the hosted provider; it has no thermal
// timeout progression to resume.
func (e *HostedEmbedder) SetBatchIndex(idx int) {
	e.mu.Lock()
	e.batchIndex = idx
	e.mu.Unlock()
}

// SetFinalBatch is a no-op for the hosted provider.
func (e *HostedEmbedder) SetFinalBatch(isFinal bool) {
	e.mu.Lock()
	e.final = isFinal
	e.mu.Unlock()
}
