package embed

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// ProviderType represents an embedding provider kind.
type ProviderType string

const (
	// ProviderLocal talks to a local HTTP embedding server (Ollama's
	// /api/embed wire format).
	ProviderLocal ProviderType = "local"

	// ProviderHosted talks to a hosted HTTP embedding API.
	ProviderHosted ProviderType = "hosted"

	// ProviderStatic uses hash-based embeddings (fallback when neither
	// provider is reachable).
	ProviderStatic ProviderType = "static"
)

// NewEmbedder constructs the embedding gateway: given a primary provider and
// a fallback, it probes the primary's availability at construction time and
// falls back if unreachable, returning ErrCodeNoEmbeddingProvider if neither
// is available. The CCMEMORY_EMBEDDER environment variable overrides the
// primary selection; CCMEMORY_EMBED_CACHE=false disables the query cache.
func NewEmbedder(ctx context.Context, primary, fallback ProviderType, model string) (Embedder, error) {
	if envProvider := os.Getenv("CCMEMORY_EMBEDDER"); envProvider != "" {
		primary = ProviderType(strings.ToLower(envProvider))
	}

	embedder, err := newProvider(ctx, primary, model)
	if err != nil {
		if fallback == "" || fallback == primary {
			return nil, ccerrors.EmbeddingUnavailable(fmt.Sprintf("primary provider %q unavailable and no fallback configured", primary), err)
		}
		embedder, err = newProvider(ctx, fallback, model)
		if err != nil {
			return nil, ccerrors.EmbeddingUnavailable(fmt.Sprintf("neither %q nor %q reachable", primary, fallback), err)
		}
	}

	if !isCacheDisabled() {
		embedder = NewCachedEmbedderWithDefaults(embedder)
	}
	return embedder, nil
}

func newProvider(ctx context.Context, provider ProviderType, model string) (Embedder, error) {
	switch provider {
	case ProviderLocal:
		return newLocalEmbedder(ctx, model)
	case ProviderHosted:
		return newHostedEmbedder(ctx, model)
	case ProviderStatic:
		return NewStaticEmbedder768(), nil
	default:
		return newLocalEmbedder(ctx, model)
	}
}

// isCacheDisabled checks if embedding cache is disabled via environment.
func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("CCMEMORY_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}

// newLocalEmbedder builds the local HTTP provider (an Ollama-compatible
// server) with config.yaml/env overrides applied.
func newLocalEmbedder(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultOllamaConfig()
	if model != "" && isOllamaModelName(model) {
		cfg.Model = model
	}

	if host := os.Getenv("CCMEMORY_LOCAL_HOST"); host != "" {
		cfg.Host = host
	}
	if modelOverride := os.Getenv("CCMEMORY_LOCAL_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if timeoutStr := os.Getenv("CCMEMORY_LOCAL_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	if globalThermalConfig.InterBatchDelay > 0 {
		delay := globalThermalConfig.InterBatchDelay
		if delay > MaxInterBatchDelay {
			delay = MaxInterBatchDelay
		}
		cfg.InterBatchDelay = delay
	}
	if globalThermalConfig.TimeoutProgression >= 1.0 {
		progression := globalThermalConfig.TimeoutProgression
		if progression > MaxTimeoutProgression {
			progression = MaxTimeoutProgression
		}
		cfg.TimeoutProgression = progression
	}
	if globalThermalConfig.RetryTimeoutMultiplier >= 1.0 {
		mult := globalThermalConfig.RetryTimeoutMultiplier
		if mult > MaxRetryTimeoutMultiplier {
			mult = MaxRetryTimeoutMultiplier
		}
		cfg.RetryTimeoutMultiplier = mult
	}

	if delayStr := os.Getenv("CCMEMORY_INTER_BATCH_DELAY"); delayStr != "" {
		if delay, err := time.ParseDuration(delayStr); err == nil && delay >= 0 {
			if delay > MaxInterBatchDelay {
				delay = MaxInterBatchDelay
			}
			cfg.InterBatchDelay = delay
		}
	}
	if progressionStr := os.Getenv("CCMEMORY_TIMEOUT_PROGRESSION"); progressionStr != "" {
		if progression, err := parseFloat64(progressionStr); err == nil && progression >= 1.0 {
			if progression > MaxTimeoutProgression {
				progression = MaxTimeoutProgression
			}
			cfg.TimeoutProgression = progression
		}
	}
	if retryMultStr := os.Getenv("CCMEMORY_RETRY_TIMEOUT_MULTIPLIER"); retryMultStr != "" {
		if mult, err := parseFloat64(retryMultStr); err == nil && mult >= 1.0 {
			if mult > MaxRetryTimeoutMultiplier {
				mult = MaxRetryTimeoutMultiplier
			}
			cfg.RetryTimeoutMultiplier = mult
		}
	}

	embedder, err := NewOllamaEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("local embedding provider unavailable: %w", err)
	}
	return embedder, nil
}

// newHostedEmbedder builds the hosted HTTP provider with config.yaml/env
// overrides applied.
func newHostedEmbedder(ctx context.Context, model string) (Embedder, error) {
	cfg := DefaultHostedConfig()
	if model != "" {
		cfg.Model = model
	}
	if endpoint := os.Getenv("CCMEMORY_HOSTED_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if modelOverride := os.Getenv("CCMEMORY_HOSTED_MODEL"); modelOverride != "" {
		cfg.Model = modelOverride
	}
	if apiKey := os.Getenv("CCMEMORY_HOSTED_API_KEY"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	if timeoutStr := os.Getenv("CCMEMORY_HOSTED_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	embedder, err := NewHostedEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("hosted embedding provider unavailable: %w", err)
	}
	return embedder, nil
}

// ThermalConfig holds thermal management settings loaded from config.yaml,
// applied to the local provider's batch/retry timeout progression.
type ThermalConfig struct {
	InterBatchDelay        time.Duration
	TimeoutProgression     float64
	RetryTimeoutMultiplier float64
}

// globalThermalConfig holds config file settings set via SetThermalConfig.
// Env vars still take precedence over these values.
var globalThermalConfig ThermalConfig

// SetThermalConfig sets thermal management config from the user's config
// file. Call before NewEmbedder to have config-file settings take effect.
func SetThermalConfig(cfg ThermalConfig) {
	globalThermalConfig = cfg
}

// NewDefaultEmbedder creates a static embedder (768 dimensions).
//
// Deprecated: ignores configuration and always returns StaticEmbedder768,
// which can cause dimension mismatches against an index built with a
// different embedder. Prefer NewEmbedder.
func NewDefaultEmbedder(ctx context.Context) (Embedder, error) {
	return NewEmbedder(ctx, ProviderStatic, ProviderStatic, "")
}

// ParseProvider converts a string to ProviderType, defaulting to local.
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(s) {
	case "hosted":
		return ProviderHosted
	case "static":
		return ProviderStatic
	case "local", "ollama":
		return ProviderLocal
	default:
		return ProviderLocal
	}
}

// String returns the string representation of ProviderType.
func (p ProviderType) String() string {
	return string(p)
}

// isOllamaModelName checks if a model name looks like an Ollama model.
// Ollama models have a ":" tag (e.g., "qwen3-embedding:8b").
func isOllamaModelName(model string) bool {
	if strings.Contains(model, ":") {
		return true
	}
	if strings.Contains(model, "-v") && (strings.Contains(model, ".") || strings.HasSuffix(model, "-v1") || strings.HasSuffix(model, "-v2")) {
		return false
	}
	if strings.HasSuffix(strings.ToLower(model), ".gguf") {
		return false
	}
	return false
}

// ValidProviders returns all valid provider names.
func ValidProviders() []string {
	return []string{string(ProviderLocal), string(ProviderHosted), string(ProviderStatic)}
}

// IsValidProvider checks if a provider name is valid.
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo describes a constructed embedder.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
}

// GetInfo returns information about an embedder, unwrapping the cache
// wrapper to detect the underlying provider type.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
	}

	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderLocal
	case *HostedEmbedder:
		info.Provider = ProviderHosted
	default:
		info.Provider = ProviderStatic
	}

	return info
}

// MustNewEmbedder creates an embedder and panics on failure. Use only in
// tests or initialization code where failure is fatal.
func MustNewEmbedder(ctx context.Context, primary, fallback ProviderType, model string) Embedder {
	embedder, err := NewEmbedder(ctx, primary, fallback, model)
	if err != nil {
		panic(fmt.Sprintf("failed to create embedder: %v", err))
	}
	return embedder
}

// parseFloat64 parses a string to float64, used for thermal config parsing.
func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
