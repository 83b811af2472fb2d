package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// DefaultOllamaHost matches internal/embed's default local provider
// endpoint — classifier/extractor calls and embedding calls talk to the
// same local Ollama instance unless overridden.
const DefaultOllamaHost = "http://localhost:11434"

// DefaultOllamaModel is a small instruction-tuned model, sized for the
// classifier's 200-token budget and the extractor's short JSON output.
const DefaultOllamaModel = "qwen2.5:3b-instruct"

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 20 * time.Second

// OllamaCompleter calls Ollama's /api/generate with stream disabled.
type OllamaCompleter struct {
	client  *http.Client
	host    string
	model   string
	breaker *ccerrors.CircuitBreaker
}

var _ Completer = (*OllamaCompleter)(nil)

// NewOllamaCompleter builds a completer against host (DefaultOllamaHost
// if empty) and model (DefaultOllamaModel if empty). A local Ollama
// instance that's down fails every call with the same dial error until
// it comes back; the circuit breaker trips after repeated failures so
// the extraction pipeline's per-call timeout (§4.6, 10s/30s hook
// budgets) isn't paid out on every single extraction while it's down.
func NewOllamaCompleter(host, model string) *OllamaCompleter {
	if host == "" {
		host = DefaultOllamaHost
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaCompleter{
		client:  &http.Client{Timeout: DefaultTimeout},
		host:    host,
		model:   model,
		breaker: ccerrors.NewCircuitBreaker("ollama-completer"),
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete asks the model for a JSON response (format=json) bounded to
// maxTokens, the shape both the classifier and extractor rely on. Routed
// through the circuit breaker: once Ollama has failed enough times in a
// row, Complete fails immediately with ErrCircuitOpen instead of
// re-dialing a host that's down.
func (o *OllamaCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var result string
	err := o.breaker.Execute(func() error {
		var completeErr error
		result, completeErr = o.complete(ctx, prompt, maxTokens)
		return completeErr
	})
	return result, err
}

func (o *OllamaCompleter) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
		Options: generateOptions{
			NumPredict:  maxTokens,
			Temperature: 0.1,
		},
	})
	if err != nil {
		return "", ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", ccerrors.New(ccerrors.ErrCodeNetworkUnavailable, "llm generate request failed: "+err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", ccerrors.New(ccerrors.ErrCodeUpstreamMalformed, fmt.Sprintf("llm generate returned %d: %s", resp.StatusCode, string(b)), nil)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", ccerrors.New(ccerrors.ErrCodeUpstreamMalformed, "malformed llm response: "+err.Error(), err)
	}
	return out.Response, nil
}

// ModelName returns the configured model identifier.
func (o *OllamaCompleter) ModelName() string {
	return o.model
}

// Available probes the host's /api/tags endpoint.
func (o *OllamaCompleter) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
