// Package llm provides the text-completion gateway the extraction
// pipeline's signal classifier and structured extractor call into
// (§4.6). It mirrors internal/embed's Ollama HTTP client shape — a
// pooled *http.Client hitting a local-first provider — rather than
// introducing a separate SDK dependency for what is, at the wire level,
// the same kind of local HTTP call embed already makes.
package llm

import "context"

// Completer generates a bounded text completion from a prompt. MaxTokens
// bounds output length (§4.6's "Budget ≤ 200 tokens output" for the
// classifier, and the 0-5 item cap for the extractor).
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	ModelName() string
	Available(ctx context.Context) bool
}
