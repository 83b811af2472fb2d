package llm

import "context"

// StaticCompleter is the no-provider fallback: it never calls out, and
// always reports a neutral classification / empty extraction. Mirrors
// embed.StaticEmbedder768's role as the hash-based fallback when neither
// embedding provider is reachable — here the "fallback" is simply
// declining to extract, which §4.6's failure semantics already treat as
// a safe degraded mode (the extractor is idempotent and a quiet segment
// does no harm).
type StaticCompleter struct{}

var _ Completer = StaticCompleter{}

// Complete always returns an empty JSON array ("[]"), whatever the prompt.
// The extractor reads it as zero candidates; the classifier cannot decode
// it into a Signal and falls back to a non-extractable context signal.
func (StaticCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "[]", nil
}

// ModelName identifies the fallback for logging.
func (StaticCompleter) ModelName() string { return "static:noop" }

// Available is always true — there is nothing to probe.
func (StaticCompleter) Available(ctx context.Context) bool { return true }
