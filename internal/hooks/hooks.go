// Package hooks decodes the editor's hook payloads (§6.1) and dispatches
// them into the extraction pipeline and session lifecycle. Every
// exported entrypoint follows the spec's failure contract: bad input or
// a downstream error is logged and swallowed, never propagated as a
// process exit code, because the editor blocks on the hook handler's
// wall-clock time, not its correctness.
package hooks

import (
	"encoding/json"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// UserPromptInput is the user_prompt hook payload.
type UserPromptInput struct {
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd"`
	Prompt    string `json:"prompt"`
}

// PostToolInput is the post_tool hook payload.
type PostToolInput struct {
	SessionID    string          `json:"session_id"`
	Cwd          string          `json:"cwd"`
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input"`
	ToolResponse json.RawMessage `json:"tool_response"`
}

// CompactOrStopInput is the pre_compact / stop hook payload.
type CompactOrStopInput struct {
	SessionID      string  `json:"session_id"`
	Cwd            string  `json:"cwd"`
	TranscriptPath *string `json:"transcript_path"`
}

// SessionEdgeInput is the session_start / session_end hook payload.
type SessionEdgeInput struct {
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd"`
}

func decode[T any](raw []byte) (*T, error) {
	var v T
	if len(raw) == 0 {
		return nil, ccerrors.ValidationError("empty hook input", nil)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, ccerrors.ValidationError("malformed hook input: "+err.Error(), err)
	}
	return &v, nil
}

// DecodeUserPrompt parses a user_prompt payload.
func DecodeUserPrompt(raw []byte) (*UserPromptInput, error) { return decode[UserPromptInput](raw) }

// DecodePostTool parses a post_tool payload.
func DecodePostTool(raw []byte) (*PostToolInput, error) { return decode[PostToolInput](raw) }

// DecodeCompactOrStop parses a pre_compact/stop payload.
func DecodeCompactOrStop(raw []byte) (*CompactOrStopInput, error) {
	return decode[CompactOrStopInput](raw)
}

// DecodeSessionEdge parses a session_start/session_end payload.
func DecodeSessionEdge(raw []byte) (*SessionEdgeInput, error) { return decode[SessionEdgeInput](raw) }
