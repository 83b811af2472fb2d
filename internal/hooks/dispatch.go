package hooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ccmemory/ccmemory/internal/coordinator"
	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/extraction"
	"github.com/ccmemory/ccmemory/internal/llm"
	"github.com/ccmemory/ccmemory/internal/session"
	"github.com/ccmemory/ccmemory/internal/store"
)

// UserPromptTimeout and PostToolTimeout are the hard per-call budgets
// §6's failure semantics require (user_prompt ≤ 30s, post_tool ≤ 10s).
const (
	UserPromptTimeout = 30 * time.Second
	PostToolTimeout   = 10 * time.Second
)

// Deps wires a hook Dispatcher to the session/extraction/coordinator
// subsystems. Registry is optional: a nil value just skips client
// registration. Memory/relationship event publishing is wired at the
// memory.Store/relationship.Graph level (SetEventBus), not here.
type Deps struct {
	DB       *store.DB
	Sessions *session.Manager
	Acc      *extraction.Accumulator
	Pipeline *extraction.Pipeline
	LLM      llm.Completer
	Registry *coordinator.ClientRegistry
}

// Dispatcher handles one decoded hook payload at a time. Every method
// swallows its own errors after logging: a hook handler "must exit 0
// even on bad input" (§6.1), and callers (cmd/ccmemory's hook
// subcommands) are expected to always exit 0 regardless of what these
// methods return. The error return exists for tests and logging context,
// not for callers to branch on.
type Dispatcher struct {
	d Deps
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(d Deps) *Dispatcher {
	return &Dispatcher{d: d}
}

func (h *Dispatcher) resolveProject(ctx context.Context, cwd string, now time.Time) (*store.Project, error) {
	absPath, err := filepath.Abs(cwd)
	if err != nil {
		absPath = cwd
	}
	proj, err := h.d.DB.GetProjectByPath(ctx, absPath)
	if err == nil {
		return proj, nil
	}
	if ccerrors.GetCode(err) != ccerrors.ErrCodeProjectNotFound {
		return nil, err
	}
	name := filepath.Base(absPath)
	return h.d.DB.UpsertProject(ctx, uuid.NewString(), absPath, name, now)
}

// OnUserPrompt implements on_user_prompt (§4.6): ensure project/session,
// spawn a background extractor for the prior segment if it saw any tool
// calls, classify the new prompt's signal, and seed a fresh accumulator.
func (h *Dispatcher) OnUserPrompt(ctx context.Context, in *UserPromptInput, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, UserPromptTimeout)
	defer cancel()

	proj, err := h.resolveProject(ctx, in.Cwd, now)
	if err != nil {
		slog.Warn("on_user_prompt: resolve project failed", slog.String("error", err.Error()))
		return err
	}
	if _, err := h.d.Sessions.Open(ctx, in.SessionID, proj.ID, now); err != nil {
		slog.Warn("on_user_prompt: open session failed", slog.String("error", err.Error()))
	}

	prior, err := h.d.Acc.Get(ctx, in.SessionID)
	if err != nil {
		slog.Warn("on_user_prompt: load accumulator failed", slog.String("error", err.Error()))
	}
	if prior != nil && prior.ToolCallCount > 0 {
		if err := extraction.Spawn(in.SessionID, proj.ID, "user_prompt"); err != nil {
			slog.Warn("on_user_prompt: spawn extractor failed", slog.String("error", err.Error()))
		}
	}

	sig, err := extraction.Classify(ctx, h.d.LLM, in.Prompt)
	if err != nil {
		slog.Warn("on_user_prompt: classify failed", slog.String("error", err.Error()))
	}

	if _, err := h.d.Acc.StartSegment(ctx, in.SessionID, proj.ID, in.Prompt, now); err != nil {
		slog.Warn("on_user_prompt: start segment failed", slog.String("error", err.Error()))
		return err
	}
	if sig != nil {
		slog.Debug("classified prompt", slog.String("category", string(sig.Category)), slog.Bool("extractable", sig.Extractable))
	}
	return nil
}

// toolInputShape covers the fields any of the recognized tool kinds
// might populate in tool_input/tool_response; unrecognized tools simply
// leave every field zero and only bump toolCallCount.
type toolInputShape struct {
	FilePath string `json:"file_path"`
	Command  string `json:"command"`
	Pattern  string `json:"pattern"`
	Todos    []struct {
		Status string `json:"status"`
	} `json:"todos"`
}

type toolResponseShape struct {
	ExitCode    int    `json:"exit_code"`
	Stderr      string `json:"stderr"`
	ResultCount int    `json:"result_count"`
}

// buildToolEvent translates the editor's loosely-typed tool_input/
// tool_response JSON into the fields extraction.Accumulator cares about
// for in.ToolName, per §4.6's on_post_tool table.
func buildToolEvent(in *PostToolInput) extraction.ToolEvent {
	var input toolInputShape
	_ = json.Unmarshal(in.ToolInput, &input)
	var resp toolResponseShape
	_ = json.Unmarshal(in.ToolResponse, &resp)

	ev := extraction.ToolEvent{ToolName: in.ToolName}
	switch in.ToolName {
	case "Read":
		ev.FilePath = input.FilePath
	case "Write", "Edit":
		ev.FilePath = input.FilePath
	case "Bash":
		ev.Command = input.Command
		ev.ExitCode = resp.ExitCode
		ev.Stderr = resp.Stderr
	case "Grep", "Glob":
		ev.Pattern = input.Pattern
		ev.ResultCount = resp.ResultCount
	case "TodoWrite":
		for _, t := range input.Todos {
			if t.Status == "completed" {
				ev.TodoStatuses = append(ev.TodoStatuses, t.Status)
			}
		}
	}
	return ev
}

// OnPostTool implements on_post_tool (§4.6), translating the editor's
// loosely-typed tool_input/tool_response into one extraction.ToolEvent
// and applying it to the session's accumulator.
func (h *Dispatcher) OnPostTool(ctx context.Context, in *PostToolInput, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, PostToolTimeout)
	defer cancel()

	proj, err := h.resolveProject(ctx, in.Cwd, now)
	if err != nil {
		slog.Warn("on_post_tool: resolve project failed", slog.String("error", err.Error()))
		return err
	}

	seg, err := h.d.Acc.Get(ctx, in.SessionID)
	if err != nil {
		slog.Warn("on_post_tool: load accumulator failed", slog.String("error", err.Error()))
		return err
	}
	if seg == nil {
		seg, err = h.d.Acc.StartSegment(ctx, in.SessionID, proj.ID, "", now)
		if err != nil {
			slog.Warn("on_post_tool: start segment failed", slog.String("error", err.Error()))
			return err
		}
	}

	spawnTodo, err := h.d.Acc.ApplyToolEvent(ctx, seg, buildToolEvent(in), now)
	if err != nil {
		slog.Warn("on_post_tool: apply event failed", slog.String("error", err.Error()))
		return err
	}
	if spawnTodo {
		if err := extraction.Spawn(in.SessionID, proj.ID, "todo_completion"); err != nil {
			slog.Warn("on_post_tool: spawn extractor failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// OnPreCompact implements on_pre_compact: spawn an extractor for the
// current segment if any tool calls were observed.
func (h *Dispatcher) OnPreCompact(ctx context.Context, in *CompactOrStopInput, now time.Time) error {
	return h.spawnIfActive(ctx, in, "pre_compact", now)
}

// OnStop implements on_stop: always spawn an extractor for the segment,
// transcript or not.
func (h *Dispatcher) OnStop(ctx context.Context, in *CompactOrStopInput, now time.Time) error {
	proj, err := h.resolveProject(ctx, in.Cwd, now)
	if err != nil {
		slog.Warn("on_stop: resolve project failed", slog.String("error", err.Error()))
		return err
	}
	if err := extraction.Spawn(in.SessionID, proj.ID, "stop"); err != nil {
		slog.Warn("on_stop: spawn extractor failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (h *Dispatcher) spawnIfActive(ctx context.Context, in *CompactOrStopInput, trigger string, now time.Time) error {
	proj, err := h.resolveProject(ctx, in.Cwd, now)
	if err != nil {
		slog.Warn("spawnIfActive: resolve project failed", slog.String("trigger", trigger), slog.String("error", err.Error()))
		return err
	}
	seg, err := h.d.Acc.Get(ctx, in.SessionID)
	if err != nil {
		slog.Warn("spawnIfActive: load accumulator failed", slog.String("error", err.Error()))
		return err
	}
	if seg == nil || seg.ToolCallCount == 0 {
		return nil
	}
	if err := extraction.Spawn(in.SessionID, proj.ID, trigger); err != nil {
		slog.Warn("spawnIfActive: spawn extractor failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// OnSessionStart implements on_session_start: create the session row and
// register the client with the coordinator. No context injection, per
// spec.
func (h *Dispatcher) OnSessionStart(ctx context.Context, in *SessionEdgeInput, now time.Time) error {
	proj, err := h.resolveProject(ctx, in.Cwd, now)
	if err != nil {
		slog.Warn("on_session_start: resolve project failed", slog.String("error", err.Error()))
		return err
	}
	if _, err := h.d.Sessions.Open(ctx, in.SessionID, proj.ID, now); err != nil {
		slog.Warn("on_session_start: open session failed", slog.String("error", err.Error()))
		return err
	}
	if h.d.Registry != nil {
		if err := h.d.Registry.Register(in.SessionID); err != nil {
			slog.Warn("on_session_start: register client failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// OnSessionEnd implements on_session_end: end the session row and
// unregister the client.
func (h *Dispatcher) OnSessionEnd(ctx context.Context, in *SessionEdgeInput, now time.Time) error {
	if err := h.d.Sessions.End(ctx, in.SessionID, now, nil); err != nil {
		slog.Warn("on_session_end: end session failed", slog.String("error", err.Error()))
	}
	if h.d.Registry != nil {
		if err := h.d.Registry.Unregister(in.SessionID); err != nil {
			slog.Warn("on_session_end: unregister client failed", slog.String("error", err.Error()))
		}
	}
	return nil
}
