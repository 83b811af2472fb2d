// Package extraction implements the segment accumulator mutation rules,
// the LLM-backed signal classifier and structured extractor, and the
// extractor pipeline that turns an accumulator into stored memories
// (§4.6).
package extraction

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ccmemory/ccmemory/internal/store"
)

// MaxCommandChars and MaxErrorChars bound the tool-observation summaries
// appended to the accumulator per post_tool event (§4.6).
const (
	MaxCommandChars = 200
	MaxErrorChars   = 500
)

// Accumulator wraps the store's segment_accumulators row with the
// append-by-tool-kind mutation rules on_post_tool needs.
type Accumulator struct {
	db *store.DB
}

// NewAccumulator wraps a DB.
func NewAccumulator(db *store.DB) *Accumulator {
	return &Accumulator{db: db}
}

// StartSegment opens a fresh accumulator for a session, used by
// on_user_prompt after spawning the extractor for the prior segment.
func (a *Accumulator) StartSegment(ctx context.Context, sessionID, projectID, prompt string, now time.Time) (*store.SegmentAccumulator, error) {
	seg := &store.SegmentAccumulator{
		SessionID:      sessionID,
		ProjectID:      projectID,
		SegmentID:      uuid.NewString(),
		SegmentStartTS: now,
		UserPrompts:    appendCapped(nil, prompt, store.MaxAccumulatorPrompts),
		UpdatedAt:      now,
	}
	return seg, a.db.SaveAccumulator(ctx, seg)
}

// Get loads the current accumulator for a session, or nil if none exists
// (on_user_prompt should treat that as toolCallCount == 0).
func (a *Accumulator) Get(ctx context.Context, sessionID string) (*store.SegmentAccumulator, error) {
	return a.db.GetAccumulator(ctx, sessionID)
}

// ToolEvent is the post_tool hook payload's relevant fields.
type ToolEvent struct {
	ToolName     string
	FilePath     string
	Command      string
	ExitCode     int
	Stderr       string
	Pattern      string
	ResultCount  int
	TodoStatuses []string // status of each todo in a TodoWrite call
}

// ApplyToolEvent appends a lightweight summary of one tool observation by
// kind, always incrementing ToolCallCount last (§4.6 on_post_tool).
// Returns whether a todo_completion extractor should be spawned (≥3
// completed_tasks and toolCallCount ≥ 5).
func (a *Accumulator) ApplyToolEvent(ctx context.Context, seg *store.SegmentAccumulator, ev ToolEvent, now time.Time) (spawnTodoExtractor bool, err error) {
	switch ev.ToolName {
	case "Read":
		seg.FilesRead = appendCapped(seg.FilesRead, ev.FilePath, store.MaxAccumulatorFilesRead)
	case "Write", "Edit":
		seg.FilesModified = appendCapped(seg.FilesModified, ev.FilePath, store.MaxAccumulatorFilesModified)
	case "Bash":
		cmd := truncate(ev.Command, MaxCommandChars)
		hasError := ev.ExitCode != 0
		if len(seg.Commands) < store.MaxAccumulatorCommands {
			seg.Commands = append(seg.Commands, store.CommandObservation{
				Command: cmd, ExitCode: ev.ExitCode, HasError: hasError,
			})
		}
		if hasError && ev.Stderr != "" {
			seg.Errors = appendCapped(seg.Errors, truncate(ev.Stderr, MaxErrorChars), store.MaxAccumulatorErrors)
		}
	case "Grep", "Glob":
		if len(seg.Searches) < store.MaxAccumulatorSearches {
			seg.Searches = append(seg.Searches, store.SearchObservation{
				Pattern: ev.Pattern, ResultCount: ev.ResultCount,
			})
		}
	case "TodoWrite":
		for range ev.TodoStatuses {
			// caller passes one entry per todo with status=="completed"
			seg.CompletedTasks = appendCapped(seg.CompletedTasks, "completed", len(seg.CompletedTasks)+1)
		}
	}

	seg.ToolCallCount++
	seg.UpdatedAt = now

	if err := a.db.SaveAccumulator(ctx, seg); err != nil {
		return false, err
	}

	spawnTodoExtractor = len(seg.CompletedTasks) >= 3 && seg.ToolCallCount >= 5
	return spawnTodoExtractor, nil
}

// Clear deletes the accumulator row after a successful extraction.
func (a *Accumulator) Clear(ctx context.Context, sessionID string) error {
	return a.db.ClearAccumulator(ctx, sessionID)
}

func appendCapped(list []string, item string, cap int) []string {
	if item == "" {
		return list
	}
	if len(list) >= cap {
		return list
	}
	return append(list, item)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
