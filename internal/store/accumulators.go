package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// GetAccumulator returns the open accumulator for a session, or nil if none
// has been created yet (the caller should start a fresh segment).
func (d *DB) GetAccumulator(ctx context.Context, sessionID string) (*SegmentAccumulator, error) {
	row := d.conn.QueryRowContext(ctx, `SELECT
		session_id, project_id, segment_id, segment_start_ts, user_prompts, files_read,
		files_modified, commands, errors, searches, completed_tasks, tool_call_count,
		last_assistant_msg, updated_at
	FROM segment_accumulators WHERE session_id = ?`, sessionID)

	var a SegmentAccumulator
	var start, updated string
	var lastMsg sql.NullString
	var prompts, filesRead, filesMod, commands, errs, searches, completed string

	err := row.Scan(&a.SessionID, &a.ProjectID, &a.SegmentID, &start, &prompts, &filesRead,
		&filesMod, &commands, &errs, &searches, &completed, &a.ToolCallCount, &lastMsg, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}

	a.SegmentStartTS, _ = time.Parse(time.RFC3339Nano, start)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	if lastMsg.Valid {
		a.LastAssistantMsg = &lastMsg.String
	}
	_ = json.Unmarshal([]byte(prompts), &a.UserPrompts)
	_ = json.Unmarshal([]byte(filesRead), &a.FilesRead)
	_ = json.Unmarshal([]byte(filesMod), &a.FilesModified)
	_ = json.Unmarshal([]byte(commands), &a.Commands)
	_ = json.Unmarshal([]byte(errs), &a.Errors)
	_ = json.Unmarshal([]byte(searches), &a.Searches)
	_ = json.Unmarshal([]byte(completed), &a.CompletedTasks)
	return &a, nil
}

// SaveAccumulator upserts the accumulator row, overwriting its contents.
func (d *DB) SaveAccumulator(ctx context.Context, a *SegmentAccumulator) error {
	prompts, _ := json.Marshal(nonNilStrings(a.UserPrompts))
	filesRead, _ := json.Marshal(nonNilStrings(a.FilesRead))
	filesMod, _ := json.Marshal(nonNilStrings(a.FilesModified))
	commands, err := json.Marshal(a.Commands)
	if err != nil {
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	errs, _ := json.Marshal(nonNilStrings(a.Errors))
	searches, err := json.Marshal(a.Searches)
	if err != nil {
		return ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	completed, _ := json.Marshal(nonNilStrings(a.CompletedTasks))

	_, err = d.Execute(ctx, `INSERT INTO segment_accumulators (
		session_id, project_id, segment_id, segment_start_ts, user_prompts, files_read,
		files_modified, commands, errors, searches, completed_tasks, tool_call_count,
		last_assistant_msg, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		segment_id = excluded.segment_id,
		segment_start_ts = excluded.segment_start_ts,
		user_prompts = excluded.user_prompts,
		files_read = excluded.files_read,
		files_modified = excluded.files_modified,
		commands = excluded.commands,
		errors = excluded.errors,
		searches = excluded.searches,
		completed_tasks = excluded.completed_tasks,
		tool_call_count = excluded.tool_call_count,
		last_assistant_msg = excluded.last_assistant_msg,
		updated_at = excluded.updated_at`,
		a.SessionID, a.ProjectID, a.SegmentID, fmtTime(a.SegmentStartTS), string(prompts), string(filesRead),
		string(filesMod), string(commands), string(errs), string(searches), string(completed), a.ToolCallCount,
		a.LastAssistantMsg, fmtTime(a.UpdatedAt),
	)
	return err
}

// ClearAccumulator deletes the accumulator row after a successful
// extraction, so the next segment starts from a clean slate.
func (d *DB) ClearAccumulator(ctx context.Context, sessionID string) error {
	_, err := d.Execute(ctx, `DELETE FROM segment_accumulators WHERE session_id = ?`, sessionID)
	return err
}

// RecordExtractionSegment appends an audit row for one extractor invocation.
func (d *DB) RecordExtractionSegment(ctx context.Context, id, sessionID, projectID, trigger string,
	start, end time.Time, found, kept int, extractErr error, now time.Time) error {
	var errMsg any
	if extractErr != nil {
		errMsg = extractErr.Error()
	}
	_, err := d.Execute(ctx, `INSERT INTO extraction_segments (
		id, session_id, project_id, trigger, segment_start_ts, segment_end_ts,
		candidates_found, candidates_kept, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, projectID, trigger, fmtTime(start), fmtTime(end), found, kept, errMsg, fmtTime(now))
	return err
}
