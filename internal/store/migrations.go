package store

import (
	"context"
	"fmt"
)

// migration is one forward-only schema step, applied in order and recorded
// in _migrations so Open is idempotent across restarts.
type migration struct {
	Version int
	Name    string
	SQL     []string
}

// migrations is the ordered schema registry (§6.4). Never edit an applied
// migration's SQL in place — append a new one instead.
var migrations = []migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: []string{
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				path TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				started_at TEXT NOT NULL,
				ended_at TEXT,
				summary TEXT,
				context TEXT NOT NULL DEFAULT '{}'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, started_at)`,
			`CREATE TABLE IF NOT EXISTS memories (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
				segment_id TEXT,
				content TEXT NOT NULL,
				summary TEXT,
				context TEXT NOT NULL DEFAULT '{}',
				content_hash TEXT NOT NULL,
				sector TEXT NOT NULL,
				tier TEXT NOT NULL DEFAULT 'session',
				memory_type TEXT,
				simhash INTEGER NOT NULL DEFAULT 0,
				importance REAL NOT NULL DEFAULT 0.5,
				salience REAL NOT NULL DEFAULT 0.5,
				access_count INTEGER NOT NULL DEFAULT 0,
				confidence REAL NOT NULL DEFAULT 0.5,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				last_accessed TEXT NOT NULL,
				valid_from TEXT,
				valid_until TEXT,
				deleted_at TEXT,
				tags TEXT NOT NULL DEFAULT '[]',
				concepts TEXT NOT NULL DEFAULT '[]',
				files TEXT NOT NULL DEFAULT '[]'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id, deleted_at)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_sector ON memories(project_id, sector)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(project_id, tier)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_simhash ON memories(project_id, simhash)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_salience ON memories(project_id, salience)`,
			`CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(project_id, content_hash)`,

			`CREATE TABLE IF NOT EXISTS memory_relationships (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
				target_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
				type TEXT NOT NULL,
				created_at TEXT NOT NULL,
				UNIQUE(source_id, target_id, type)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_relationships_source ON memory_relationships(source_id)`,
			`CREATE INDEX IF NOT EXISTS idx_relationships_target ON memory_relationships(target_id)`,

			`CREATE TABLE IF NOT EXISTS session_memories (
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
				usage_type TEXT NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (session_id, memory_id, usage_type)
			)`,

			`CREATE TABLE IF NOT EXISTS segment_accumulators (
				session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
				project_id TEXT NOT NULL,
				segment_id TEXT NOT NULL,
				segment_start_ts TEXT NOT NULL,
				user_prompts TEXT NOT NULL DEFAULT '[]',
				files_read TEXT NOT NULL DEFAULT '[]',
				files_modified TEXT NOT NULL DEFAULT '[]',
				commands TEXT NOT NULL DEFAULT '[]',
				errors TEXT NOT NULL DEFAULT '[]',
				searches TEXT NOT NULL DEFAULT '[]',
				completed_tasks TEXT NOT NULL DEFAULT '[]',
				tool_call_count INTEGER NOT NULL DEFAULT 0,
				last_assistant_msg TEXT,
				updated_at TEXT NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS embedding_models (
				id TEXT PRIMARY KEY,
				provider TEXT NOT NULL,
				model TEXT NOT NULL,
				dimensions INTEGER NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 0
			)`,

			`CREATE TABLE IF NOT EXISTS memory_vectors (
				memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
				model_id TEXT NOT NULL REFERENCES embedding_models(id),
				embedding BLOB NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				source_path TEXT,
				source_url TEXT,
				source_type TEXT NOT NULL,
				title TEXT,
				full_content TEXT NOT NULL,
				checksum TEXT NOT NULL,
				is_code INTEGER NOT NULL DEFAULT 0,
				language TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_checksum ON documents(project_id, checksum)`,

			`CREATE TABLE IF NOT EXISTS document_chunks (
				id TEXT PRIMARY KEY,
				document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				chunk_index INTEGER NOT NULL,
				content TEXT NOT NULL,
				start_offset INTEGER NOT NULL,
				end_offset INTEGER NOT NULL,
				tokens_estimate INTEGER NOT NULL,
				start_line INTEGER NOT NULL,
				end_line INTEGER NOT NULL,
				symbols TEXT NOT NULL DEFAULT '[]',
				language TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id, chunk_index)`,

			`CREATE TABLE IF NOT EXISTS document_vectors (
				chunk_id TEXT PRIMARY KEY REFERENCES document_chunks(id) ON DELETE CASCADE,
				model_id TEXT NOT NULL REFERENCES embedding_models(id),
				embedding BLOB NOT NULL
			)`,

			`CREATE TABLE IF NOT EXISTS indexed_files (
				project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
				path TEXT NOT NULL,
				checksum TEXT NOT NULL,
				last_indexed_at TEXT NOT NULL,
				language TEXT NOT NULL DEFAULT '',
				gitignore_hash TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (project_id, path)
			)`,

			`CREATE TABLE IF NOT EXISTS code_index_state (
				project_id TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
				last_indexed_at TEXT NOT NULL,
				indexed_files INTEGER NOT NULL DEFAULT 0,
				errors TEXT NOT NULL DEFAULT '[]'
			)`,

			// vector_pending backfill bookkeeping (SPEC_FULL §3).
			`CREATE TABLE IF NOT EXISTS pending_vectors (
				owner_id TEXT PRIMARY KEY,
				owner_kind TEXT NOT NULL, -- "memory" | "chunk"
				project_id TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at TEXT NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0
			)`,

			`CREATE TABLE IF NOT EXISTS config (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,

			// FTS5 keyword index over memory content, kept in sync by triggers.
			`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
				id UNINDEXED,
				content,
				tags,
				tokenize = 'porter unicode61'
			)`,
			`CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
				INSERT INTO memories_fts(rowid, id, content, tags)
				VALUES (new.rowid, new.id, new.content, new.tags);
			END`,
			`CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, id, content, tags)
				VALUES ('delete', old.rowid, old.id, old.content, old.tags);
			END`,
			`CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
				INSERT INTO memories_fts(memories_fts, rowid, id, content, tags)
				VALUES ('delete', old.rowid, old.id, old.content, old.tags);
				INSERT INTO memories_fts(rowid, id, content, tags)
				VALUES (new.rowid, new.id, new.content, new.tags);
			END`,

			// FTS5 keyword index over document chunks, same sync pattern.
			`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
				id UNINDEXED,
				content,
				symbols,
				tokenize = 'porter unicode61'
			)`,
			`CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON document_chunks BEGIN
				INSERT INTO chunks_fts(rowid, id, content, symbols)
				VALUES (new.rowid, new.id, new.content, new.symbols);
			END`,
			`CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON document_chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, id, content, symbols)
				VALUES ('delete', old.rowid, old.id, old.content, old.symbols);
			END`,
			`CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE ON document_chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, id, content, symbols)
				VALUES ('delete', old.rowid, old.id, old.content, old.symbols);
				INSERT INTO chunks_fts(rowid, id, content, symbols)
				VALUES (new.rowid, new.id, new.content, new.symbols);
			END`,
		},
	},
	{
		Version: 2,
		Name:    "extraction_segments",
		SQL: []string{
			// Raw extraction audit trail: one row per extractor invocation,
			// independent of whether it produced any memories.
			`CREATE TABLE IF NOT EXISTS extraction_segments (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				project_id TEXT NOT NULL,
				trigger TEXT NOT NULL,
				segment_start_ts TEXT NOT NULL,
				segment_end_ts TEXT NOT NULL,
				candidates_found INTEGER NOT NULL DEFAULT 0,
				candidates_kept INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_extraction_segments_session ON extraction_segments(session_id)`,
		},
	},
}

// Migrate applies every migration not yet recorded in _migrations, in
// version order, each inside its own transaction.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := d.conn.QueryContext(ctx, `SELECT version FROM _migrations`)
	if err != nil {
		return fmt.Errorf("read _migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := d.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (d *DB) runMigration(ctx context.Context, m migration) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range m.SQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO _migrations (version, name, applied_at) VALUES (?, ?, datetime('now'))`,
		m.Version, m.Name); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
