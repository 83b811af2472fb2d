package store

import (
	"context"
	"database/sql"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// UpsertMemoryVector persists one memory's embedding under the given model
// (§6.4 memory_vectors), independent of the in-process HNSW index — this is
// the durable copy a restart reloads into the VectorStore.
func (d *DB) UpsertMemoryVector(ctx context.Context, memoryID, modelID string, vec []float32) error {
	_, err := d.Execute(ctx, `INSERT INTO memory_vectors (memory_id, model_id, embedding) VALUES (?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET model_id = excluded.model_id, embedding = excluded.embedding`,
		memoryID, modelID, EncodeVector(vec))
	return err
}

// UpsertDocumentVectors persists chunk embeddings for one document's chunks
// in a single transaction.
func (d *DB) UpsertDocumentVectors(ctx context.Context, modelID string, chunkIDs []string, vectors [][]float32) error {
	return d.Transaction(ctx, func(tx *sql.Tx) error {
		for i, id := range chunkIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO document_vectors (chunk_id, model_id, embedding) VALUES (?, ?, ?)
				ON CONFLICT(chunk_id) DO UPDATE SET model_id = excluded.model_id, embedding = excluded.embedding`,
				id, modelID, EncodeVector(vectors[i])); err != nil {
				return err
			}
		}
		return nil
	})
}

// VectorRow is one persisted embedding row, used to reload a VectorStore at
// startup.
type VectorRow struct {
	OwnerID string
	Vector  []float32
}

// AllMemoryVectors returns every memory_vectors row for the active model,
// scoped to live (non-deleted) memories.
func (d *DB) AllMemoryVectors(ctx context.Context, modelID string) ([]VectorRow, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT v.memory_id, v.embedding FROM memory_vectors v
		JOIN memories m ON m.id = v.memory_id
		WHERE v.model_id = ? AND m.deleted_at IS NULL`, modelID)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()
	return scanVectorRows(rows)
}

// AllDocumentVectors returns every document_vectors row for the active
// model, used to reload the code-index VectorStore at startup.
func (d *DB) AllDocumentVectors(ctx context.Context, modelID string) ([]VectorRow, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT chunk_id, embedding FROM document_vectors WHERE model_id = ?`, modelID)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	defer rows.Close()
	return scanVectorRows(rows)
}

func scanVectorRows(rows *sql.Rows) ([]VectorRow, error) {
	var out []VectorRow
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
		}
		out = append(out, VectorRow{OwnerID: id, Vector: DecodeVector(blob)})
	}
	return out, rows.Err()
}

// DeleteChunkVectorsForDocument removes every chunk and vector row for a
// document, used before re-chunking on re-ingest and by deleteFile.
func (d *DB) DeleteChunkVectorsForDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id FROM document_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, ccerrors.Wrap(ccerrors.ErrCodeInternal, err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := d.Execute(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return nil, err
	}
	return ids, nil
}
