package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/index"
	"github.com/ccmemory/ccmemory/internal/search"
)

// codeSearchParams is code_search's input (§6.2).
type codeSearchParams struct {
	Query     string `json:"query"`
	ProjectID string `json:"projectId"`
	Language  string `json:"language,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// CodeSearch runs hybrid search restricted to code chunks, optionally
// narrowed to one language.
func (d *Deps) CodeSearch(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p codeSearchParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}
	hits, err := d.Chunks.Search(ctx, search.ChunkOptions{
		Query:     p.Query,
		ProjectID: p.ProjectID,
		OnlyCode:  true,
		Language:  p.Language,
		Limit:     p.Limit,
	})
	if err != nil {
		return result(nil, err)
	}
	return result(toChunkHits(hits), nil)
}

// codeIndexParams is code_index's input.
type codeIndexParams struct {
	ProjectPath string `json:"projectPath"`
	Force       bool   `json:"force,omitempty"`
	DryRun      bool   `json:"dryRun,omitempty"`
}

// CodeIndex runs (or re-runs) the incremental code indexer over a
// project directory, registering the project by path if this is the
// first time it's been indexed.
func (d *Deps) CodeIndex(ctx context.Context, req json.RawMessage) json.RawMessage {
	var p codeIndexParams
	if err := decodeParams(req, &p); err != nil {
		return result(nil, err)
	}

	absPath, err := filepath.Abs(p.ProjectPath)
	if err != nil {
		return result(nil, err)
	}

	proj, err := d.DB.GetProjectByPath(ctx, absPath)
	if err != nil && ccerrors.GetCode(err) != ccerrors.ErrCodeProjectNotFound {
		return result(nil, err)
	}
	if proj == nil {
		name := filepath.Base(absPath)
		proj, err = d.DB.UpsertProject(ctx, uuid.NewString(), absPath, name, time.Now())
		if err != nil {
			return result(nil, err)
		}
	}

	res, err := d.Indexer.Run(ctx, index.Options{
		ProjectID:   proj.ID,
		ProjectRoot: absPath,
		Force:       p.Force,
		DryRun:      p.DryRun,
	})
	return result(res, err)
}
