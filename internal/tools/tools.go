// Package tools implements the JSON tool API the editor calls into
// (§6.2): memory_search, memory_timeline, memory_add, memory_reinforce,
// memory_deemphasize, memory_delete, memory_supersede, docs_search,
// docs_ingest, code_search, code_index. Every handler takes a JSON
// object and returns JSON — domain failures are reported as
// {"error":{"code","message"}} rather than a Go error, so callers never
// need a second error-shape to unmarshal.
package tools

import (
	"encoding/json"

	"github.com/ccmemory/ccmemory/internal/docs"
	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
	"github.com/ccmemory/ccmemory/internal/index"
	"github.com/ccmemory/ccmemory/internal/memory"
	"github.com/ccmemory/ccmemory/internal/relationship"
	"github.com/ccmemory/ccmemory/internal/scanner"
	"github.com/ccmemory/ccmemory/internal/search"
	"github.com/ccmemory/ccmemory/internal/store"
)

// Deps wires every package a tool handler can call into.
type Deps struct {
	DB       *store.DB
	Memories *memory.Store
	Search   *search.Engine
	Chunks   *search.ChunkEngine
	Graph    *relationship.Graph
	Docs     *docs.Ingester
	Indexer  *index.Indexer
	Scanner  *scanner.Scanner
}

// errorEnvelope is the fixed {"error":{...}} shape every tool falls back
// to on failure.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorJSON(err error) json.RawMessage {
	var env errorEnvelope
	if ce, ok := err.(*ccerrors.CCError); ok {
		env.Error.Code = ce.Code
		env.Error.Message = ce.Message
	} else {
		env.Error.Code = ccerrors.ErrCodeInternal
		env.Error.Message = err.Error()
	}
	b, _ := json.Marshal(env)
	return b
}

// decodeParams unmarshals a tool call's raw JSON object into dst (a
// pointer), returning a ValidationError shaped for errorJSON on failure.
func decodeParams(req json.RawMessage, dst any) error {
	if len(req) == 0 {
		return nil
	}
	if err := json.Unmarshal(req, dst); err != nil {
		return ccerrors.ValidationError("malformed tool input: "+err.Error(), err)
	}
	return nil
}

// result marshals a successful tool result, or the error envelope if err
// is non-nil. Every exported tool handler ends by returning result(...).
func result(v any, err error) json.RawMessage {
	if err != nil {
		return errorJSON(err)
	}
	b, merr := json.Marshal(v)
	if merr != nil {
		return errorJSON(ccerrors.Wrap(ccerrors.ErrCodeInternal, merr))
	}
	return b
}
