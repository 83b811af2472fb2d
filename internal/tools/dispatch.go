package tools

import (
	"context"
	"encoding/json"

	ccerrors "github.com/ccmemory/ccmemory/internal/errors"
)

// Names lists every tool the editor can call (§6.2), in the order the
// tool_api table documents them.
var Names = []string{
	"memory_search",
	"memory_timeline",
	"memory_add",
	"memory_reinforce",
	"memory_deemphasize",
	"memory_delete",
	"memory_supersede",
	"docs_search",
	"docs_ingest",
	"code_search",
	"code_index",
}

// Call dispatches one named tool call to its handler. An unknown name
// returns the same {"error":{...}} envelope a handler would return for
// bad input, so callers (cmd/ccmemory's tool subcommand) never need a
// second error shape.
func (d *Deps) Call(ctx context.Context, name string, req json.RawMessage) json.RawMessage {
	switch name {
	case "memory_search":
		return d.MemorySearch(ctx, req)
	case "memory_timeline":
		return d.MemoryTimeline(ctx, req)
	case "memory_add":
		return d.MemoryAdd(ctx, req)
	case "memory_reinforce":
		return d.MemoryReinforce(ctx, req)
	case "memory_deemphasize":
		return d.MemoryDeemphasize(ctx, req)
	case "memory_delete":
		return d.MemoryDelete(ctx, req)
	case "memory_supersede":
		return d.MemorySupersede(ctx, req)
	case "docs_search":
		return d.DocsSearch(ctx, req)
	case "docs_ingest":
		return d.DocsIngest(ctx, req)
	case "code_search":
		return d.CodeSearch(ctx, req)
	case "code_index":
		return d.CodeIndex(ctx, req)
	default:
		return errorJSON(ccerrors.ValidationError("unknown tool: "+name, nil))
	}
}
