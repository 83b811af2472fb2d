package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCallDispatchesToMemoryAdd(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()

	raw := d.Call(ctx, "memory_add", mustJSON(t, map[string]any{
		"content":   "dispatched via Call",
		"projectId": "proj-1",
	}))
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Empty(t, env.Error.Code)
}

func TestCallUnknownToolReturnsErrorEnvelope(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()

	raw := d.Call(ctx, "not_a_real_tool", json.RawMessage(`{}`))
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(raw, &env))
	require.NotEmpty(t, env.Error.Code)
}

func TestNamesCoversEveryHandler(t *testing.T) {
	require.Len(t, Names, 11)
}
