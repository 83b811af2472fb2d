package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ccmemory/ccmemory/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.UpsertProject(ctx, "proj-1", "/tmp/proj-1", "proj-1", time.Now())
	require.NoError(t, err)

	return New(db), db
}

func TestCreateThenRecreateDedups(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	res1, err := s.Create(ctx, CreateParams{ProjectID: "proj-1", Content: "Always use tabs, not spaces"}, now)
	require.NoError(t, err)
	require.False(t, res1.Deduped)

	res2, err := s.Create(ctx, CreateParams{ProjectID: "proj-1", Content: "Always use tabs, not spaces"}, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, res2.Deduped)
	require.Equal(t, res1.Memory.ID, res2.Memory.ID)

	got, err := s.Get(ctx, res1.Memory.ID)
	require.NoError(t, err)
	require.Greater(t, got.Salience, res1.Memory.Salience)
}

func TestReinforceDiminishingReturns(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	res, err := s.Create(ctx, CreateParams{ProjectID: "proj-1", Content: "X"}, now)
	require.NoError(t, err)

	_, err = s.Deemphasize(ctx, res.Memory.ID, 0.5, now)
	require.NoError(t, err)

	var lastGain float64 = 1.0
	salience := 0.5
	for i := 0; i < 5; i++ {
		m, err := s.Reinforce(ctx, res.Memory.ID, 0.2, now)
		require.NoError(t, err)
		gain := m.Salience - salience
		require.Less(t, gain, lastGain+0.001)
		lastGain = gain
		salience = m.Salience
	}
	require.Greater(t, salience, 0.8)
	require.LessOrEqual(t, salience, 1.0)
}

func TestReinforceAtCeilingUnchanged(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	res, err := s.Create(ctx, CreateParams{ProjectID: "proj-1", Content: "Y"}, now)
	require.NoError(t, err)
	require.Equal(t, store.MaxSalience, res.Memory.Salience)

	m, err := s.Reinforce(ctx, res.Memory.ID, 0.5, now)
	require.NoError(t, err)
	require.Equal(t, store.MaxSalience, m.Salience)
}

func TestDeemphasizeAtFloorUnchanged(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	res, err := s.Create(ctx, CreateParams{ProjectID: "proj-1", Content: "Z"}, now)
	require.NoError(t, err)

	_, err = s.Deemphasize(ctx, res.Memory.ID, 1.0, now)
	require.NoError(t, err)
	m, err := s.Deemphasize(ctx, res.Memory.ID, 0.3, now)
	require.NoError(t, err)
	require.Equal(t, store.MinSalience, m.Salience)
}

func TestCreateSectorPrecedence(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// MemoryType wins over an explicit Sector when both are given.
	memType := store.MemoryTypeCodebase
	explicitSector := store.SectorEmotional
	res, err := s.Create(ctx, CreateParams{
		ProjectID:  "proj-1",
		Content:    "some content",
		MemoryType: &memType,
		Sector:     &explicitSector,
	}, now)
	require.NoError(t, err)
	want, ok := store.SectorForType(memType)
	require.True(t, ok)
	require.Equal(t, want, res.Memory.Sector)

	// With no MemoryType, an explicit Sector does override classification.
	res2, err := s.Create(ctx, CreateParams{
		ProjectID: "proj-1",
		Content:   "unrelated content with no obvious sector signal",
		Sector:    &explicitSector,
	}, now)
	require.NoError(t, err)
	require.Equal(t, explicitSector, res2.Memory.Sector)
}
