package memorycore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openmemory/core/internal/classifier"
	omclock "github.com/openmemory/core/internal/clock"
	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/embedder"
	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/events"
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/vectorstore"
)

func newTestCore(t *testing.T) (*Core, *persistence.MemoryRepo) {
	t.Helper()
	db, err := persistence.OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	tables, err := persistence.NewTableNames(persistence.DialectSQLite, "public", "om")
	require.NoError(t, err)
	require.NoError(t, persistence.Init(context.Background(), db, tables))

	memRepo := persistence.NewMemoryRepo(db, tables.Memories)
	vecRepo := persistence.NewVectorRepo(db, tables.Vectors)
	wpRepo := persistence.NewWaypointRepo(db, tables.Waypoints)
	store := vectorstore.NewSQLiteStore(vecRepo, vectorstore.NewCache(1000, 1<<20), tables.Memories)

	cfg := &config.Config{
		MaxPayloadSize: 64 * 1024,
		Reinforcement:  config.ReinforcementConfig{SalienceBoost: 0.05, MaxSalience: 1.0},
		DecayLambdas:   config.DecayLambdas{Episodic: 0.015, Semantic: 0.005, Procedural: 0.008, Emotional: 0.02, Reflective: 0.001},
	}
	cls := classifier.New(0.6)
	emb := embedder.NewFake(8)
	bus := events.New(100, zerolog.Nop())
	clk := omclock.NewManual(time.Unix(1700000000, 0))

	return New(memRepo, store, wpRepo, db, cls, emb, bus, clk, cfg), memRepo
}

func TestAddDedupIdempotent(t *testing.T) {
	core, memRepo := newTestCore(t)
	ctx := context.Background()
	uid := "u1"

	r1, err := core.Add(ctx, AddInput{Content: "hello world", UserID: &uid})
	require.NoError(t, err)
	require.False(t, r1.Existed)

	r2, err := core.Add(ctx, AddInput{Content: "hello world", UserID: &uid})
	require.NoError(t, err)
	require.True(t, r2.Existed)
	require.Equal(t, r1.ID, r2.ID)

	n, err := memRepo.CountForUser(ctx, &uid)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	mem, err := memRepo.GetByID(ctx, r1.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, mem.Coactivations)
}

func TestAddSectorRouting(t *testing.T) {
	core, _ := newTestCore(t)
	ctx := context.Background()
	uid := "u1"

	cases := []struct {
		content string
		sector  string
	}{
		{"I remember visiting Tokyo last spring", "episodic"},
		{"The speed of light is constant", "semantic"},
		{"Step 1: npm install. Step 2: npm start", "procedural"},
	}
	for _, tc := range cases {
		res, err := core.Add(ctx, AddInput{Content: tc.content, UserID: &uid})
		require.NoError(t, err)
		mem, err := core.Memories.GetByID(ctx, res.ID)
		require.NoError(t, err)
		require.Equal(t, tc.sector, string(mem.PrimarySector))
	}
}

func TestAddRejectsEmptyContent(t *testing.T) {
	core, _ := newTestCore(t)
	_, err := core.Add(context.Background(), AddInput{Content: "   "})
	require.Error(t, err)
}

func TestDeleteRemovesMemory(t *testing.T) {
	core, memRepo := newTestCore(t)
	ctx := context.Background()
	uid := "u1"
	res, err := core.Add(ctx, AddInput{Content: "a memory to delete", UserID: &uid})
	require.NoError(t, err)

	require.NoError(t, core.Delete(ctx, res.ID))

	_, err = memRepo.GetByID(ctx, res.ID)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.KindNotFound))
}

func TestIsolationAcrossUsers(t *testing.T) {
	core, memRepo := newTestCore(t)
	ctx := context.Background()
	u1, u2 := "u1", "u2"

	r1, err := core.Add(ctx, AddInput{Content: "shared content", UserID: &u1})
	require.NoError(t, err)
	r2, err := core.Add(ctx, AddInput{Content: "shared content", UserID: &u2})
	require.NoError(t, err)
	require.NotEqual(t, r1.ID, r2.ID)

	n1, _ := memRepo.CountForUser(ctx, &u1)
	n2, _ := memRepo.CountForUser(ctx, &u2)
	require.EqualValues(t, 1, n1)
	require.EqualValues(t, 1, n2)
}
