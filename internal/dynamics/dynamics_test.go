package dynamics

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
	"github.com/openmemory/core/internal/events"
	"github.com/openmemory/core/internal/memorycore"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/vectorstore"
	"github.com/openmemory/core/internal/waypoint"
)

func newTestDynamics(t *testing.T) (*Dynamics, *memorycore.Core, *omclock.Manual) {
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
	userRepo := persistence.NewUserRepo(db, tables.Users)
	store := vectorstore.NewSQLiteStore(vecRepo, vectorstore.NewCache(1000, 1<<20), tables.Memories)

	cfg := &config.Config{
		MaxPayloadSize: 64 * 1024,
		Scoring:        config.ScoringWeights{Keyword: 1.0},
		Dynamics:       config.DynamicsCoefficients{Eta: 0.1, GammaGraph: 0.4, TauEnergy: 0.01, TauRecencySeconds: 86400},
		Reinforcement:  config.ReinforcementConfig{SalienceBoost: 0.05, MaxSalience: 1.0, PruneThreshold: 0.02, WaypointBoost: 0.05, MaxWaypointWeight: 1.0},
		DecayLambdas:   config.DecayLambdas{Episodic: 0.015, Semantic: 0.005, Procedural: 0.008, Emotional: 0.02, Reflective: 0.001},
		Decay:          config.DecayConfig{ColdThreshold: 0.05, Ratio: 1.0, BatchSize: 100, SleepMs: 0},
	}
	cls := classifier.New(0.6)
	emb := embedder.NewFake(8)
	bus := events.New(100, zerolog.Nop())
	clk := omclock.NewManual(time.Unix(1700000000, 0))

	core := memorycore.New(memRepo, store, wpRepo, db, cls, emb, bus, clk, cfg)
	wp := waypoint.New(wpRepo, cfg)
	dyn := New(memRepo, store, wp, userRepo, clk, cfg)
	return dyn, core, clk
}

func TestDecaySweepDropsColdMemories(t *testing.T) {
	dyn, core, clk := newTestDynamics(t)
	ctx := context.Background()
	uid := "u1"

	_, err := core.Add(ctx, memorycore.AddInput{Content: "fades over time", UserID: &uid, Sector: sectorPtr(model.SectorSemantic)})
	require.NoError(t, err)

	clk.Advance(365 * 24 * time.Hour)

	report, err := dyn.DecaySweep(ctx, func(string) (model.Sector, bool) { return model.SectorSemantic, true })
	require.NoError(t, err)
	require.Equal(t, 1, report.MemoriesProcessed)
	require.Equal(t, 1, report.MemoriesDeleted)
}

func TestDecaySweepCoversRowsBeyondFirstBatch(t *testing.T) {
	dyn, core, clk := newTestDynamics(t)
	dyn.Cfg.Decay.BatchSize = 2
	dyn.Cfg.Decay.Ratio = 1.0
	dyn.Cfg.Decay.ColdThreshold = 0.0
	ctx := context.Background()
	uid := "u1"

	const total = 5
	contents := []string{"alpha memory one", "bravo memory two", "charlie memory three", "delta memory four", "echo memory five"}
	for i := 0; i < total; i++ {
		_, err := core.Add(ctx, memorycore.AddInput{Content: contents[i], UserID: &uid, Sector: sectorPtr(model.SectorSemantic)})
		require.NoError(t, err)
	}

	clk.Advance(time.Hour)

	report, err := dyn.DecaySweep(ctx, func(string) (model.Sector, bool) { return model.SectorSemantic, true })
	require.NoError(t, err)
	require.Equal(t, total, report.MemoriesProcessed)
}

func TestSpreadingActivationPropagatesAlongEdges(t *testing.T) {
	dyn, _, _ := newTestDynamics(t)
	ctx := context.Background()

	require.NoError(t, dyn.Waypoints.Reinforce(ctx, "a", "b", nil, 1000))
	require.NoError(t, dyn.Waypoints.Reinforce(ctx, "b", "c", nil, 1000))

	results, err := dyn.SpreadingActivation(ctx, []string{"a"}, nil, 2)
	require.NoError(t, err)

	levels := make(map[string]float64)
	for _, r := range results {
		levels[r.MemoryID] = r.ActivationLevel
	}
	require.Equal(t, 1.0, levels["a"])
	require.Greater(t, levels["b"], 0.0)
}

func TestConsolidateCreatesThenIncrementsSummary(t *testing.T) {
	dyn, core, _ := newTestDynamics(t)
	ctx := context.Background()
	uid := "u1"

	_, err := core.Add(ctx, memorycore.AddInput{Content: "first memory", UserID: &uid})
	require.NoError(t, err)

	s1, err := dyn.Consolidate(ctx, uid)
	require.NoError(t, err)
	require.EqualValues(t, 1, s1.ReflectionCount)
	require.Contains(t, s1.Summary, "first memory")

	s2, err := dyn.Consolidate(ctx, uid)
	require.NoError(t, err)
	require.EqualValues(t, 2, s2.ReflectionCount)
}

func sectorPtr(s model.Sector) *model.Sector { return &s }
