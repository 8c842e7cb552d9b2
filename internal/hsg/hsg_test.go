package hsg

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
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/vectorstore"
	"github.com/openmemory/core/internal/waypoint"
)

func newTestEngine(t *testing.T) (*Engine, *memorycore.Core) {
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
		MinScore:       0.01,
		Scoring:        config.ScoringWeights{Keyword: 1.0},
		Dynamics:       config.DynamicsCoefficients{Eta: 0.1, TauRecencySeconds: 86400},
		Reinforcement:  config.ReinforcementConfig{SalienceBoost: 0.05, MaxSalience: 1.0, PruneThreshold: 0.02},
		DecayLambdas:   config.DecayLambdas{Episodic: 0.015, Semantic: 0.005, Procedural: 0.008, Emotional: 0.02, Reflective: 0.001},
	}
	cls := classifier.New(0.6)
	emb := embedder.NewFake(8)
	bus := events.New(100, zerolog.Nop())
	clk := omclock.NewManual(time.Unix(1700000000, 0))

	core := memorycore.New(memRepo, store, wpRepo, db, cls, emb, bus, clk, cfg)
	wp := waypoint.New(wpRepo, cfg)
	engine := New(memRepo, store, wp, cls, emb, bus, clk, cfg)
	return engine, core
}

func TestQueryRanksKeywordMatchFirst(t *testing.T) {
	engine, core := newTestEngine(t)
	ctx := context.Background()
	uid := "u1"

	for _, content := range []string{"Alpha beta", "Beta gamma", "Gamma delta"} {
		_, err := core.Add(ctx, memorycore.AddInput{Content: content, UserID: &uid})
		require.NoError(t, err)
	}

	results, err := engine.Query(ctx, "beta", 5, Options{UserID: &uid})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.LessOrEqual(t, len(results), 5)
	require.Greater(t, results[0].Score, engine.Cfg.MinScore)
	require.Contains(t, []string{"Alpha beta", "Beta gamma"}, results[0].Memory.Content)
}

func TestQueryReturnsEmptyForNoMatch(t *testing.T) {
	engine, core := newTestEngine(t)
	ctx := context.Background()
	uid := "u1"

	_, err := core.Add(ctx, memorycore.AddInput{Content: "Gamma delta", UserID: &uid})
	require.NoError(t, err)

	results, err := engine.Query(ctx, "nonexistentword", 5, Options{UserID: &uid})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestKeywordFallbackWhenEmbeddingFails(t *testing.T) {
	engine, core := newTestEngine(t)
	ctx := context.Background()
	uid := "u1"

	_, err := core.Add(ctx, memorycore.AddInput{Content: "Alpha beta", UserID: &uid})
	require.NoError(t, err)

	engine.Embedder.(*embedder.Fake).Fail = require.AnError
	results, err := engine.Query(ctx, "beta", 5, Options{UserID: &uid})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "Alpha beta", results[0].Memory.Content)
}
