package waypoint

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
)

func newTestGraph(t *testing.T) (*Graph, *persistence.WaypointRepo) {
	t.Helper()
	db, err := persistence.OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	tables, err := persistence.NewTableNames(persistence.DialectSQLite, "public", "om")
	require.NoError(t, err)
	require.NoError(t, persistence.Init(context.Background(), db, tables))

	repo := persistence.NewWaypointRepo(db, tables.Waypoints)
	cfg := &config.Config{
		Dynamics:      config.DynamicsCoefficients{Eta: 0.1},
		Reinforcement: config.ReinforcementConfig{PruneThreshold: 0.02},
		DecayLambdas:  config.DecayLambdas{Semantic: 0.005},
	}
	return New(repo, cfg), repo
}

func TestReinforceCreatesThenIncrementsWeight(t *testing.T) {
	g, repo := newTestGraph(t)
	ctx := context.Background()

	require.NoError(t, g.Reinforce(ctx, "a", "b", nil, 1000))
	w, err := repo.Get(ctx, "a", "b", nil)
	require.NoError(t, err)
	require.InDelta(t, 0.1, w.Weight, 1e-9)

	require.NoError(t, g.Reinforce(ctx, "a", "b", nil, 2000))
	w, err = repo.Get(ctx, "a", "b", nil)
	require.NoError(t, err)
	require.InDelta(t, 0.2, w.Weight, 1e-9)
}

func TestPruneBelowThreshold(t *testing.T) {
	g, repo := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, &model.Waypoint{SrcID: "a", DstID: "b", Weight: 0.01, CreatedAt: 1, UpdatedAt: 1}))
	require.NoError(t, repo.Upsert(ctx, &model.Waypoint{SrcID: "c", DstID: "d", Weight: 0.5, CreatedAt: 1, UpdatedAt: 1}))

	n, err := repo.PruneBelow(ctx, g.cfg.Reinforcement.PruneThreshold)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	w, err := repo.Get(ctx, "c", "d", nil)
	require.NoError(t, err)
	require.NotNil(t, w)
}
