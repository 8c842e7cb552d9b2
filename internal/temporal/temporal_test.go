package temporal

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/events"
	"github.com/openmemory/core/internal/persistence"
)

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	db, err := persistence.OpenSQLite(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	tables, err := persistence.NewTableNames(persistence.DialectSQLite, "public", "om")
	require.NoError(t, err)
	require.NoError(t, persistence.Init(context.Background(), db, tables))

	facts := persistence.NewFactRepo(db, tables.Facts)
	edges := persistence.NewEdgeRepo(db, tables.Edges)
	bus := events.New(100, zerolog.Nop())
	cfg := &config.Config{DecayLambdas: config.DecayLambdas{Semantic: 0.005}}
	return New(facts, edges, db, bus, cfg)
}

func TestInsertFactClosesAndReopensWindow(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	uid := "u1"

	_, err := g.InsertFact(ctx, &uid, "Alice", "role", "engineer", 1, 0.9, nil)
	require.NoError(t, err)

	_, err = g.InsertFact(ctx, &uid, "Alice", "role", "manager", 2, 0.9, nil)
	require.NoError(t, err)

	atEarly, err := g.QueryFactsAtTime(ctx, &uid, "Alice", 1)
	require.NoError(t, err)
	require.Len(t, atEarly, 1)
	require.Equal(t, "engineer", atEarly[0].Object)

	atMid, err := g.QueryFactsAtTime(ctx, &uid, "Alice", 2)
	require.NoError(t, err)
	require.Len(t, atMid, 1)
	require.Equal(t, "manager", atMid[0].Object)
}

func TestInsertFactNeverLeavesTwoOpenFacts(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	uid := "u1"

	_, err := g.InsertFact(ctx, &uid, "Alice", "role", "engineer", 1, 0.9, nil)
	require.NoError(t, err)
	_, err = g.InsertFact(ctx, &uid, "Alice", "role", "manager", 2, 0.9, nil)
	require.NoError(t, err)

	open, err := g.Facts.OpenFactsFor(ctx, &uid, "Alice", "role")
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "manager", open[0].Object)
}

func TestInsertFactExactMatchBumpsConfidence(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	uid := "u1"

	r1, err := g.InsertFact(ctx, &uid, "Alice", "role", "engineer", 1, 0.5, nil)
	require.NoError(t, err)
	r2, err := g.InsertFact(ctx, &uid, "Alice", "role", "engineer", 2, 0.9, nil)
	require.NoError(t, err)

	require.Equal(t, r1.ID, r2.ID)
	require.InDelta(t, 0.9, r2.Confidence, 1e-9)

	open, err := g.Facts.OpenFactsFor(ctx, &uid, "Alice", "role")
	require.NoError(t, err)
	require.Len(t, open, 1)
}

func TestInsertEdgeClosesAndReopensWindow(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	uid := "u1"

	_, err := g.InsertEdge(ctx, &uid, "A", "B", "reports_to", 1, 0.5, nil)
	require.NoError(t, err)
	_, err = g.InsertEdge(ctx, &uid, "A", "B", "reports_to", 2, 0.8, nil)
	require.NoError(t, err)

	atEarly, err := g.QueryEdgesAtTime(ctx, &uid, "A", 1)
	require.NoError(t, err)
	require.Len(t, atEarly, 1)
	require.InDelta(t, 0.5, atEarly[0].Weight, 1e-9)

	atLater, err := g.QueryEdgesAtTime(ctx, &uid, "A", 2)
	require.NoError(t, err)
	require.Len(t, atLater, 1)
	require.InDelta(t, 0.8, atLater[0].Weight, 1e-9)
}

func TestInsertEdgeNeverLeavesTwoOpenEdgesForSameTriple(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	uid := "u1"

	_, err := g.InsertEdge(ctx, &uid, "A", "B", "reports_to", 1, 0.5, nil)
	require.NoError(t, err)
	_, err = g.InsertEdge(ctx, &uid, "A", "B", "reports_to", 2, 0.8, nil)
	require.NoError(t, err)

	open, err := g.Edges.OpenEdgesFor(ctx, &uid, "A", "B", "reports_to")
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.InDelta(t, 0.8, open[0].Weight, 1e-9)
}

func TestInsertEdgeDistinctTriplesStayIndependentlyOpen(t *testing.T) {
	g := newTestGraph(t)
	ctx := context.Background()
	uid := "u1"

	_, err := g.InsertEdge(ctx, &uid, "A", "B", "reports_to", 1, 0.5, nil)
	require.NoError(t, err)
	_, err = g.InsertEdge(ctx, &uid, "A", "C", "reports_to", 1, 0.5, nil)
	require.NoError(t, err)

	openAB, err := g.Edges.OpenEdgesFor(ctx, &uid, "A", "B", "reports_to")
	require.NoError(t, err)
	require.Len(t, openAB, 1)

	openAC, err := g.Edges.OpenEdgesFor(ctx, &uid, "A", "C", "reports_to")
	require.NoError(t, err)
	require.Len(t, openAC, 1)
}
