// Package waypoint implements the associative edge dynamics of spec §3.3 /
// §4.6: reinforcement on insert, temporal decay of idle edges, pruning, and
// network-health metrics (SPEC_FULL §C.1).
package waypoint

import (
	"context"
	"math"

	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
)

type Graph struct {
	repo *persistence.WaypointRepo
	cfg  *config.Config
}

func New(repo *persistence.WaypointRepo, cfg *config.Config) *Graph {
	return &Graph{repo: repo, cfg: cfg}
}

// Reinforce applies spec §4.6's edge weight update on traversal/insert:
// w_new = min(1, w_existing + eta).
func (g *Graph) Reinforce(ctx context.Context, a, b string, userID *string, now int64) error {
	w, err := g.repo.Get(ctx, a, b, userID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return err
	}
	if w == nil {
		return g.repo.Upsert(ctx, &model.Waypoint{SrcID: a, DstID: b, UserID: userID, Weight: g.cfg.Dynamics.Eta, CreatedAt: now, UpdatedAt: now})
	}
	newWeight := math.Min(1, w.Weight+g.cfg.Dynamics.Eta)
	return g.repo.SetWeight(ctx, w.SrcID, w.DstID, newWeight, now)
}

// Neighbors lists id's waypoints above minWeight, used by HSG expansion and
// spreading activation (spec §4.6, §4.8).
func (g *Graph) Neighbors(ctx context.Context, id string, userID *string, minWeight float64, limit int) ([]*model.Waypoint, error) {
	return g.repo.Neighbors(ctx, id, userID, minWeight, limit)
}

// BoostWeight applies a direct additive increment to an existing edge,
// distinct from Reinforce's insert-time eta step: recall-time reinforcement
// adds reinfWaypointBoost to every waypoint along a traversed query path
// (spec §4.6 "Reinforcement on recall"). A no-op if the edge doesn't exist.
func (g *Graph) BoostWeight(ctx context.Context, a, b string, userID *string, delta float64, now int64) error {
	w, err := g.repo.Get(ctx, a, b, userID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return err
	}
	if w == nil {
		return nil
	}
	newWeight := math.Min(g.cfg.Reinforcement.MaxWaypointWeight, w.Weight+delta)
	return g.repo.SetWeight(ctx, w.SrcID, w.DstID, newWeight, now)
}

// decayLambdaForSector mirrors memorycore's sector->lambda lookup; kept
// local so the waypoint package doesn't need a memorycore import for one
// small mapping (spec §4.6: "λ is tied to sector of the source memory").
func decayLambdaForSector(cfg *config.Config, sector model.Sector) float64 {
	switch sector {
	case model.SectorEpisodic:
		return cfg.DecayLambdas.Episodic
	case model.SectorSemantic:
		return cfg.DecayLambdas.Semantic
	case model.SectorProcedural:
		return cfg.DecayLambdas.Procedural
	case model.SectorEmotional:
		return cfg.DecayLambdas.Emotional
	case model.SectorReflective:
		return cfg.DecayLambdas.Reflective
	default:
		return cfg.DecayLambdas.Semantic
	}
}

// DecaySweep multiplicatively scales idle edges by exp(-lambda*deltaDays)
// and prunes edges below the prune threshold or whose endpoint memory no
// longer exists (spec §4.6).
func (g *Graph) DecaySweep(ctx context.Context, now int64, limit int, memoriesTable string, sourceSector func(memoryID string) (model.Sector, bool)) (processed int, pruned int64, err error) {
	it, err := g.repo.AllForSweep(ctx, limit)
	if err != nil {
		return 0, 0, err
	}
	defer it.Close()

	var updates []model.Waypoint
	for it.Next() {
		var src, dst string
		var userID *string
		var weight float64
		var createdAt, updatedAt int64
		if err := it.Scan(&src, &dst, &userID, &weight, &createdAt, &updatedAt); err != nil {
			return processed, pruned, err
		}
		sector, ok := sourceSector(src)
		if !ok {
			sector = model.SectorSemantic
		}
		lambda := decayLambdaForSector(g.cfg, sector)
		deltaDays := float64(now-updatedAt) / 86400000.0
		if deltaDays < 0 {
			deltaDays = 0
		}
		updates = append(updates, model.Waypoint{SrcID: src, DstID: dst, Weight: weight * math.Exp(-lambda*deltaDays)})
	}
	if err := it.Err(); err != nil {
		return processed, pruned, err
	}
	it.Close() // release the connection before writing: the SQLite pool holds only one
	for _, u := range updates {
		if err := g.repo.SetWeight(ctx, u.SrcID, u.DstID, u.Weight, now); err != nil {
			return processed, pruned, err
		}
		processed++
	}

	n, err := g.repo.PruneBelow(ctx, g.cfg.Reinforcement.PruneThreshold)
	if err != nil {
		return processed, pruned, err
	}
	pruned += n

	n, err = g.repo.PruneOrphaned(ctx, memoriesTable)
	if err != nil {
		return processed, pruned, err
	}
	pruned += n
	return processed, pruned, nil
}

// NetworkHealth is the supplemented metric of SPEC_FULL §C.1: edge count
// and mean weight for a user, a cheap signal for dashboards/alerts.
type NetworkHealth struct {
	EdgeCount  int64
	MeanWeight float64
}

func (g *Graph) Health(ctx context.Context, userID *string) (*NetworkHealth, error) {
	count, mean, err := g.repo.CountAndMeanWeight(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &NetworkHealth{EdgeCount: count, MeanWeight: mean}, nil
}
