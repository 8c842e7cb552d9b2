// Package temporal implements the bitemporal fact/edge store of spec
// §3.4/§3.5/§4.7: at most one open (validTo=NULL) assertion per
// (user, subject, predicate) or (user, source, target, relationType),
// conflicting assertions close the prior row, and an off-path sweep decays
// confidence toward closure.
package temporal

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/events"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
)

type Graph struct {
	Facts *persistence.FactRepo
	Edges *persistence.EdgeRepo
	DB    *persistence.DB
	Bus   *events.Bus
	Cfg   *config.Config
}

func New(facts *persistence.FactRepo, edges *persistence.EdgeRepo, db *persistence.DB, bus *events.Bus, cfg *config.Config) *Graph {
	return &Graph{Facts: facts, Edges: edges, DB: db, Bus: bus, Cfg: cfg}
}

// InsertFact implements spec §4.7's three-step contract.
func (g *Graph) InsertFact(ctx context.Context, userID *string, subject, predicate, object string, validFrom int64, confidence float64, metadata map[string]any) (*model.TemporalFact, error) {
	var result *model.TemporalFact
	err := g.DB.RunTransaction(ctx, func(ctx context.Context) error {
		open, err := g.Facts.OpenFactsFor(ctx, userID, subject, predicate)
		if err != nil {
			return err
		}

		for _, f := range open {
			if f.Object == object {
				// Exact match and still valid: bump confidence, touch
				// lastUpdated (spec §4.7 step 1).
				if confidence > f.Confidence {
					f.Confidence = confidence
				}
				f.LastUpdated = validFrom
				if err := g.Facts.DecayConfidence(ctx, f.ID, f.Confidence, f.LastUpdated); err != nil {
					return err
				}
				result = f
				g.Bus.Emit(events.TopicFactUpdated, f, events.Context{UserID: userID})
				return nil
			}
		}

		// No exact match: close any open fact for (user, subject,
		// predicate) — the overlap invariant forbids two open facts (spec
		// §4.7 step 3) — then insert the new one.
		for _, f := range open {
			if err := g.Facts.CloseWindow(ctx, f.ID, validFrom, validFrom); err != nil {
				return err
			}
			closed := *f
			closed.ValidTo = &validFrom
			g.Bus.Emit(events.TopicFactDeleted, &closed, events.Context{UserID: userID})
		}

		nf := &model.TemporalFact{
			ID: uuid.NewString(), UserID: userID, Subject: subject, Predicate: predicate, Object: object,
			ValidFrom: validFrom, ValidTo: nil, Confidence: confidence, LastUpdated: validFrom, Metadata: metadata,
		}
		if err := g.Facts.Insert(ctx, nf); err != nil {
			return err
		}
		result = nf
		g.Bus.Emit(events.TopicFactCreated, nf, events.Context{UserID: userID})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// QueryFactsAtTime returns facts valid at ts, ordered by confidence desc
// then validFrom desc (spec §4.7).
func (g *Graph) QueryFactsAtTime(ctx context.Context, userID *string, subject string, ts int64) ([]*model.TemporalFact, error) {
	facts, err := g.Facts.AtTime(ctx, userID, subject, ts)
	if err != nil {
		return nil, err
	}
	sortFactsDesc(facts)
	return facts, nil
}

func sortFactsDesc(facts []*model.TemporalFact) {
	for i := 1; i < len(facts); i++ {
		j := i
		for j > 0 && less(facts[j-1], facts[j]) {
			facts[j-1], facts[j] = facts[j], facts[j-1]
			j--
		}
	}
}

func less(a, b *model.TemporalFact) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence < b.Confidence
	}
	return a.ValidFrom < b.ValidFrom
}

// DecaySweep applies c' = c * exp(-lambda_semantic * deltaDays) to facts
// not updated within freshnessWindowMs, closing any that drop below 0.05
// confidence (spec §4.7).
func (g *Graph) DecaySweep(ctx context.Context, now int64, freshnessWindowMs int64, limit int) (processed, closed int, err error) {
	it, err := g.Facts.AllOpenForSweep(ctx, limit)
	if err != nil {
		return 0, 0, err
	}
	defer it.Close()

	lambda := g.Cfg.DecayLambdas.Semantic
	for it.Next() {
		var id string
		var userID *string
		var subject, predicate, object string
		var validFrom int64
		var validTo *int64
		var confidence float64
		var lastUpdated int64
		var metaJSON []byte
		if err := it.Scan(&id, &userID, &subject, &predicate, &object, &validFrom, &validTo, &confidence, &lastUpdated, &metaJSON); err != nil {
			return processed, closed, err
		}
		if now-lastUpdated < freshnessWindowMs {
			continue
		}
		deltaDays := float64(now-lastUpdated) / 86400000.0
		newConfidence := confidence * math.Exp(-lambda*deltaDays)
		processed++
		if newConfidence < 0.05 {
			if err := g.Facts.CloseWindow(ctx, id, now, now); err != nil {
				return processed, closed, err
			}
			closed++
			continue
		}
		if err := g.Facts.DecayConfidence(ctx, id, newConfidence, now); err != nil {
			return processed, closed, err
		}
	}
	return processed, closed, it.Err()
}

// InsertEdge implements spec §4.7's "edges mirror facts" contract: at most
// one open edge per (user, source, target, relationType). Since that
// triple is the full key (unlike facts, which can share (subject,
// predicate) across different objects), every insert for an already-open
// triple closes the prior row and opens a new one rather than merging in
// place — the weight and metadata given here always win.
func (g *Graph) InsertEdge(ctx context.Context, userID *string, sourceID, targetID, relationType string, validFrom int64, weight float64, metadata map[string]any) (*model.TemporalEdge, error) {
	var result *model.TemporalEdge
	err := g.DB.RunTransaction(ctx, func(ctx context.Context) error {
		open, err := g.Edges.OpenEdgesFor(ctx, userID, sourceID, targetID, relationType)
		if err != nil {
			return err
		}

		// The overlap invariant forbids two open edges for the same triple
		// (spec §4.7); close every one found (normally at most one) before
		// inserting the new open row.
		for _, e := range open {
			if err := g.Edges.CloseWindow(ctx, e.ID, validFrom, validFrom); err != nil {
				return err
			}
			closed := *e
			closed.ValidTo = &validFrom
			g.Bus.Emit(events.TopicEdgeDeleted, &closed, events.Context{UserID: userID})
		}

		ne := &model.TemporalEdge{
			ID: uuid.NewString(), UserID: userID, SourceID: sourceID, TargetID: targetID, RelationType: relationType,
			ValidFrom: validFrom, ValidTo: nil, Weight: weight, LastUpdated: validFrom, Metadata: metadata,
		}
		if err := g.Edges.Insert(ctx, ne); err != nil {
			return err
		}
		result = ne
		if len(open) > 0 {
			g.Bus.Emit(events.TopicEdgeUpdated, ne, events.Context{UserID: userID})
		} else {
			g.Bus.Emit(events.TopicEdgeCreated, ne, events.Context{UserID: userID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// QueryEdgesAtTime returns edges from sourceID valid at ts, ordered by
// weight desc then validFrom desc, mirroring QueryFactsAtTime (spec §4.7).
func (g *Graph) QueryEdgesAtTime(ctx context.Context, userID *string, sourceID string, ts int64) ([]*model.TemporalEdge, error) {
	edges, err := g.Edges.AtTime(ctx, userID, sourceID, ts)
	if err != nil {
		return nil, err
	}
	sortEdgesDesc(edges)
	return edges, nil
}

func sortEdgesDesc(edges []*model.TemporalEdge) {
	for i := 1; i < len(edges); i++ {
		j := i
		for j > 0 && lessEdge(edges[j-1], edges[j]) {
			edges[j-1], edges[j] = edges[j], edges[j-1]
			j--
		}
	}
}

func lessEdge(a, b *model.TemporalEdge) bool {
	if a.Weight != b.Weight {
		return a.Weight < b.Weight
	}
	return a.ValidFrom < b.ValidFrom
}

// FindConflicts is the supplemented feature of SPEC_FULL §C.2: for a given
// (user, subject, predicate) it reports whether more than one open fact
// exists (a state the insert contract should prevent, but which external
// bulk loaders can still produce) so operators can reconcile it.
func (g *Graph) FindConflicts(ctx context.Context, userID *string, subject, predicate string) ([]*model.TemporalFact, error) {
	open, err := g.Facts.OpenFactsFor(ctx, userID, subject, predicate)
	if err != nil {
		return nil, err
	}
	if len(open) <= 1 {
		return nil, nil
	}
	return open, nil
}
