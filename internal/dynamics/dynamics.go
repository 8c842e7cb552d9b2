// Package dynamics implements the cognitive dynamics subsystem of spec
// §4.6: the scheduled decay sweep, recall-time reinforcement, spreading
// activation over the waypoint graph, and consolidation-triggered user
// summaries (SPEC_FULL §C.4).
package dynamics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/openmemory/core/internal/clock"
	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/hsg"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/vectorstore"
	"github.com/openmemory/core/internal/waypoint"
)

// Dynamics wires the repositories and collaborators needed to run the
// scheduled sweeps and on-demand dynamics operations. Like memorycore and
// hsg, it never imports sibling domain packages beyond what it's handed.
type Dynamics struct {
	Memories  *persistence.MemoryRepo
	Vectors   vectorstore.Store
	Waypoints *waypoint.Graph
	Users     *persistence.UserRepo
	Clock     clock.Clock
	Cfg       *config.Config
}

func New(memories *persistence.MemoryRepo, vectors vectorstore.Store, waypoints *waypoint.Graph, users *persistence.UserRepo, clk clock.Clock, cfg *config.Config) *Dynamics {
	return &Dynamics{Memories: memories, Vectors: vectors, Waypoints: waypoints, Users: users, Clock: clk, Cfg: cfg}
}

// DecayReport summarizes one scheduled sweep invocation, returned so the
// scheduler can log/count it without the sweep itself knowing about
// logging (spec §4.9 "failures, lastError" tracking wraps whatever this
// returns at the call site).
type DecayReport struct {
	MemoriesProcessed int
	MemoriesDeleted   int
	WaypointsProcessed int
	WaypointsPruned    int64
	VectorsOrphanedDeleted int
}

// DecaySweep implements spec §4.6's scheduled decay: salience decays
// exponentially by elapsed minutes since lastSeenAt, rows below
// decayColdThreshold are deleted, then orphaned vectors/waypoints are
// pruned. Processes at most decayRatio*totalCount rows and sleeps
// decaySleepMs between batches to bound I/O; sleeps are cancellable via ctx.
func (d *Dynamics) DecaySweep(ctx context.Context, sourceSector func(memoryID string) (model.Sector, bool)) (*DecayReport, error) {
	report := &DecayReport{}
	now := d.Clock.NowMillis()

	total, err := d.Memories.CountForUser(ctx, nil)
	if err != nil {
		return nil, err
	}
	maxRows := int(math.Ceil(float64(total) * d.Cfg.Decay.Ratio))
	if maxRows <= 0 {
		maxRows = d.Cfg.Decay.BatchSize
	}

	processed := 0
	lastID := "" // cursor: id > lastID keeps successive batches disjoint (ORDER BY id, no OFFSET)
	for processed < maxRows {
		batchLimit := d.Cfg.Decay.BatchSize
		if remaining := maxRows - processed; remaining < batchLimit {
			batchLimit = remaining
		}
		it, err := d.Memories.IterateIDsAll(ctx, 0, math.MaxInt32, lastID, batchLimit)
		if err != nil {
			return report, err
		}

		updates := make(map[string]float64)
		rowsInBatch := 0
		for it.Next() {
			var id string
			var userID *string
			var salience, decayLambda float64
			var lastSeenAt int64
			var sector string
			var segment int32
			if err := it.Scan(&id, &userID, &salience, &decayLambda, &lastSeenAt, &sector, &segment); err != nil {
				it.Close()
				return report, err
			}
			deltaMinutes := float64(now-lastSeenAt) / 60000.0
			if deltaMinutes < 0 {
				deltaMinutes = 0
			}
			newSalience := salience * math.Exp(-decayLambda*deltaMinutes)
			updates[id] = newSalience
			rowsInBatch++
			lastID = id
		}
		itErr := it.Err()
		it.Close()
		if itErr != nil {
			return report, itErr
		}
		if rowsInBatch == 0 {
			break
		}
		if err := d.Memories.ApplyDecayBatch(ctx, updates); err != nil {
			return report, err
		}
		report.MemoriesProcessed += rowsInBatch
		processed += rowsInBatch

		if err := sleepCancellable(ctx, time.Duration(d.Cfg.Decay.SleepMs)*time.Millisecond); err != nil {
			return report, err
		}
		if rowsInBatch < batchLimit {
			break
		}
	}

	deleted, err := d.Memories.DeleteColdBelow(ctx, d.Cfg.Decay.ColdThreshold, d.Cfg.Decay.BatchSize)
	if err != nil {
		return report, err
	}
	report.MemoriesDeleted = len(deleted)

	orphaned, err := d.Vectors.CleanupOrphanedVectors(ctx, nil)
	if err != nil {
		return report, err
	}
	report.VectorsOrphanedDeleted = orphaned

	wpProcessed, wpPruned, err := d.Waypoints.DecaySweep(ctx, now, d.Cfg.Decay.BatchSize, d.Memories.TableName(), sourceSector)
	if err != nil {
		return report, err
	}
	report.WaypointsProcessed = wpProcessed
	report.WaypointsPruned = wpPruned

	return report, nil
}

func sleepCancellable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ReinforceWaypointPaths applies spec §4.6's "for each waypoint along a
// traversed path, weight += reinfWaypointBoost" to every edge an hsg query
// result walked to accrue its waypoint-boost score component.
func (d *Dynamics) ReinforceWaypointPaths(ctx context.Context, userID *string, results []hsg.Result) error {
	now := d.Clock.NowMillis()
	boost := d.Cfg.Reinforcement.WaypointBoost
	seen := make(map[[2]string]bool)
	for _, r := range results {
		for _, other := range r.Path[1:] {
			a, b := r.Memory.ID, other
			if a > b {
				a, b = b, a
			}
			key := [2]string{a, b}
			if seen[key] {
				continue
			}
			seen[key] = true
			if err := d.Waypoints.BoostWeight(ctx, a, b, userID, boost, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// ActivationResult is one node's spreading-activation level (spec §4.6).
type ActivationResult struct {
	MemoryID        string
	ActivationLevel float64
}

const (
	defaultSpreadIterations = 2
	maxSpreadIterations     = 4
)

// SpreadingActivation implements spec §4.6: seed ids start at activation 1,
// each iteration propagates a'[j] += gamma * sum_i a[i]*w(i,j) clamped to
// <=1, terminating when total delta < tau or iterations exhausted.
func (d *Dynamics) SpreadingActivation(ctx context.Context, seeds []string, userID *string, iterations int) ([]ActivationResult, error) {
	if iterations <= 0 {
		iterations = defaultSpreadIterations
	}
	if iterations > maxSpreadIterations {
		iterations = maxSpreadIterations
	}
	gamma := d.Cfg.Dynamics.GammaGraph
	tau := d.Cfg.Dynamics.TauEnergy

	activation := make(map[string]float64, len(seeds))
	for _, s := range seeds {
		activation[s] = 1.0
	}

	for iter := 0; iter < iterations; iter++ {
		next := make(map[string]float64, len(activation))
		for id, a := range activation {
			next[id] = math.Max(next[id], a)
		}
		var totalDelta float64
		for id, a := range activation {
			if a == 0 {
				continue
			}
			neighbors, err := d.Waypoints.Neighbors(ctx, id, userID, 0, 50)
			if err != nil {
				return nil, err
			}
			for _, w := range neighbors {
				j := w.DstID
				if j == id {
					j = w.SrcID
				}
				delta := gamma * a * w.Weight
				updated := math.Min(1, next[j]+delta)
				totalDelta += updated - next[j]
				next[j] = updated
			}
		}
		activation = next
		if totalDelta < tau {
			break
		}
	}

	out := make([]ActivationResult, 0, len(activation))
	for id, a := range activation {
		out = append(out, ActivationResult{MemoryID: id, ActivationLevel: a})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActivationLevel != out[j].ActivationLevel {
			return out[i].ActivationLevel > out[j].ActivationLevel
		}
		return out[i].MemoryID < out[j].MemoryID
	})
	return out, nil
}

// Consolidate implements SPEC_FULL §C.4: refresh userId's UserSummary from
// its most salient recent memories, incrementing reflectionCount (spec
// §3.6). Callers invoke it directly; openmemoryd does not schedule it.
func (d *Dynamics) Consolidate(ctx context.Context, userID string) (*model.UserSummary, error) {
	now := d.Clock.NowMillis()
	uid := userID
	recent, err := d.Memories.RecentForUser(ctx, &uid, "", 20)
	if err != nil {
		return nil, err
	}
	summary := buildSummary(recent)

	existing, err := d.Users.Get(ctx, userID)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}
	if existing == nil {
		u := &model.UserSummary{UserID: userID, Summary: summary, ReflectionCount: 1, CreatedAt: now, UpdatedAt: now}
		if err := d.Users.Upsert(ctx, u); err != nil {
			return nil, err
		}
		return u, nil
	}
	if err := d.Users.IncrementReflection(ctx, userID, summary, now); err != nil {
		return nil, err
	}
	existing.Summary = summary
	existing.ReflectionCount++
	existing.UpdatedAt = now
	return existing, nil
}

// buildSummary concatenates the most salient recent memories' content into
// a short rolling digest. A real deployment would route this through the
// LLM generator of spec §6.2; that generator is consumed, not implemented,
// by this module, so the fallback keeps consolidation functional without it.
func buildSummary(memories []*model.Memory) string {
	sort.Slice(memories, func(i, j int) bool { return memories[i].Salience > memories[j].Salience })
	out := ""
	for i, m := range memories {
		if i >= 5 {
			break
		}
		if out != "" {
			out += "; "
		}
		out += m.Content
	}
	return out
}
