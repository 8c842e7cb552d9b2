// Package hsg implements the Hybrid Semantic Graph query engine of spec
// §4.8: classify, embed, per-sector search, union, and composite scoring
// (including a boost from direct waypoint edges between candidates), with a
// keyword-only fallback when embedding fails.
package hsg

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/openmemory/core/internal/classifier"
	"github.com/openmemory/core/internal/clock"
	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/embedder"
	"github.com/openmemory/core/internal/events"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/vectorops"
	"github.com/openmemory/core/internal/vectorstore"
	"github.com/openmemory/core/internal/waypoint"
)

// oversample multiplies topK for each per-sector candidate search, so the
// post-union composite score has enough candidates to re-rank (spec §4.8
// step 3).
const oversample = 3

type Engine struct {
	Memories   *persistence.MemoryRepo
	Vectors    vectorstore.Store
	Waypoints  *waypoint.Graph
	Classifier *classifier.Classifier
	Embedder   embedder.Embedder
	Bus        *events.Bus
	Clock      clock.Clock
	Cfg        *config.Config
}

func New(memories *persistence.MemoryRepo, vectors vectorstore.Store, waypoints *waypoint.Graph,
	cls *classifier.Classifier, emb embedder.Embedder, bus *events.Bus, clk clock.Clock, cfg *config.Config) *Engine {
	return &Engine{Memories: memories, Vectors: vectors, Waypoints: waypoints, Classifier: cls, Embedder: emb, Bus: bus, Clock: clk, Cfg: cfg}
}

// Options configures one hsgQuery invocation (spec §4.8).
type Options struct {
	UserID     *string
	TagHints   []string
	Expand     bool
	MinScore   float64 // 0 uses Cfg.MinScore
}

// Result is one ranked hit, with the derivation path of ids traversed to
// reach it (spec §4.8 step 7).
type Result struct {
	Memory *model.Memory
	Score  float64
	Path   []string
}

func (e *Engine) Query(ctx context.Context, queryText string, topK int, opts Options) ([]Result, error) {
	minScore := opts.MinScore
	if minScore == 0 {
		minScore = e.Cfg.MinScore
	}

	queryVecs, err := e.Embedder.EmbedQueryForAllSectors(ctx, queryText)
	if err != nil || allEmpty(queryVecs) {
		return e.keywordFallback(ctx, queryText, topK, opts, minScore)
	}

	// Classify the query itself to narrow the per-sector fan-out (spec
	// §4.8 step 1): always include the rule/model winner plus any
	// additional rule hits, falling back to every sector the embedder
	// produced when classification can't narrow anything down.
	verdict := e.Classifier.Classify(userKey(opts.UserID), queryText)
	relevantSectors := map[model.Sector]bool{verdict.Primary: true}
	for _, s := range verdict.Additional {
		relevantSectors[s] = true
	}

	// Per-sector candidate search is independent I/O against the vector
	// store; fan it out concurrently (bounded by the sectors actually
	// classified as relevant, at most 5) rather than serializing it.
	candidateScores := make(map[string]int) // memoryId -> #sector-candidate-sets it appeared in (overlap feature)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for sector, qv := range queryVecs {
		if !relevantSectors[sector] {
			continue
		}
		sector, qv := sector, qv
		g.Go(func() error {
			hits, err := e.Vectors.SearchSimilar(gctx, sector, qv, topK*oversample, opts.UserID, nil)
			if err != nil {
				return nil // a failing sector search is tolerated, not fatal (spec §4.8)
			}
			mu.Lock()
			for _, h := range hits {
				candidateScores[h.MemoryID]++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // every branch above returns nil; errors are swallowed per-sector intentionally
	if len(candidateScores) == 0 {
		return e.keywordFallback(ctx, queryText, topK, opts, minScore)
	}

	ids := make([]string, 0, len(candidateScores))
	for id := range candidateScores {
		ids = append(ids, id)
	}
	mems, err := e.Memories.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	memByID := make(map[string]*model.Memory, len(mems))
	for _, m := range mems {
		if !sameOwner(m.UserID, opts.UserID) {
			continue
		}
		memByID[m.ID] = m
	}

	candidateVecs, err := e.Vectors.GetVectorsByIDs(ctx, ids, opts.UserID)
	if err != nil {
		return nil, err
	}

	now := e.Clock.NowMillis()
	queryTokens := tokenize(queryText)

	// waypoint boost: for every candidate, sum edgeWeight over its direct
	// edges to other candidates (spec §4.8 step 5 "waypoint boost"). Only
	// one hop is followed; Options.Expand does not change the boost.
	hops := 1
	if opts.Expand {
		hops = 2
	}
	waypointBoost, waypointPath := e.waypointBoosts(ctx, memByID, opts.UserID, hops)

	var results []Result
	for id, m := range memByID {
		qVecMap := toMapFloat32(queryVecs)
		candVecMap := sectorMapFor(candidateVecs[id])

		similarity := vectorops.MaxCosineAcrossSectors(candVecMap, qVecMap)
		recency := math.Exp(-float64(now-m.LastSeenAt) / (e.Cfg.Dynamics.TauRecencySeconds * 1000))
		tagMatch := tagOverlap(m.Tags, opts.TagHints)
		keyword := keywordOverlap(m.Content, m.GeneratedSummary, queryTokens)
		overlap := float64(candidateScores[id]-1) / math.Max(1, float64(len(relevantSectors)-1))
		wBoost := waypointBoost[id]

		s := e.Cfg.Scoring
		score := s.Similarity*similarity +
			s.Overlap*overlap +
			s.Waypoint*wBoost +
			s.Recency*recency +
			s.TagMatch*tagMatch +
			s.Salience*m.Salience +
			s.Keyword*keyword

		if score < minScore {
			continue
		}
		path := append([]string{m.ID}, waypointPath[id]...)
		results = append(results, Result{Memory: m, Score: score, Path: path})
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}

	e.reinforce(ctx, results, minScore, now)
	e.Bus.Emit(events.TopicMemoryQueried, results, events.Context{UserID: opts.UserID})

	return results, nil
}

func (e *Engine) waypointBoosts(ctx context.Context, memByID map[string]*model.Memory, userID *string, hops int) (map[string]float64, map[string][]string) {
	boosts := make(map[string]float64, len(memByID))
	paths := make(map[string][]string, len(memByID))
	for id := range memByID {
		neighbors, err := e.Waypoints.Neighbors(ctx, id, userID, 0, 50)
		if err != nil {
			continue
		}
		var total float64
		var touched []string
		for _, w := range neighbors {
			other := w.DstID
			if other == id {
				other = w.SrcID
			}
			if _, inSet := memByID[other]; inSet {
				total += w.Weight
				touched = append(touched, other)
			}
		}
		boosts[id] = total
		paths[id] = touched
	}
	_ = hops // unused: only direct edges between candidates are counted, whatever hops is
	return boosts, paths
}

// reinforce applies spec §4.6's recall-side reinforcement: salience +=
// reinfSalienceBoost * score for every returned memory scoring >= minScore.
func (e *Engine) reinforce(ctx context.Context, results []Result, minScore float64, now int64) {
	for _, r := range results {
		if r.Score < minScore {
			continue
		}
		boost := e.Cfg.Reinforcement.SalienceBoost * r.Score
		_ = e.Memories.TouchReinforce(ctx, r.Memory.ID, now, boost, e.Cfg.Reinforcement.MaxSalience)
	}
}

// keywordFallback implements spec §4.8's "never fail the query" contract:
// similarity=0, keyword dominates.
func (e *Engine) keywordFallback(ctx context.Context, queryText string, topK int, opts Options, minScore float64) ([]Result, error) {
	queryTokens := tokenize(queryText)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	mems, err := e.Memories.RecentForUser(ctx, opts.UserID, "", 500)
	if err != nil {
		return nil, err
	}
	var results []Result
	for _, m := range mems {
		keyword := keywordOverlap(m.Content, m.GeneratedSummary, queryTokens)
		tagMatch := tagOverlap(m.Tags, opts.TagHints)
		score := e.Cfg.Scoring.Keyword*keyword + e.Cfg.Scoring.TagMatch*tagMatch + e.Cfg.Scoring.Salience*m.Salience
		if keyword == 0 && tagMatch == 0 {
			continue
		}
		if score < minScore {
			continue
		}
		results = append(results, Result{Memory: m, Score: score, Path: []string{m.ID}})
	}
	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Memory.LastSeenAt != results[j].Memory.LastSeenAt {
			return results[i].Memory.LastSeenAt > results[j].Memory.LastSeenAt
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}

func userKey(userID *string) string {
	if userID == nil {
		return ""
	}
	return *userID
}

func sameOwner(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

func allEmpty(m map[model.Sector][]float32) bool {
	for _, v := range m {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

func toMapFloat32(m map[model.Sector][]float32) map[string][]float32 {
	out := make(map[string][]float32, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func sectorMapFor(vectors []*model.Vector) map[string][]float32 {
	out := make(map[string][]float32, len(vectors))
	for _, v := range vectors {
		out[string(v.Sector)] = v.Values
	}
	return out
}

func tokenize(text string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		out[f] = true
	}
	return out
}

func keywordOverlap(content, summary string, queryTokens map[string]bool) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := tokenize(content + " " + summary)
	hits := 0
	for tok := range queryTokens {
		if contentTokens[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func tagOverlap(tags, hints []string) float64 {
	if len(hints) == 0 {
		return 0
	}
	hintSet := make(map[string]bool, len(hints))
	for _, h := range hints {
		hintSet[h] = true
	}
	hits := 0
	for _, t := range tags {
		if hintSet[t] {
			hits++
		}
	}
	return float64(hits) / math.Max(1, float64(len(hints)))
}
