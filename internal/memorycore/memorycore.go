// Package memorycore implements the ingest/update/delete/list surface of
// spec §4.4: dedup via simhash, classification, per-sector embedding,
// optional content encryption, and waypoint seeding, all inside a single
// transaction per write.
package memorycore

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/openmemory/core/internal/classifier"
	"github.com/openmemory/core/internal/clock"
	"github.com/openmemory/core/internal/config"
	"github.com/openmemory/core/internal/embedder"
	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/events"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/security"
	"github.com/openmemory/core/internal/simhash"
	"github.com/openmemory/core/internal/vectorops"
	"github.com/openmemory/core/internal/vectorstore"
)

// recentWaypointCandidates bounds how many of the user's recent memories
// are considered when seeding associative edges at ingest (spec §4.4 step 6).
const recentWaypointCandidates = 10

// Core wires together the repositories and collaborators needed to
// implement ingest/update/delete/list. It never imports sibling domain
// packages (hsg, dynamics, waypoint) directly — per the container pattern
// (spec §9), those consume Core through its exported methods only.
type Core struct {
	Memories  *persistence.MemoryRepo
	Vectors   vectorstore.Store
	Waypoints *persistence.WaypointRepo
	DB        *persistence.DB

	Classifier *classifier.Classifier
	Embedder   embedder.Embedder
	Bus        *events.Bus
	Clock      clock.Clock
	Cfg        *config.Config
}

func New(memories *persistence.MemoryRepo, vectors vectorstore.Store, waypoints *persistence.WaypointRepo, db *persistence.DB,
	cls *classifier.Classifier, emb embedder.Embedder, bus *events.Bus, clk clock.Clock, cfg *config.Config) *Core {
	return &Core{Memories: memories, Vectors: vectors, Waypoints: waypoints, DB: db, Classifier: cls, Embedder: emb, Bus: bus, Clock: clk, Cfg: cfg}
}

// AddInput is the ingest request of spec §4.4.
type AddInput struct {
	Content  string
	Metadata map[string]any
	Sector   *model.Sector // overrides classification when non-nil (confidence = 1.0)
	Tags     []string
	UserID   *string
}

// AddResult reports the id touched (new or existing, on dedup collision).
type AddResult struct {
	ID      string
	Existed bool
}

func userKey(userID *string) string {
	if userID == nil {
		return ""
	}
	return *userID
}

// Add implements spec §4.4's seven-step ingest contract.
func (c *Core) Add(ctx context.Context, in AddInput) (*AddResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, errs.Validation("content must not be empty", nil)
	}
	if len(in.Content) > c.Cfg.MaxPayloadSize {
		return nil, errs.Validation("content exceeds maxPayloadSize", nil)
	}

	fp := simhash.Fingerprint(in.Content)

	existing, err := c.Memories.GetBySimhash(ctx, in.UserID, fp)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		now := c.Clock.NowMillis()
		if err := c.Memories.TouchReinforce(ctx, existing.ID, now, c.Cfg.Reinforcement.SalienceBoost, c.Cfg.Reinforcement.MaxSalience); err != nil {
			return nil, err
		}
		c.Bus.Emit(events.TopicMemoryUpdated, existing, events.Context{UserID: in.UserID})
		return &AddResult{ID: existing.ID, Existed: true}, nil
	}

	var primary model.Sector
	var additional []model.Sector
	if in.Sector != nil && in.Sector.Valid() {
		primary = *in.Sector
	} else {
		res := c.Classifier.Classify(userKey(in.UserID), in.Content)
		primary = res.Primary
		additional = res.Additional
	}

	sectors := uniqueSectors(primary, additional)

	now := c.Clock.NowMillis()
	id := uuid.NewString()

	var sectorVecs []embedder.SectorVector
	embedFailed := false
	sectorVecs, err = c.Embedder.EmbedMultiSector(ctx, in.Content, sectors)
	if err != nil {
		// Embedding errors fall through to keyword-only indexing: the
		// memory row is still created so it is recoverable later (spec
		// §4.4 Failures).
		embedFailed = true
		sectorVecs = nil
	}

	content := in.Content
	keyVersion := 0
	if c.Cfg.Encryption.Enabled {
		keyVersion = 1
		enc, err := security.Envelope(c.Cfg.Encryption.Key, c.Cfg.Encryption.Salt, keyVersion, in.Content)
		if err != nil {
			return nil, err
		}
		content = enc
	}

	meanVec, meanDim := meanVector(sectorVecs)

	mem := &model.Memory{
		ID:            id,
		UserID:        in.UserID,
		Content:       content,
		Simhash:       fp,
		PrimarySector: primary,
		Tags:          in.Tags,
		Metadata:      in.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastSeenAt:    now,
		Salience:      1.0,
		DecayLambda:   decayLambdaFor(c.Cfg, primary),
		Version:       1,
		MeanDim:       meanDim,
		MeanVec:       meanVec,
		EncryptionKeyVersion: keyVersion,
		Coactivations: 1,
	}

	recent, err := c.Memories.RecentForUser(ctx, in.UserID, id, recentWaypointCandidates)
	if err != nil {
		return nil, err
	}

	err = c.DB.RunTransaction(ctx, func(ctx context.Context) error {
		if err := c.Memories.Insert(ctx, mem); err != nil {
			return err
		}
		if !embedFailed {
			for _, sv := range sectorVecs {
				if err := c.Vectors.StoreVector(ctx, id, sv.Sector, sv.Values, sv.Dim, in.UserID, nil); err != nil {
					return err
				}
			}
		}
		for _, r := range recent {
			weight := waypointWeight(now, r.LastSeenAt, meanVec, r.MeanVec)
			if weight <= 0 {
				continue
			}
			if err := c.Waypoints.Upsert(ctx, &model.Waypoint{SrcID: id, DstID: r.ID, UserID: in.UserID, Weight: weight, CreatedAt: now, UpdatedAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.Bus.Emit(events.TopicMemoryAdded, mem, events.Context{UserID: in.UserID})
	return &AddResult{ID: id}, nil
}

// UpdatePatch carries the mutable fields of spec §4.4's update contract.
type UpdatePatch struct {
	Content  *string
	Tags     []string
	Metadata map[string]any
	Sector   *model.Sector
}

func (c *Core) Update(ctx context.Context, id string, patch UpdatePatch) error {
	mem, err := c.Memories.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := c.Clock.NowMillis()
	contentChanged := patch.Content != nil && *patch.Content != mem.Content

	if patch.Content != nil {
		mem.Content = *patch.Content
		mem.Simhash = simhash.Fingerprint(*patch.Content)
	}
	if patch.Tags != nil {
		mem.Tags = patch.Tags
	}
	if patch.Metadata != nil {
		mem.Metadata = patch.Metadata
	}
	if patch.Sector != nil && patch.Sector.Valid() {
		mem.PrimarySector = *patch.Sector
		mem.DecayLambda = decayLambdaFor(c.Cfg, mem.PrimarySector)
	}
	mem.UpdatedAt = now
	mem.Version++

	var sectorVecs []embedder.SectorVector
	if contentChanged {
		sectorVecs, err = c.Embedder.EmbedMultiSector(ctx, mem.Content, uniqueSectors(mem.PrimarySector, nil))
		if err == nil {
			mem.MeanVec, mem.MeanDim = meanVector(sectorVecs)
		}
	}

	return c.DB.RunTransaction(ctx, func(ctx context.Context) error {
		if err := c.Memories.Update(ctx, mem); err != nil {
			return err
		}
		if contentChanged && sectorVecs != nil {
			for _, sv := range sectorVecs {
				if err := c.Vectors.StoreVector(ctx, mem.ID, sv.Sector, sv.Values, sv.Dim, mem.UserID, nil); err != nil {
					return err
				}
			}
		}
		c.Bus.Emit(events.TopicMemoryUpdated, mem, events.Context{UserID: mem.UserID})
		return nil
	})
}

// Delete removes a memory, its vectors and every waypoint referencing it,
// in one transaction (spec §4.4).
func (c *Core) Delete(ctx context.Context, id string) error {
	mem, err := c.Memories.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if mem == nil {
		return errs.NotFound("memory not found: "+id, nil)
	}
	err = c.DB.RunTransaction(ctx, func(ctx context.Context) error {
		if err := c.Waypoints.DeleteForMemory(ctx, id); err != nil {
			return err
		}
		if err := c.Vectors.DeleteVector(ctx, id); err != nil {
			return err
		}
		if err := c.Memories.Delete(ctx, id); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.Bus.Emit(events.TopicMemoryDeleted, mem, events.Context{UserID: mem.UserID})
	return nil
}

// DeleteAll cascades across memories, vectors and waypoints for a user
// (spec §4.4): waypoints left without an endpoint memory are pruned in the
// same transaction as the memory rows. Temporal facts and edges are not
// removed by this call.
func (c *Core) DeleteAll(ctx context.Context, userID *string) error {
	if err := c.Vectors.DeleteVectorsByUser(ctx, userID); err != nil {
		return err
	}
	return c.DB.RunTransaction(ctx, func(ctx context.Context) error {
		if err := c.Memories.DeleteAllForUser(ctx, userID); err != nil {
			return err
		}
		_, err := c.Waypoints.PruneOrphaned(ctx, c.Memories.TableName())
		return err
	})
}

func uniqueSectors(primary model.Sector, additional []model.Sector) []model.Sector {
	seen := map[model.Sector]bool{primary: true}
	out := []model.Sector{primary}
	for _, s := range additional {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func decayLambdaFor(cfg *config.Config, sector model.Sector) float64 {
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

func meanVector(sectorVecs []embedder.SectorVector) ([]float32, int) {
	if len(sectorVecs) == 0 {
		return nil, 0
	}
	dim := sectorVecs[0].Dim
	sum := make([]float64, dim)
	for _, sv := range sectorVecs {
		for i, x := range sv.Values {
			if i < dim {
				sum[i] += float64(x)
			}
		}
	}
	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s / float64(len(sectorVecs)))
	}
	return out, dim
}

// waypointWeight seeds a new edge's weight from 1/timeGapDays and the
// cosine similarity between mean vectors (spec §4.4 step 6: "weighted by
// 1/timegap + cosine-mean").
func waypointWeight(now, otherLastSeen int64, a, b []float32) float64 {
	gapDays := float64(now-otherLastSeen) / 86400000.0
	if gapDays < 1 {
		gapDays = 1
	}
	timeTerm := 1.0 / gapDays
	cosTerm := 0.0
	if len(a) > 0 && len(b) > 0 {
		cosTerm = vectorops.Cosine(a, b)
	}
	w := timeTerm + cosTerm
	if w > 1 {
		w = 1
	}
	return w
}
