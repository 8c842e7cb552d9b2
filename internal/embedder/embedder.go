// Package embedder defines the Embedder interface consumed by the memory
// core and HSG engine (spec §6.1). Embedding model hosting is explicitly
// out of scope (spec §1 Non-goals) — the core only depends on this
// interface, splitting transport from the consumers that call it the way
// a dedicated embeddings client stays separate from its callers.
package embedder

import (
	"context"

	"github.com/openmemory/core/internal/model"
)

// SectorVector is one sector's embedding of a piece of text.
type SectorVector struct {
	Sector model.Sector
	Values []float32
	Dim    int
}

// Embedder produces one vector per requested sector for a text fragment,
// and a map sector->vec for queries. Implementations must be deterministic
// for identical inputs within a model/version (spec §6.1).
type Embedder interface {
	// EmbedMultiSector embeds text once per sector in sectors, used at
	// ingest time (spec §4.4 step 4).
	EmbedMultiSector(ctx context.Context, text string, sectors []model.Sector) ([]SectorVector, error)

	// EmbedQueryForAllSectors embeds text for every sector in one call,
	// used by HSG queries (spec §4.8 step 2).
	EmbedQueryForAllSectors(ctx context.Context, text string) (map[model.Sector][]float32, error)
}
