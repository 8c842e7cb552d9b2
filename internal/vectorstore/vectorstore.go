// Package vectorstore implements the uniform vector-store interface of
// spec §4.3 over three backends (SQLite brute-force, Postgres+pgvector
// ANN, Redis/Valkey hash-per-vector), with a shared LRU cache in front of
// all of them.
package vectorstore

import (
	"context"

	"github.com/openmemory/core/internal/model"
)

// Item is one sector-vector write, used by the batched StoreVectors path.
type Item struct {
	MemoryID string
	Sector   model.Sector
	Values   []float32
	Dim      int
	UserID   *string
	Metadata map[string]any
}

// Hit is one scored search result.
type Hit struct {
	MemoryID string
	Score    float64
}

// Filter carries metadata key/value pairs for SearchSimilar. None of the
// backends in this package apply it: search results are not narrowed by
// metadata.
type Filter struct {
	Metadata map[string]any
}

// Store is the uniform operation surface spec §4.3 requires regardless of
// backend.
type Store interface {
	StoreVector(ctx context.Context, id string, sector model.Sector, vec []float32, dim int, userID *string, metadata map[string]any) error
	StoreVectors(ctx context.Context, items []Item) error
	SearchSimilar(ctx context.Context, sector model.Sector, queryVec []float32, topK int, userID *string, filter *Filter) ([]Hit, error)
	DeleteVector(ctx context.Context, id string) error
	DeleteVectorSector(ctx context.Context, id string, sector model.Sector) error
	DeleteVectorsByUser(ctx context.Context, userID *string) error
	GetVectorsByIDs(ctx context.Context, ids []string, userID *string) (map[string][]*model.Vector, error)
	IterateVectorIDs(ctx context.Context, userID *string) ([]string, error)
	CleanupOrphanedVectors(ctx context.Context, userID *string) (int, error)
}

// storeVectorsChunkPostgres is the chunk size PgVectorStore.StoreVectors
// walks its items in (spec §4.3).
const storeVectorsChunkPostgres = 2000

// getVectorsBatchSize is the cache-miss fetch batch size (spec §4.3).
const getVectorsBatchSize = 100
