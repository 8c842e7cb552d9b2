// SQLiteStore implements Store by brute-force cosine scan over the shared
// metadata DB's vectors table (spec §4.3 "otherwise iterates candidate
// rows... and runs batch cosine in memory").
package vectorstore

import (
	"context"

	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
	"github.com/openmemory/core/internal/vectorops"
)

type SQLiteStore struct {
	repo          *persistence.VectorRepo
	cache         *Cache
	memoriesTable string
}

func NewSQLiteStore(repo *persistence.VectorRepo, cache *Cache, memoriesTable string) *SQLiteStore {
	return &SQLiteStore{repo: repo, cache: cache, memoriesTable: memoriesTable}
}

func (s *SQLiteStore) StoreVector(ctx context.Context, id string, sector model.Sector, vec []float32, dim int, userID *string, metadata map[string]any) error {
	if len(vec) != dim {
		return errs.Validation("vector length does not match dim", nil)
	}
	if err := s.repo.Upsert(ctx, &model.Vector{MemoryID: id, Sector: sector, UserID: userID, Values: vec, Dim: dim, Metadata: metadata}); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

func (s *SQLiteStore) StoreVectors(ctx context.Context, items []Item) error {
	for _, it := range items {
		if err := s.StoreVector(ctx, it.MemoryID, it.Sector, it.Values, it.Dim, it.UserID, it.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SearchSimilar(ctx context.Context, sector model.Sector, queryVec []float32, topK int, userID *string, filter *Filter) ([]Hit, error) {
	it, err := s.repo.BruteForceCandidates(ctx, userID, sector)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	candidates := make(map[string][]float32)
	for it.Next() {
		var memoryID string
		var vecBytes []byte
		var dim int
		if err := it.Scan(&memoryID, &vecBytes, &dim); err != nil {
			return nil, err
		}
		candidates[memoryID] = persistence.DecodeVector(vecBytes)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	scored := vectorops.BatchTopKCosine(queryVec, candidates, topK)
	out := make([]Hit, len(scored))
	for i, sc := range scored {
		out[i] = Hit{MemoryID: sc.ID, Score: sc.Score}
	}
	return out, nil
}

func (s *SQLiteStore) DeleteVector(ctx context.Context, id string) error {
	s.cache.Invalidate(id)
	return s.repo.Delete(ctx, id)
}

func (s *SQLiteStore) DeleteVectorSector(ctx context.Context, id string, sector model.Sector) error {
	s.cache.Invalidate(id)
	return s.repo.DeleteSector(ctx, id, sector)
}

func (s *SQLiteStore) DeleteVectorsByUser(ctx context.Context, userID *string) error {
	ids, err := s.repo.DistinctMemoryIDs(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.cache.Invalidate(id)
	}
	return s.repo.DeleteAllForUser(ctx, userID)
}

func (s *SQLiteStore) GetVectorsByIDs(ctx context.Context, ids []string, userID *string) (map[string][]*model.Vector, error) {
	out := make(map[string][]*model.Vector, len(ids))
	var misses []string
	for _, id := range ids {
		if v, ok := s.cache.Get(id); ok {
			out[id] = v
		} else {
			misses = append(misses, id)
		}
	}
	for start := 0; start < len(misses); start += getVectorsBatchSize {
		end := start + getVectorsBatchSize
		if end > len(misses) {
			end = len(misses)
		}
		for _, id := range misses[start:end] {
			vectors, err := s.repo.GetAllSectors(ctx, id)
			if err != nil {
				return nil, err
			}
			out[id] = vectors
			s.cache.Set(id, vectors)
		}
	}
	return out, nil
}

func (s *SQLiteStore) IterateVectorIDs(ctx context.Context, userID *string) ([]string, error) {
	return s.repo.DistinctMemoryIDs(ctx, userID)
}

func (s *SQLiteStore) CleanupOrphanedVectors(ctx context.Context, userID *string) (int, error) {
	ids, err := s.repo.IterateOrphans(ctx, s.memoriesTable, 10000)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.DeleteVector(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
