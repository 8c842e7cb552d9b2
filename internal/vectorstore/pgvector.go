// PgVectorStore implements Store against Postgres with the pgvector
// extension, issuing real ANN queries through a dedicated pgxpool — the
// shared database/sql DB is metadata-only, so vector literal encoding
// needs pgx's native type support (github.com/pgvector/pgvector-go).
package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/model"
	"github.com/openmemory/core/internal/persistence"
)

type PgVectorStore struct {
	pool          *pgxpool.Pool
	table         string
	memoriesTable string
	repo          *persistence.VectorRepo // metadata rows: GetVectorsByIDs hydration, id listing and orphan lookup
	cache         *Cache
}

func NewPgVectorStore(pool *pgxpool.Pool, table, memoriesTable string, repo *persistence.VectorRepo, cache *Cache) *PgVectorStore {
	return &PgVectorStore{pool: pool, table: table, memoriesTable: memoriesTable, repo: repo, cache: cache}
}

func (s *PgVectorStore) StoreVector(ctx context.Context, id string, sector model.Sector, vec []float32, dim int, userID *string, metadata map[string]any) error {
	if len(vec) != dim {
		return errs.Validation("vector length does not match dim", nil)
	}
	q := fmt.Sprintf(`INSERT INTO %s (memory_id, sector, user_id, dim, vec_ann) VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (memory_id, sector) DO UPDATE SET user_id = excluded.user_id, dim = excluded.dim, vec_ann = excluded.vec_ann`, s.table)
	if _, err := s.pool.Exec(ctx, q, id, string(sector), userID, dim, pgvector.NewVector(vec)); err != nil {
		return errs.Storage("pgvector store failed", err)
	}
	if err := s.repo.Upsert(ctx, &model.Vector{MemoryID: id, Sector: sector, UserID: userID, Values: vec, Dim: dim, Metadata: metadata}); err != nil {
		return err
	}
	s.cache.Invalidate(id)
	return nil
}

// StoreVectors walks items in chunks of storeVectorsChunkPostgres and
// writes each item with its own StoreVector call; no multi-VALUES insert
// is issued.
func (s *PgVectorStore) StoreVectors(ctx context.Context, items []Item) error {
	for start := 0; start < len(items); start += storeVectorsChunkPostgres {
		end := start + storeVectorsChunkPostgres
		if end > len(items) {
			end = len(items)
		}
		for _, it := range items[start:end] {
			if err := s.StoreVector(ctx, it.MemoryID, it.Sector, it.Values, it.Dim, it.UserID, it.Metadata); err != nil {
				return err
			}
		}
	}
	return nil
}

// SearchSimilar issues `ORDER BY vec_ann <=> $1 ASC LIMIT k` and converts
// cosine distance to similarity = 1 - distance (spec §4.3).
func (s *PgVectorStore) SearchSimilar(ctx context.Context, sector model.Sector, queryVec []float32, topK int, userID *string, filter *Filter) ([]Hit, error) {
	q := fmt.Sprintf(`SELECT memory_id, vec_ann <=> $1 AS distance FROM %s WHERE sector = $2`, s.table)
	args := []any{pgvector.NewVector(queryVec), string(sector)}
	n := 3
	if userID != nil {
		q += fmt.Sprintf(" AND user_id = $%d", n)
		args = append(args, *userID)
		n++
	} else {
		q += " AND user_id IS NULL"
	}
	q += fmt.Sprintf(" ORDER BY distance ASC LIMIT $%d", n)
	args = append(args, topK)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errs.Storage("pgvector search failed", err)
	}
	defer rows.Close()
	var out []Hit
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, errs.Storage("pgvector scan failed", err)
		}
		out = append(out, Hit{MemoryID: id, Score: 1 - distance})
	}
	return out, rows.Err()
}

func (s *PgVectorStore) DeleteVector(ctx context.Context, id string) error {
	s.cache.Invalidate(id)
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE memory_id = $1`, id); err != nil {
		return errs.Storage("pgvector delete failed", err)
	}
	return s.repo.Delete(ctx, id)
}

func (s *PgVectorStore) DeleteVectorSector(ctx context.Context, id string, sector model.Sector) error {
	s.cache.Invalidate(id)
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE memory_id = $1 AND sector = $2`, id, string(sector)); err != nil {
		return errs.Storage("pgvector delete sector failed", err)
	}
	return s.repo.DeleteSector(ctx, id, sector)
}

func (s *PgVectorStore) DeleteVectorsByUser(ctx context.Context, userID *string) error {
	ids, err := s.repo.DistinctMemoryIDs(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.cache.Invalidate(id)
	}
	if userID != nil {
		if _, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE user_id = $1`, *userID); err != nil {
			return errs.Storage("pgvector delete by user failed", err)
		}
	} else {
		if _, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE user_id IS NULL`); err != nil {
			return errs.Storage("pgvector delete by user failed", err)
		}
	}
	return s.repo.DeleteAllForUser(ctx, userID)
}

func (s *PgVectorStore) GetVectorsByIDs(ctx context.Context, ids []string, userID *string) (map[string][]*model.Vector, error) {
	out := make(map[string][]*model.Vector, len(ids))
	var misses []string
	for _, id := range ids {
		if v, ok := s.cache.Get(id); ok {
			out[id] = v
			continue
		}
		misses = append(misses, id)
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

func (s *PgVectorStore) IterateVectorIDs(ctx context.Context, userID *string) ([]string, error) {
	return s.repo.DistinctMemoryIDs(ctx, userID)
}

func (s *PgVectorStore) CleanupOrphanedVectors(ctx context.Context, userID *string) (int, error) {
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
