// VectorRepo stores per-sector vector rows (spec §3.2) for the SQLite
// brute-force backend and for Postgres metadata alongside pgvector. The
// pgvector store in internal/vectorstore uses this repo for hydration, id
// listing and orphan lookup; the Redis store does not use it.
package persistence

import (
	"context"
	"database/sql"

	"github.com/openmemory/core/internal/model"
)

type VectorRepo struct {
	db    *DB
	table string
}

func NewVectorRepo(db *DB, table string) *VectorRepo { return &VectorRepo{db: db, table: table} }

func (r *VectorRepo) Upsert(ctx context.Context, v *model.Vector) error {
	metaJSON, err := EncodeJSON(v.Metadata)
	if err != nil {
		return err
	}
	return r.db.Upsert(ctx, r.table, []string{"memory_id", "sector"}, map[string]any{
		"memory_id": v.MemoryID,
		"sector":    string(v.Sector),
		"user_id":   v.UserID,
		"dim":       v.Dim,
		"vec":       EncodeVector(v.Values),
		"metadata":  string(metaJSON),
	}, []string{"memory_id", "sector", "user_id", "dim", "vec", "metadata"})
}

func (r *VectorRepo) Get(ctx context.Context, memoryID string, sector model.Sector) (*model.Vector, error) {
	var out *model.Vector
	err := r.db.GetAsync(ctx, func(row *sql.Row) error {
		v, err := scanVector(row)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, `SELECT memory_id, sector, user_id, dim, vec, metadata FROM `+r.table+` WHERE memory_id = ? AND sector = ?`, memoryID, string(sector))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllSectors returns every sector-vector stored for memoryID.
func (r *VectorRepo) GetAllSectors(ctx context.Context, memoryID string) ([]*model.Vector, error) {
	var out []*model.Vector
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		v, err := scanVector(rows)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	}, `SELECT memory_id, sector, user_id, dim, vec, metadata FROM `+r.table+` WHERE memory_id = ?`, memoryID)
	return out, err
}

func scanVector(row interface{ Scan(...any) error }) (*model.Vector, error) {
	var v model.Vector
	var userID sql.NullString
	var sector string
	var vecBytes, metaJSON []byte
	if err := row.Scan(&v.MemoryID, &sector, &userID, &v.Dim, &vecBytes, &metaJSON); err != nil {
		return nil, err
	}
	v.Sector = model.Sector(sector)
	if userID.Valid {
		s := userID.String
		v.UserID = &s
	}
	v.Values = DecodeVector(vecBytes)
	meta, err := DecodeJSONMap(metaJSON)
	if err != nil {
		return nil, err
	}
	v.Metadata = meta
	return &v, nil
}

// BruteForceCandidates streams every vector row for (userID, sector),
// feeding the brute-force cosine scan used as the SQLite backend's
// search strategy (spec §4.3).
func (r *VectorRepo) BruteForceCandidates(ctx context.Context, userID *string, sector model.Sector) (*RowIterator, error) {
	q, args := Select("memory_id", "vec", "dim").From(r.table).
		Where("sector = ?", string(sector)).UserScope(userID).Build()
	return r.db.IterateAsync(ctx, q, args...)
}

func (r *VectorRepo) Delete(ctx context.Context, memoryID string) error {
	_, err := r.db.RunAsync(ctx, `DELETE FROM `+r.table+` WHERE memory_id = ?`, memoryID)
	return err
}

func (r *VectorRepo) DeleteSector(ctx context.Context, memoryID string, sector model.Sector) error {
	_, err := r.db.RunAsync(ctx, `DELETE FROM `+r.table+` WHERE memory_id = ? AND sector = ?`, memoryID, string(sector))
	return err
}

func (r *VectorRepo) DeleteAllForUser(ctx context.Context, userID *string) error {
	q, args := deleteWithUserScope(r.table, userID)
	_, err := r.db.RunAsync(ctx, q, args...)
	return err
}

// DistinctMemoryIDs returns every distinct memory id holding a vector row
// for userID, used by iterateVectorIds maintenance sweeps (spec §4.3).
func (r *VectorRepo) DistinctMemoryIDs(ctx context.Context, userID *string) ([]string, error) {
	q, args := Select("DISTINCT memory_id").From(r.table).UserScope(userID).Build()
	var ids []string
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	}, q, args...)
	return ids, err
}

// IterateOrphans streams memory_ids present in the vectors table with no
// matching memory row, the inverse of MemoryRepo.OrphanIDs, used by the
// cleanupOrphanedVectors maintenance op (spec §4.3).
func (r *VectorRepo) IterateOrphans(ctx context.Context, memoriesTable string, limit int) ([]string, error) {
	var ids []string
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	}, `SELECT DISTINCT v.memory_id FROM `+r.table+` v LEFT JOIN `+memoriesTable+` m ON m.id = v.memory_id WHERE m.id IS NULL LIMIT ?`, limit)
	return ids, err
}
