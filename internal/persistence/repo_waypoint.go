// WaypointRepo implements the associative edge store of spec §3.3/§4.6.
// Edges are stored as a single directed row per unordered pair (the lower
// id first) so reinforcement/decay never double-count a traversal.
package persistence

import (
	"context"
	"database/sql"

	"github.com/openmemory/core/internal/model"
)

type WaypointRepo struct {
	db    *DB
	table string
}

func NewWaypointRepo(db *DB, table string) *WaypointRepo { return &WaypointRepo{db: db, table: table} }

func canonicalPair(a, b string) (string, string, bool) {
	if a <= b {
		return a, b, false
	}
	return b, a, true
}

// Upsert inserts a new waypoint or reinforces an existing one toward
// newWeight, taking the caller-computed weight (spec §4.6's reinforcement
// formula min(1, w + eta) is computed by the waypoint package, not here).
func (r *WaypointRepo) Upsert(ctx context.Context, w *model.Waypoint) error {
	src, dst, _ := canonicalPair(w.SrcID, w.DstID)
	return r.db.Upsert(ctx, r.table, []string{"src_id", "dst_id", "user_id"}, map[string]any{
		"src_id":     src,
		"dst_id":     dst,
		"user_id":    w.UserID,
		"weight":     w.Weight,
		"created_at": w.CreatedAt,
		"updated_at": w.UpdatedAt,
	}, []string{"src_id", "dst_id", "user_id", "weight", "created_at", "updated_at"})
}

func (r *WaypointRepo) Get(ctx context.Context, a, b string, userID *string) (*model.Waypoint, error) {
	src, dst, _ := canonicalPair(a, b)
	q, args := Select("src_id", "dst_id", "user_id", "weight", "created_at", "updated_at").
		From(r.table).Where("src_id = ? AND dst_id = ?", src, dst).UserScope(userID).Build()
	var out *model.Waypoint
	err := r.db.GetAsync(ctx, func(row *sql.Row) error {
		w, err := scanWaypoint(row)
		if err != nil {
			return err
		}
		out = w
		return nil
	}, q, args...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Neighbors lists every waypoint touching id, in either column, sorted by
// weight descending — the primary traversal query for spreading activation
// and waypoint expansion (spec §4.6, §4.8).
func (r *WaypointRepo) Neighbors(ctx context.Context, id string, userID *string, minWeight float64, limit int) ([]*model.Waypoint, error) {
	q, args := Select("src_id", "dst_id", "user_id", "weight", "created_at", "updated_at").
		From(r.table).
		Where("(src_id = ? OR dst_id = ?) AND weight >= ?", id, id, minWeight).
		UserScope(userID).
		OrderBy("weight DESC").
		Limit(limit).Build()
	var out []*model.Waypoint
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		w, err := scanWaypoint(rows)
		if err != nil {
			return err
		}
		out = append(out, w)
		return nil
	}, q, args...)
	return out, err
}

func scanWaypoint(row interface{ Scan(...any) error }) (*model.Waypoint, error) {
	var w model.Waypoint
	var userID sql.NullString
	if err := row.Scan(&w.SrcID, &w.DstID, &userID, &w.Weight, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		v := userID.String
		w.UserID = &v
	}
	return &w, nil
}

// AllForSweep streams every waypoint for a decay pass, regardless of user.
func (r *WaypointRepo) AllForSweep(ctx context.Context, limit int) (*RowIterator, error) {
	return r.db.IterateAsync(ctx, `SELECT src_id, dst_id, user_id, weight, created_at, updated_at FROM `+r.table+` ORDER BY updated_at ASC LIMIT ?`, limit)
}

// SetWeight overwrites an edge's weight, used by both reinforcement and
// the decay sweep.
func (r *WaypointRepo) SetWeight(ctx context.Context, src, dst string, weight float64, updatedAt int64) error {
	_, err := r.db.RunAsync(ctx, `UPDATE `+r.table+` SET weight = ?, updated_at = ? WHERE src_id = ? AND dst_id = ?`, weight, updatedAt, src, dst)
	return err
}

// PruneBelow deletes every waypoint whose weight fell under threshold,
// implementing the pruning half of spec §4.6's dynamics.
func (r *WaypointRepo) PruneBelow(ctx context.Context, threshold float64) (int64, error) {
	return r.db.RunAsync(ctx, `DELETE FROM `+r.table+` WHERE weight < ?`, threshold)
}

// PruneOrphaned deletes waypoints whose endpoint no longer has a memory row,
// keeping the graph consistent after memory deletion (spec §3.3 invariant).
func (r *WaypointRepo) PruneOrphaned(ctx context.Context, memoriesTable string) (int64, error) {
	return r.db.RunAsync(ctx, `DELETE FROM `+r.table+` WHERE src_id NOT IN (SELECT id FROM `+memoriesTable+`) OR dst_id NOT IN (SELECT id FROM `+memoriesTable+`)`)
}

func (r *WaypointRepo) DeleteForMemory(ctx context.Context, id string) error {
	_, err := r.db.RunAsync(ctx, `DELETE FROM `+r.table+` WHERE src_id = ? OR dst_id = ?`, id, id)
	return err
}

// CountAndMeanWeight supports the supplemented network-health metric (spec
// SPEC_FULL §C.1): total edges and mean weight per user.
func (r *WaypointRepo) CountAndMeanWeight(ctx context.Context, userID *string) (count int64, meanWeight float64, err error) {
	q, args := Select("COUNT(*) as c", "COALESCE(AVG(weight), 0) as w").From(r.table).UserScope(userID).Build()
	err = r.db.GetAsync(ctx, func(row *sql.Row) error { return row.Scan(&count, &meanWeight) }, q, args...)
	return
}
