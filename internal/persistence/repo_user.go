// UserRepo stores the per-user reflective summary of spec §3.6, updated by
// the consolidation dynamics (SPEC_FULL §C.4).
package persistence

import (
	"context"
	"database/sql"

	"github.com/openmemory/core/internal/model"
)

type UserRepo struct {
	db    *DB
	table string
}

func NewUserRepo(db *DB, table string) *UserRepo { return &UserRepo{db: db, table: table} }

func (r *UserRepo) Get(ctx context.Context, userID string) (*model.UserSummary, error) {
	var out *model.UserSummary
	err := r.db.GetAsync(ctx, func(row *sql.Row) error {
		var u model.UserSummary
		if err := row.Scan(&u.UserID, &u.Summary, &u.ReflectionCount, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return err
		}
		out = &u
		return nil
	}, `SELECT user_id, summary, reflection_count, created_at, updated_at FROM `+r.table+` WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *UserRepo) Upsert(ctx context.Context, u *model.UserSummary) error {
	return r.db.Upsert(ctx, r.table, []string{"user_id"}, map[string]any{
		"user_id":          u.UserID,
		"summary":          u.Summary,
		"reflection_count": u.ReflectionCount,
		"created_at":       u.CreatedAt,
		"updated_at":       u.UpdatedAt,
	}, []string{"user_id", "summary", "reflection_count", "created_at", "updated_at"})
}

func (r *UserRepo) IncrementReflection(ctx context.Context, userID string, summary string, updatedAt int64) error {
	_, err := r.db.RunAsync(ctx, `UPDATE `+r.table+` SET summary = ?, reflection_count = reflection_count + 1, updated_at = ? WHERE user_id = ?`,
		summary, updatedAt, userID)
	return err
}
