// MemoryRepo implements the memory-row half of spec §4.2's repository
// surface (memories entity).
package persistence

import (
	"context"
	"database/sql"

	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/model"
)

type MemoryRepo struct {
	db    *DB
	table string
}

func NewMemoryRepo(db *DB, table string) *MemoryRepo { return &MemoryRepo{db: db, table: table} }

// TableName returns the underlying table name, used by callers (e.g.
// dynamics' decay sweep) that must reference it in a cross-table query.
func (r *MemoryRepo) TableName() string { return r.table }

func (r *MemoryRepo) Insert(ctx context.Context, m *model.Memory) error {
	tagsJSON, err := EncodeJSON(m.Tags)
	if err != nil {
		return errs.Validation("failed to encode tags", err)
	}
	metaJSON, err := EncodeJSON(m.Metadata)
	if err != nil {
		return errs.Validation("failed to encode metadata", err)
	}
	_, err = r.db.RunAsync(ctx, `INSERT INTO `+r.table+` (
		id, user_id, segment, content, simhash, primary_sector, tags, metadata,
		created_at, updated_at, last_seen_at, salience, decay_lambda, version,
		mean_dim, mean_vec, feedback_score, generated_summary, coactivations, encryption_key_version, compressed_vec
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.UserID, m.Segment, m.Content, m.Simhash, string(m.PrimarySector), string(tagsJSON), string(metaJSON),
		m.CreatedAt, m.UpdatedAt, m.LastSeenAt, m.Salience, m.DecayLambda, m.Version,
		m.MeanDim, EncodeVector(m.MeanVec), m.FeedbackScore, m.GeneratedSummary, m.Coactivations, m.EncryptionKeyVersion, m.CompressedVec)
	return err
}

func (r *MemoryRepo) scanRow(row interface{ Scan(...any) error }) (*model.Memory, error) {
	var m model.Memory
	var userID sql.NullString
	var tagsJSON, metaJSON []byte
	var meanVec []byte
	var content, simhash, sector string

	if err := row.Scan(&m.ID, &userID, &m.Segment, &content, &simhash, &sector, &tagsJSON, &metaJSON,
		&m.CreatedAt, &m.UpdatedAt, &m.LastSeenAt, &m.Salience, &m.DecayLambda, &m.Version,
		&m.MeanDim, &meanVec, &m.FeedbackScore, &m.GeneratedSummary, &m.Coactivations, &m.EncryptionKeyVersion, &m.CompressedVec); err != nil {
		return nil, err
	}
	if userID.Valid {
		v := userID.String
		m.UserID = &v
	}
	m.Content = content
	m.Simhash = simhash
	m.PrimarySector = model.Sector(sector)
	tags, err := DecodeJSONStrings(tagsJSON)
	if err != nil {
		return nil, err
	}
	m.Tags = tags
	meta, err := DecodeJSONMap(metaJSON)
	if err != nil {
		return nil, err
	}
	m.Metadata = meta
	m.MeanVec = DecodeVector(meanVec)
	return &m, nil
}

var memoryCols = `id, user_id, segment, content, simhash, primary_sector, tags, metadata,
		created_at, updated_at, last_seen_at, salience, decay_lambda, version,
		mean_dim, mean_vec, feedback_score, generated_summary, coactivations, encryption_key_version, compressed_vec`

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (*model.Memory, error) {
	var out *model.Memory
	err := r.db.GetAsync(ctx, func(row *sql.Row) error {
		m, err := r.scanRow(row)
		if err != nil {
			return err
		}
		out = m
		return nil
	}, `SELECT `+memoryCols+` FROM `+r.table+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MemoryRepo) GetByIDs(ctx context.Context, ids []string) ([]*model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]any, len(ids))
	q := `SELECT ` + memoryCols + ` FROM ` + r.table + ` WHERE id IN (`
	for i, id := range ids {
		if i > 0 {
			q += ","
		}
		q += "?"
		placeholders[i] = id
	}
	q += ")"
	var out []*model.Memory
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		m, err := r.scanRow(rows)
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	}, q, placeholders...)
	return out, err
}

// GetBySimhash finds an existing memory for (userId, simhash), implementing
// dedup lookup (spec §4.4 step 2).
func (r *MemoryRepo) GetBySimhash(ctx context.Context, userID *string, simhash string) (*model.Memory, error) {
	q, args := Select(memoryColList()...).From(r.table).
		Where("simhash = ?", simhash).UserScope(userID).Build()
	var out *model.Memory
	err := r.db.GetAsync(ctx, func(row *sql.Row) error {
		m, err := r.scanRow(row)
		if err != nil {
			return err
		}
		out = m
		return nil
	}, q, args...)
	if errs.Is(err, errs.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func memoryColList() []string {
	return []string{"id", "user_id", "segment", "content", "simhash", "primary_sector", "tags", "metadata",
		"created_at", "updated_at", "last_seen_at", "salience", "decay_lambda", "version",
		"mean_dim", "mean_vec", "feedback_score", "generated_summary", "coactivations", "encryption_key_version", "compressed_vec"}
}

func (r *MemoryRepo) Update(ctx context.Context, m *model.Memory) error {
	tagsJSON, _ := EncodeJSON(m.Tags)
	metaJSON, _ := EncodeJSON(m.Metadata)
	n, err := r.db.RunAsync(ctx, `UPDATE `+r.table+` SET
		content=?, simhash=?, primary_sector=?, tags=?, metadata=?, updated_at=?, last_seen_at=?,
		salience=?, decay_lambda=?, version=?, mean_dim=?, mean_vec=?, feedback_score=?,
		generated_summary=?, coactivations=?, encryption_key_version=?, compressed_vec=?
		WHERE id = ?`,
		m.Content, m.Simhash, string(m.PrimarySector), string(tagsJSON), string(metaJSON), m.UpdatedAt, m.LastSeenAt,
		m.Salience, m.DecayLambda, m.Version, m.MeanDim, EncodeVector(m.MeanVec), m.FeedbackScore,
		m.GeneratedSummary, m.Coactivations, m.EncryptionKeyVersion, m.CompressedVec, m.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound("memory not found: "+m.ID, nil)
	}
	return nil
}

// TouchReinforce implements the dedup-collision path (spec §4.4 step 2):
// bump lastSeenAt, increment coactivations, reinforce salience.
func (r *MemoryRepo) TouchReinforce(ctx context.Context, id string, nowMs int64, salienceBoost, maxSalience float64) error {
	_, err := r.db.RunAsync(ctx, `UPDATE `+r.table+` SET
		last_seen_at = ?,
		coactivations = coactivations + 1,
		salience = MIN(?, salience + ?)
		WHERE id = ?`, nowMs, maxSalience, salienceBoost, id)
	return err
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	n, err := r.db.RunAsync(ctx, `DELETE FROM `+r.table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound("memory not found: "+id, nil)
	}
	return nil
}

func (r *MemoryRepo) DeleteAllForUser(ctx context.Context, userID *string) error {
	q, args := deleteWithUserScope(r.table, userID)
	_, err := r.db.RunAsync(ctx, q, args...)
	return err
}

func deleteWithUserScope(table string, userID *string) (string, []any) {
	if userID != nil {
		return `DELETE FROM ` + table + ` WHERE user_id = ?`, []any{*userID}
	}
	return `DELETE FROM ` + table + ` WHERE user_id IS NULL`, nil
}

// CountForUser returns the number of memory rows owned by userID, used by
// the dedup-idempotence test scenario (spec §8 scenario 1).
func (r *MemoryRepo) CountForUser(ctx context.Context, userID *string) (int64, error) {
	q, args := Select("COUNT(*) as c").From(r.table).UserScope(userID).Build()
	var n int64
	err := r.db.GetAsync(ctx, func(row *sql.Row) error { return row.Scan(&n) }, q, args...)
	return n, err
}

// IterateIDsAll lazily streams every memory row in [segmentLow, segmentHigh)
// ordered by id, used by maintenance sweeps. afterID excludes every row at
// or before that id so successive calls with the previous batch's last id
// cover disjoint, monotonically advancing pages instead of re-reading the
// same LIMIT-bounded prefix every time.
func (r *MemoryRepo) IterateIDsAll(ctx context.Context, segmentLow, segmentHigh int32, afterID string, limit int) (*RowIterator, error) {
	return r.db.IterateAsync(ctx, `SELECT id, user_id, salience, decay_lambda, last_seen_at, primary_sector, segment FROM `+r.table+`
		WHERE segment >= ? AND segment < ? AND id > ? ORDER BY id LIMIT ?`, segmentLow, segmentHigh, afterID, limit)
}

func (r *MemoryRepo) ApplyDecayBatch(ctx context.Context, updates map[string]float64) error {
	return r.db.RunTransaction(ctx, func(ctx context.Context) error {
		for id, newSalience := range updates {
			if _, err := r.db.RunAsync(ctx, `UPDATE `+r.table+` SET salience = ? WHERE id = ?`, newSalience, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteColdBelow deletes memories whose salience fell below threshold,
// implementing decay-triggered deletion (spec §3.1 Lifecycle).
func (r *MemoryRepo) DeleteColdBelow(ctx context.Context, threshold float64, limit int) ([]string, error) {
	var ids []string
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	}, `SELECT id FROM `+r.table+` WHERE salience < ? LIMIT ?`, threshold, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, r.db.RunTransaction(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if _, err := r.db.RunAsync(ctx, `DELETE FROM `+r.table+` WHERE id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// RecentForUser returns the most recently seen memories for userID,
// excluding excludeID, used to seed waypoint creation at ingest time
// (spec §4.4 step 6).
func (r *MemoryRepo) RecentForUser(ctx context.Context, userID *string, excludeID string, limit int) ([]*model.Memory, error) {
	q, args := Select(memoryColList()...).From(r.table).
		Where("id != ?", excludeID).UserScope(userID).
		OrderBy("last_seen_at DESC").Limit(limit).Build()
	var out []*model.Memory
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		m, err := r.scanRow(rows)
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	}, q, args...)
	return out, err
}

// OrphanIDs returns memory ids that exist in the memories table but have no
// surviving vector row — candidates for pruning (spec §3.1 invariant).
func (r *MemoryRepo) OrphanIDs(ctx context.Context, vectorsTable string, limit int) ([]string, error) {
	var ids []string
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	}, `SELECT m.id FROM `+r.table+` m LEFT JOIN `+vectorsTable+` v ON v.memory_id = m.id WHERE v.memory_id IS NULL LIMIT ?`, limit)
	return ids, err
}
