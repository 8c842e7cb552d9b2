// FactRepo and EdgeRepo implement the bitemporal store of spec §3.4/§3.5 —
// append-only rows with an open [validFrom, validTo) window, never mutated
// in place except to close the window or decay confidence.
package persistence

import (
	"context"
	"database/sql"

	"github.com/openmemory/core/internal/model"
)

type FactRepo struct {
	db    *DB
	table string
}

func NewFactRepo(db *DB, table string) *FactRepo { return &FactRepo{db: db, table: table} }

func (r *FactRepo) Insert(ctx context.Context, f *model.TemporalFact) error {
	metaJSON, err := EncodeJSON(f.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.RunAsync(ctx, `INSERT INTO `+r.table+`
		(id, user_id, subject, predicate, object, valid_from, valid_to, confidence, last_updated, metadata)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.UserID, f.Subject, f.Predicate, f.Object, f.ValidFrom, f.ValidTo, f.Confidence, f.LastUpdated, string(metaJSON))
	return err
}

// OpenFactsFor returns every currently-open fact for (userId, subject,
// predicate), used to detect conflicts before inserting a new value
// (spec §4.7, SPEC_FULL §C.2).
func (r *FactRepo) OpenFactsFor(ctx context.Context, userID *string, subject, predicate string) ([]*model.TemporalFact, error) {
	q, args := Select(factCols()...).From(r.table).
		Where("subject = ? AND predicate = ? AND valid_to IS NULL", subject, predicate).
		UserScope(userID).Build()
	var out []*model.TemporalFact
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		f, err := scanFact(rows)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	}, q, args...)
	return out, err
}

// AtTime returns every fact valid at timestamp ts for (userID, subject) —
// the bitemporal point-in-time query of spec §4.7.
func (r *FactRepo) AtTime(ctx context.Context, userID *string, subject string, ts int64) ([]*model.TemporalFact, error) {
	q, args := Select(factCols()...).From(r.table).
		Where("subject = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)", subject, ts, ts).
		UserScope(userID).Build()
	var out []*model.TemporalFact
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		f, err := scanFact(rows)
		if err != nil {
			return err
		}
		out = append(out, f)
		return nil
	}, q, args...)
	return out, err
}

func (r *FactRepo) CloseWindow(ctx context.Context, id string, validTo, lastUpdated int64) error {
	_, err := r.db.RunAsync(ctx, `UPDATE `+r.table+` SET valid_to = ?, last_updated = ? WHERE id = ?`, validTo, lastUpdated, id)
	return err
}

func (r *FactRepo) DecayConfidence(ctx context.Context, id string, confidence float64, lastUpdated int64) error {
	_, err := r.db.RunAsync(ctx, `UPDATE `+r.table+` SET confidence = ?, last_updated = ? WHERE id = ?`, confidence, lastUpdated, id)
	return err
}

func (r *FactRepo) AllOpenForSweep(ctx context.Context, limit int) (*RowIterator, error) {
	return r.db.IterateAsync(ctx, `SELECT `+joinCols(factCols())+` FROM `+r.table+` WHERE valid_to IS NULL ORDER BY last_updated ASC LIMIT ?`, limit)
}

func factCols() []string {
	return []string{"id", "user_id", "subject", "predicate", "object", "valid_from", "valid_to", "confidence", "last_updated", "metadata"}
}

func scanFact(row interface{ Scan(...any) error }) (*model.TemporalFact, error) {
	var f model.TemporalFact
	var userID sql.NullString
	var validTo sql.NullInt64
	var metaJSON []byte
	if err := row.Scan(&f.ID, &userID, &f.Subject, &f.Predicate, &f.Object, &f.ValidFrom, &validTo, &f.Confidence, &f.LastUpdated, &metaJSON); err != nil {
		return nil, err
	}
	if userID.Valid {
		v := userID.String
		f.UserID = &v
	}
	if validTo.Valid {
		v := validTo.Int64
		f.ValidTo = &v
	}
	meta, err := DecodeJSONMap(metaJSON)
	if err != nil {
		return nil, err
	}
	f.Metadata = meta
	return &f, nil
}

// EdgeRepo mirrors FactRepo for the relational half of the temporal graph
// (spec §3.5).
type EdgeRepo struct {
	db    *DB
	table string
}

func NewEdgeRepo(db *DB, table string) *EdgeRepo { return &EdgeRepo{db: db, table: table} }

func (r *EdgeRepo) Insert(ctx context.Context, e *model.TemporalEdge) error {
	metaJSON, err := EncodeJSON(e.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.RunAsync(ctx, `INSERT INTO `+r.table+`
		(id, user_id, source_id, target_id, relation_type, valid_from, valid_to, weight, last_updated, metadata)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, e.SourceID, e.TargetID, e.RelationType, e.ValidFrom, e.ValidTo, e.Weight, e.LastUpdated, string(metaJSON))
	return err
}

// OpenEdgesFor returns every currently-open edge for (userID, sourceID,
// targetID, relationType) — edges are keyed the same way facts are keyed,
// but over the (source, target, relationType) triple (spec §4.7, §3.5).
func (r *EdgeRepo) OpenEdgesFor(ctx context.Context, userID *string, sourceID, targetID, relationType string) ([]*model.TemporalEdge, error) {
	q, args := Select(edgeCols()...).From(r.table).
		Where("source_id = ? AND target_id = ? AND relation_type = ? AND valid_to IS NULL", sourceID, targetID, relationType).
		UserScope(userID).Build()
	var out []*model.TemporalEdge
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		e, err := scanEdge(rows)
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	}, q, args...)
	return out, err
}

func (r *EdgeRepo) AtTime(ctx context.Context, userID *string, sourceID string, ts int64) ([]*model.TemporalEdge, error) {
	q, args := Select(edgeCols()...).From(r.table).
		Where("source_id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)", sourceID, ts, ts).
		UserScope(userID).Build()
	var out []*model.TemporalEdge
	err := r.db.AllAsync(ctx, func(rows *sql.Rows) error {
		e, err := scanEdge(rows)
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	}, q, args...)
	return out, err
}

func (r *EdgeRepo) CloseWindow(ctx context.Context, id string, validTo, lastUpdated int64) error {
	_, err := r.db.RunAsync(ctx, `UPDATE `+r.table+` SET valid_to = ?, last_updated = ? WHERE id = ?`, validTo, lastUpdated, id)
	return err
}

func edgeCols() []string {
	return []string{"id", "user_id", "source_id", "target_id", "relation_type", "valid_from", "valid_to", "weight", "last_updated", "metadata"}
}

func scanEdge(row interface{ Scan(...any) error }) (*model.TemporalEdge, error) {
	var e model.TemporalEdge
	var userID sql.NullString
	var validTo sql.NullInt64
	var metaJSON []byte
	if err := row.Scan(&e.ID, &userID, &e.SourceID, &e.TargetID, &e.RelationType, &e.ValidFrom, &validTo, &e.Weight, &e.LastUpdated, &metaJSON); err != nil {
		return nil, err
	}
	if userID.Valid {
		v := userID.String
		e.UserID = &v
	}
	if validTo.Valid {
		v := validTo.Int64
		e.ValidTo = &v
	}
	meta, err := DecodeJSONMap(metaJSON)
	if err != nil {
		return nil, err
	}
	e.Metadata = meta
	return &e, nil
}
