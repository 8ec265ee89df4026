package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/batchcost/internal/audit"
	"github.com/Simplici0/batchcost/internal/domain"
)

const batchSetColumns = `id, part_id, name, status, frozen_at, COALESCE(frozen_by, ''), snapshot_data, ` + auditColumns

const setFrozenExpr = "status = 'frozen'"

func scanBatchSet(row rowScanner) (domain.BatchSet, error) {
	var (
		bs       domain.BatchSet
		status   string
		frozenAt sql.NullString
		snap     sql.NullString
	)
	as := newAuditScan(&bs.Audit)
	dest := append([]any{&bs.ID, &bs.PartID, &bs.Name, &status, &frozenAt, &bs.FrozenBy, &snap}, as.dest()...)
	if err := row.Scan(dest...); err != nil {
		return domain.BatchSet{}, err
	}
	as.finish()
	bs.Status = domain.BatchSetStatus(status)
	bs.FrozenAt = parseNullableTS(frozenAt)
	if snap.Valid && snap.String != "" {
		bs.SnapshotData = json.RawMessage(snap.String)
	}
	return bs, nil
}

// InsertBatchSet creates a draft set. A part with a live draft set already
// yields ErrDraftSetExists.
func (q *Queries) InsertBatchSet(ctx context.Context, bs domain.BatchSet) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO batch_sets (part_id, name, status, created_at, updated_at, created_by, updated_by, version)
		VALUES (?, ?, 'draft', ?, ?, ?, ?, 0)
	`, bs.PartID, bs.Name, ts(bs.CreatedAt), ts(bs.UpdatedAt), bs.CreatedBy, bs.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("part %d: %w", bs.PartID, domain.ErrDraftSetExists)
		}
		return 0, fmt.Errorf("insert batch set: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetBatchSet(ctx context.Context, id int64) (domain.BatchSet, error) {
	bs, err := scanBatchSet(q.q.QueryRowContext(ctx, `SELECT `+batchSetColumns+` FROM batch_sets WHERE id = ?`, id))
	if err != nil {
		return domain.BatchSet{}, notFound("batch set", id, err)
	}
	return bs, nil
}

// DraftSetForPart returns the live draft set of a part, if any.
func (q *Queries) DraftSetForPart(ctx context.Context, partID int64) (domain.BatchSet, bool, error) {
	bs, err := scanBatchSet(q.q.QueryRowContext(ctx, `
		SELECT `+batchSetColumns+`
		FROM batch_sets
		WHERE part_id = ? AND status = 'draft' AND deleted_at IS NULL
	`, partID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BatchSet{}, false, nil
	}
	if err != nil {
		return domain.BatchSet{}, false, fmt.Errorf("draft set of part %d: %w", partID, err)
	}
	return bs, true, nil
}

// TouchBatchSet bumps the version of a draft set whose membership changes.
func (q *Queries) TouchBatchSet(ctx context.Context, id, expected int64, s audit.Stamp) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE batch_sets
		SET updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'draft' AND deleted_at IS NULL
	`, ts(s.At), s.By, id, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("touch batch set %d: %w", id, err)
	}
	return q.casOutcome(ctx, res, "batch_sets", id, expected, setFrozenExpr)
}

// FreezeBatchSet moves a draft set to frozen and stores its snapshot.
func (q *Queries) FreezeBatchSet(ctx context.Context, id, expected int64, snapshot []byte, frozenAt time.Time, frozenBy string) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE batch_sets
		SET status = 'frozen', frozen_at = ?, frozen_by = ?, snapshot_data = ?,
			updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND status = 'draft' AND deleted_at IS NULL
	`, ts(frozenAt), frozenBy, string(snapshot), ts(frozenAt), frozenBy, id, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("freeze batch set %d: %w", id, err)
	}
	return q.casOutcome(ctx, res, "batch_sets", id, expected, setFrozenExpr)
}

func (q *Queries) SoftDeleteBatchSet(ctx context.Context, id, expected int64, s audit.Stamp) (Outcome, error) {
	return q.softDelete(ctx, "batch_sets", id, expected, s)
}

// SoftDeleteBatchesInSet marks every live member of a set deleted and returns
// how many rows changed.
func (q *Queries) SoftDeleteBatchesInSet(ctx context.Context, setID int64, s audit.Stamp) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE batches
		SET deleted_at = ?, deleted_by = ?, updated_at = ?, updated_by = ?, version = version + 1
		WHERE batch_set_id = ? AND deleted_at IS NULL
	`, ts(s.At), s.By, ts(s.At), s.By, setID)
	if err != nil {
		return 0, fmt.Errorf("delete batches of set %d: %w", setID, err)
	}
	return res.RowsAffected()
}
