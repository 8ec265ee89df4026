package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Simplici0/batchcost/internal/audit"
	"github.com/Simplici0/batchcost/internal/domain"
)

const batchColumns = `id, part_id, batch_set_id, position, quantity,
	material_cost, setup_cost, machining_cost, cooperation_cost, unit_cost, total_cost, unit_time_min,
	is_frozen, frozen_at, COALESCE(frozen_by, ''), snapshot_data, ` + auditColumns

func scanBatch(row rowScanner) (domain.Batch, error) {
	var (
		b        domain.Batch
		setID    sql.NullInt64
		frozenAt sql.NullString
		snap     sql.NullString
	)
	as := newAuditScan(&b.Audit)
	dest := append([]any{
		&b.ID, &b.PartID, &setID, &b.Position, &b.Quantity,
		&b.Costs.MaterialCost, &b.Costs.SetupCost, &b.Costs.MachiningCost, &b.Costs.CooperationCost,
		&b.Costs.UnitCost, &b.Costs.TotalCost, &b.Costs.UnitTimeMin,
		&b.IsFrozen, &frozenAt, &b.FrozenBy, &snap,
	}, as.dest()...)
	if err := row.Scan(dest...); err != nil {
		return domain.Batch{}, err
	}
	as.finish()
	b.BatchSetID = idPtr(setID)
	b.FrozenAt = parseNullableTS(frozenAt)
	if snap.Valid && snap.String != "" {
		b.SnapshotData = json.RawMessage(snap.String)
	}
	return b, nil
}

func (q *Queries) InsertBatch(ctx context.Context, b domain.Batch) (int64, error) {
	c := b.Costs
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO batches (part_id, batch_set_id, position, quantity,
			material_cost, setup_cost, machining_cost, cooperation_cost, unit_cost, total_cost, unit_time_min,
			is_frozen, created_at, updated_at, created_by, updated_by, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, ?, ?, ?, ?, 0)
	`, b.PartID, nullableID(b.BatchSetID), b.Position, b.Quantity,
		c.MaterialCost, c.SetupCost, c.MachiningCost, c.CooperationCost, c.UnitCost, c.TotalCost, c.UnitTimeMin,
		ts(b.CreatedAt), ts(b.UpdatedAt), b.CreatedBy, b.UpdatedBy)
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	return res.LastInsertId()
}

// GetBatch returns a batch, including soft-deleted ones.
func (q *Queries) GetBatch(ctx context.Context, id int64) (domain.Batch, error) {
	b, err := scanBatch(q.q.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id))
	if err != nil {
		return domain.Batch{}, notFound("batch", id, err)
	}
	return b, nil
}

// ListBatchesByPart returns the live batches of a part.
func (q *Queries) ListBatchesByPart(ctx context.Context, partID int64) ([]domain.Batch, error) {
	return q.listBatches(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE part_id = ? AND deleted_at IS NULL
		ORDER BY id
	`, partID)
}

// ListBatchesBySet returns the live members of a batch set in position order.
func (q *Queries) ListBatchesBySet(ctx context.Context, setID int64) ([]domain.Batch, error) {
	return q.listBatches(ctx, `
		SELECT `+batchColumns+`
		FROM batches
		WHERE batch_set_id = ? AND deleted_at IS NULL
		ORDER BY position, id
	`, setID)
}

func (q *Queries) listBatches(ctx context.Context, query string, args ...any) ([]domain.Batch, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return batches, nil
}

// NextBatchPosition returns the position after the last live member of a set.
func (q *Queries) NextBatchPosition(ctx context.Context, setID int64) (int, error) {
	var pos int
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) + 1 FROM batches WHERE batch_set_id = ? AND deleted_at IS NULL
	`, setID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("next position in batch set %d: %w", setID, err)
	}
	return pos, nil
}

// UpdateBatch writes quantity and costs of a draft batch.
func (q *Queries) UpdateBatch(ctx context.Context, b domain.Batch, expected int64, s audit.Stamp) (Outcome, error) {
	c := b.Costs
	res, err := q.q.ExecContext(ctx, `
		UPDATE batches
		SET quantity = ?, material_cost = ?, setup_cost = ?, machining_cost = ?, cooperation_cost = ?,
			unit_cost = ?, total_cost = ?, unit_time_min = ?,
			updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND is_frozen = FALSE AND deleted_at IS NULL
	`, b.Quantity, c.MaterialCost, c.SetupCost, c.MachiningCost, c.CooperationCost, c.UnitCost, c.TotalCost, c.UnitTimeMin,
		ts(s.At), s.By, b.ID, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("update batch %d: %w", b.ID, err)
	}
	return q.casOutcome(ctx, res, "batches", b.ID, expected, "is_frozen")
}

// FreezeBatch stores the final costs and snapshot and marks the batch frozen.
func (q *Queries) FreezeBatch(ctx context.Context, id, expected int64, costs domain.Costs, snapshot []byte, frozenAt time.Time, frozenBy string) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE batches
		SET material_cost = ?, setup_cost = ?, machining_cost = ?, cooperation_cost = ?,
			unit_cost = ?, total_cost = ?, unit_time_min = ?,
			is_frozen = TRUE, frozen_at = ?, frozen_by = ?, snapshot_data = ?,
			updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND is_frozen = FALSE AND deleted_at IS NULL
	`, costs.MaterialCost, costs.SetupCost, costs.MachiningCost, costs.CooperationCost, costs.UnitCost, costs.TotalCost, costs.UnitTimeMin,
		ts(frozenAt), frozenBy, string(snapshot), ts(frozenAt), frozenBy, id, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("freeze batch %d: %w", id, err)
	}
	return q.casOutcome(ctx, res, "batches", id, expected, "is_frozen")
}

// SoftDeleteBatch marks a batch deleted. Frozen batches may be deleted; their
// snapshot stays on the row.
func (q *Queries) SoftDeleteBatch(ctx context.Context, id, expected int64, s audit.Stamp) (Outcome, error) {
	return q.softDelete(ctx, "batches", id, expected, s)
}
