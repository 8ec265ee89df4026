package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/batchcost/internal/audit"
	"github.com/Simplici0/batchcost/internal/domain"
)

func (q *Queries) InsertPart(ctx context.Context, p domain.Part) (int64, error) {
	stockType, stock, err := domain.EncodeStock(p.Stock)
	if err != nil {
		return 0, err
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO parts (part_number, name, stock_type, stock_json, material_id, created_at, updated_at, created_by, updated_by, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, p.PartNumber, p.Name, string(stockType), string(stock), p.MaterialID, ts(p.CreatedAt), ts(p.UpdatedAt), p.CreatedBy, p.UpdatedBy)
	if err != nil {
		return 0, fmt.Errorf("insert part: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetPart(ctx context.Context, id int64) (domain.Part, error) {
	var (
		p         domain.Part
		stockType string
		stock     string
	)
	as := newAuditScan(&p.Audit)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, part_number, name, stock_type, stock_json, material_id, `+auditColumns+`
		FROM parts
		WHERE id = ?
	`, id).Scan(append([]any{&p.ID, &p.PartNumber, &p.Name, &stockType, &stock, &p.MaterialID}, as.dest()...)...)
	if err != nil {
		return domain.Part{}, notFound("part", id, err)
	}
	as.finish()

	p.Stock, err = domain.DecodeStock(domain.StockType(stockType), []byte(stock))
	if err != nil {
		return domain.Part{}, fmt.Errorf("part %d: %w", id, err)
	}
	return p, nil
}

func (q *Queries) UpdatePart(ctx context.Context, p domain.Part, expected int64, s audit.Stamp) (Outcome, error) {
	stockType, stock, err := domain.EncodeStock(p.Stock)
	if err != nil {
		return Outcome{}, err
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE parts
		SET part_number = ?, name = ?, stock_type = ?, stock_json = ?, material_id = ?,
			updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, p.PartNumber, p.Name, string(stockType), string(stock), p.MaterialID, ts(s.At), s.By, p.ID, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("update part %d: %w", p.ID, err)
	}
	return q.casOutcome(ctx, res, "parts", p.ID, expected, "")
}

const operationColumns = `id, part_id, seq, op_type, machine_id, cutting_speed, feed_per_rev, depth_of_cut,
	setup_time_min, run_time_min, is_cooperation, coop_unit_price, coop_min_price, ` + auditColumns

func scanOperation(row rowScanner) (domain.Operation, error) {
	var (
		op        domain.Operation
		opType    string
		machineID sql.NullInt64
	)
	as := newAuditScan(&op.Audit)
	dest := append([]any{
		&op.ID, &op.PartID, &op.Seq, &opType, &machineID, &op.CuttingSpeed, &op.FeedPerRev, &op.DepthOfCut,
		&op.SetupTimeMin, &op.RunTimeMin, &op.IsCooperation, &op.CoopUnitPrice, &op.CoopMinPrice,
	}, as.dest()...)
	if err := row.Scan(dest...); err != nil {
		return domain.Operation{}, err
	}
	as.finish()
	op.Type = domain.OperationType(opType)
	op.MachineID = idPtr(machineID)
	return op, nil
}

func (q *Queries) InsertOperation(ctx context.Context, op domain.Operation) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO operations (part_id, seq, op_type, machine_id, cutting_speed, feed_per_rev, depth_of_cut,
			setup_time_min, run_time_min, is_cooperation, coop_unit_price, coop_min_price,
			created_at, updated_at, created_by, updated_by, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, op.PartID, op.Seq, string(op.Type), nullableID(op.MachineID), op.CuttingSpeed, op.FeedPerRev, op.DepthOfCut,
		op.SetupTimeMin, op.RunTimeMin, op.IsCooperation, op.CoopUnitPrice, op.CoopMinPrice,
		ts(op.CreatedAt), ts(op.UpdatedAt), op.CreatedBy, op.UpdatedBy)
	if err != nil {
		return 0, fmt.Errorf("insert operation: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetOperation(ctx context.Context, id int64) (domain.Operation, error) {
	op, err := scanOperation(q.q.QueryRowContext(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = ?`, id))
	if err != nil {
		return domain.Operation{}, notFound("operation", id, err)
	}
	return op, nil
}

// ListOperations returns the live operations of a part in sequence order.
func (q *Queries) ListOperations(ctx context.Context, partID int64) ([]domain.Operation, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE part_id = ? AND deleted_at IS NULL
		ORDER BY seq, id
	`, partID)
	if err != nil {
		return nil, fmt.Errorf("list operations of part %d: %w", partID, err)
	}
	defer rows.Close()

	ops := make([]domain.Operation, 0)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// NextOperationSeq returns the sequence number after the last live operation.
func (q *Queries) NextOperationSeq(ctx context.Context, partID int64) (int, error) {
	var seq int
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 10 FROM operations WHERE part_id = ? AND deleted_at IS NULL
	`, partID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next operation seq of part %d: %w", partID, err)
	}
	return seq, nil
}

func (q *Queries) UpdateOperation(ctx context.Context, op domain.Operation, expected int64, s audit.Stamp) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE operations
		SET seq = ?, op_type = ?, machine_id = ?, cutting_speed = ?, feed_per_rev = ?, depth_of_cut = ?,
			setup_time_min = ?, run_time_min = ?, is_cooperation = ?, coop_unit_price = ?, coop_min_price = ?,
			updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, op.Seq, string(op.Type), nullableID(op.MachineID), op.CuttingSpeed, op.FeedPerRev, op.DepthOfCut,
		op.SetupTimeMin, op.RunTimeMin, op.IsCooperation, op.CoopUnitPrice, op.CoopMinPrice,
		ts(s.At), s.By, op.ID, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("update operation %d: %w", op.ID, err)
	}
	return q.casOutcome(ctx, res, "operations", op.ID, expected, "")
}

func (q *Queries) SoftDeleteOperation(ctx context.Context, id, expected int64, s audit.Stamp) (Outcome, error) {
	return q.softDelete(ctx, "operations", id, expected, s)
}

const featureColumns = `id, part_id, operation_id, feature_type, diameter, length, width, depth, count, ` + auditColumns

func scanFeature(row rowScanner) (domain.Feature, error) {
	var (
		f           domain.Feature
		featureType string
		operationID sql.NullInt64
	)
	as := newAuditScan(&f.Audit)
	dest := append([]any{
		&f.ID, &f.PartID, &operationID, &featureType, &f.Diameter, &f.Length, &f.Width, &f.Depth, &f.Count,
	}, as.dest()...)
	if err := row.Scan(dest...); err != nil {
		return domain.Feature{}, err
	}
	as.finish()
	f.Type = domain.FeatureType(featureType)
	f.OperationID = idPtr(operationID)
	return f, nil
}

func (q *Queries) InsertFeature(ctx context.Context, f domain.Feature) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO features (part_id, operation_id, feature_type, diameter, length, width, depth, count,
			created_at, updated_at, created_by, updated_by, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, f.PartID, nullableID(f.OperationID), string(f.Type), f.Diameter, f.Length, f.Width, f.Depth, f.Count,
		ts(f.CreatedAt), ts(f.UpdatedAt), f.CreatedBy, f.UpdatedBy)
	if err != nil {
		return 0, fmt.Errorf("insert feature: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetFeature(ctx context.Context, id int64) (domain.Feature, error) {
	f, err := scanFeature(q.q.QueryRowContext(ctx, `SELECT `+featureColumns+` FROM features WHERE id = ?`, id))
	if err != nil {
		return domain.Feature{}, notFound("feature", id, err)
	}
	return f, nil
}

// ListFeatures returns the live features of a part.
func (q *Queries) ListFeatures(ctx context.Context, partID int64) ([]domain.Feature, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+featureColumns+`
		FROM features
		WHERE part_id = ? AND deleted_at IS NULL
		ORDER BY id
	`, partID)
	if err != nil {
		return nil, fmt.Errorf("list features of part %d: %w", partID, err)
	}
	defer rows.Close()

	features := make([]domain.Feature, 0)
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate features: %w", err)
	}
	return features, nil
}

func (q *Queries) UpdateFeature(ctx context.Context, f domain.Feature, expected int64, s audit.Stamp) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE features
		SET operation_id = ?, feature_type = ?, diameter = ?, length = ?, width = ?, depth = ?, count = ?,
			updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, nullableID(f.OperationID), string(f.Type), f.Diameter, f.Length, f.Width, f.Depth, f.Count,
		ts(s.At), s.By, f.ID, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("update feature %d: %w", f.ID, err)
	}
	return q.casOutcome(ctx, res, "features", f.ID, expected, "")
}

func (q *Queries) SoftDeleteFeature(ctx context.Context, id, expected int64, s audit.Stamp) (Outcome, error) {
	return q.softDelete(ctx, "features", id, expected, s)
}

// softDelete marks a row deleted if it is still at the expected version.
func (q *Queries) softDelete(ctx context.Context, table string, id, expected int64, s audit.Stamp) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE `+table+`
		SET deleted_at = ?, deleted_by = ?, updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, ts(s.At), s.By, ts(s.At), s.By, id, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("delete %s %d: %w", table, id, err)
	}
	return q.casOutcome(ctx, res, table, id, expected, "")
}
