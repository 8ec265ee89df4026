package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Simplici0/batchcost/internal/audit"
	"github.com/Simplici0/batchcost/internal/domain"
)

func (q *Queries) InsertMaterialGroup(ctx context.Context, g domain.MaterialGroup) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO material_groups (name, density, created_at, updated_at, created_by, updated_by, version)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, g.Name, g.Density, ts(g.CreatedAt), ts(g.UpdatedAt), g.CreatedBy, g.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.NewValidationError("material group", "name", "already exists")
		}
		return 0, fmt.Errorf("insert material group: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetMaterialGroup(ctx context.Context, id int64) (domain.MaterialGroup, error) {
	var g domain.MaterialGroup
	as := newAuditScan(&g.Audit)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, name, density, `+auditColumns+`
		FROM material_groups
		WHERE id = ?
	`, id).Scan(append([]any{&g.ID, &g.Name, &g.Density}, as.dest()...)...)
	if err != nil {
		return domain.MaterialGroup{}, notFound("material group", id, err)
	}
	as.finish()
	return g, nil
}

func (q *Queries) UpdateMaterialGroup(ctx context.Context, g domain.MaterialGroup, expected int64, s audit.Stamp) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE material_groups
		SET name = ?, density = ?, updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, g.Name, g.Density, ts(s.At), s.By, g.ID, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("update material group %d: %w", g.ID, err)
	}
	return q.casOutcome(ctx, res, "material_groups", g.ID, expected, "")
}

func (q *Queries) InsertMaterial(ctx context.Context, m domain.Material) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO materials (group_id, name, price_per_kg, created_at, updated_at, created_by, updated_by, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, m.GroupID, m.Name, m.PricePerKg, ts(m.CreatedAt), ts(m.UpdatedAt), m.CreatedBy, m.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.NewValidationError("material", "name", "already exists")
		}
		return 0, fmt.Errorf("insert material: %w", err)
	}
	return res.LastInsertId()
}

// GetMaterial returns a material with the density of its group.
func (q *Queries) GetMaterial(ctx context.Context, id int64) (domain.Material, error) {
	var m domain.Material
	as := newAuditScan(&m.Audit)
	err := q.q.QueryRowContext(ctx, `
		SELECT m.id, m.group_id, m.name, g.density, m.price_per_kg,
			m.created_at, m.updated_at, m.created_by, m.updated_by, m.deleted_at, COALESCE(m.deleted_by, ''), m.version
		FROM materials m
		JOIN material_groups g ON g.id = m.group_id
		WHERE m.id = ?
	`, id).Scan(append([]any{&m.ID, &m.GroupID, &m.Name, &m.Density, &m.PricePerKg}, as.dest()...)...)
	if err != nil {
		return domain.Material{}, notFound("material", id, err)
	}
	as.finish()
	return m, nil
}

func (q *Queries) UpdateMaterial(ctx context.Context, m domain.Material, expected int64, s audit.Stamp) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE materials
		SET name = ?, group_id = ?, price_per_kg = ?, updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, m.Name, m.GroupID, m.PricePerKg, ts(s.At), s.By, m.ID, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("update material %d: %w", m.ID, err)
	}
	return q.casOutcome(ctx, res, "materials", m.ID, expected, "")
}

func (q *Queries) InsertMachine(ctx context.Context, m domain.Machine) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO machines (name, hourly_rate, created_at, updated_at, created_by, updated_by, version)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`, m.Name, m.HourlyRate, ts(m.CreatedAt), ts(m.UpdatedAt), m.CreatedBy, m.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.NewValidationError("machine", "name", "already exists")
		}
		return 0, fmt.Errorf("insert machine: %w", err)
	}
	return res.LastInsertId()
}

func (q *Queries) GetMachine(ctx context.Context, id int64) (domain.Machine, error) {
	var m domain.Machine
	as := newAuditScan(&m.Audit)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, name, hourly_rate, `+auditColumns+`
		FROM machines
		WHERE id = ?
	`, id).Scan(append([]any{&m.ID, &m.Name, &m.HourlyRate}, as.dest()...)...)
	if err != nil {
		return domain.Machine{}, notFound("machine", id, err)
	}
	as.finish()
	return m, nil
}

func (q *Queries) UpdateMachine(ctx context.Context, m domain.Machine, expected int64, s audit.Stamp) (Outcome, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE machines
		SET name = ?, hourly_rate = ?, updated_at = ?, updated_by = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`, m.Name, m.HourlyRate, ts(s.At), s.By, m.ID, expected)
	if err != nil {
		return Outcome{}, fmt.Errorf("update machine %d: %w", m.ID, err)
	}
	return q.casOutcome(ctx, res, "machines", m.ID, expected, "")
}

// FindMaterialByName returns the live material called name.
func (q *Queries) FindMaterialByName(ctx context.Context, name string) (int64, error) {
	return q.idByName(ctx, "material", "materials", name)
}

// FindMaterialGroupByName returns the live material group called name.
func (q *Queries) FindMaterialGroupByName(ctx context.Context, name string) (int64, error) {
	return q.idByName(ctx, "material group", "material_groups", name)
}

// FindMachineByName returns the live machine called name.
func (q *Queries) FindMachineByName(ctx context.Context, name string) (int64, error) {
	return q.idByName(ctx, "machine", "machines", name)
}

// PartIDsByMaterial lists live parts cut from material id.
func (q *Queries) PartIDsByMaterial(ctx context.Context, materialID int64) ([]int64, error) {
	return q.ids(ctx, `SELECT id FROM parts WHERE material_id = ? AND deleted_at IS NULL ORDER BY id`, materialID)
}

// PartIDsByMaterialGroup lists live parts whose material belongs to group id.
func (q *Queries) PartIDsByMaterialGroup(ctx context.Context, groupID int64) ([]int64, error) {
	return q.ids(ctx, `
		SELECT p.id
		FROM parts p
		JOIN materials m ON m.id = p.material_id
		WHERE m.group_id = ? AND p.deleted_at IS NULL
		ORDER BY p.id
	`, groupID)
}

// PartIDsByMachine lists live parts with a live operation on machine id.
func (q *Queries) PartIDsByMachine(ctx context.Context, machineID int64) ([]int64, error) {
	return q.ids(ctx, `
		SELECT DISTINCT p.id
		FROM parts p
		JOIN operations o ON o.part_id = p.id
		WHERE o.machine_id = ? AND o.deleted_at IS NULL AND p.deleted_at IS NULL
		ORDER BY p.id
	`, machineID)
}

func (q *Queries) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

func (q *Queries) idByName(ctx context.Context, entity, table, name string) (int64, error) {
	var id int64
	err := q.q.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name = ? AND deleted_at IS NULL`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%s %q: %w", entity, name, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query %s %q: %w", entity, name, err)
	}
	return id, nil
}
