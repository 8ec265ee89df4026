package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/metrics"
	"github.com/Simplici0/batchcost/internal/pricing"
	"github.com/Simplici0/batchcost/internal/snapshot"
)

// geometry is the technology of a part as stored: stock, operations, features.
type geometry struct {
	part     domain.Part
	ops      []domain.Operation
	features []domain.Feature
}

func (g geometry) hash() (string, error) {
	return snapshot.GeometryHash(g.part, g.ops, g.features)
}

// technology is a part's geometry with catalog prices and run times resolved,
// ready to be priced at any quantity.
type technology struct {
	geometry
	material   pricing.MaterialInput
	operations []pricing.OperationInput
}

func (t technology) input(quantity int) pricing.Input {
	return pricing.Input{
		Quantity:   quantity,
		Material:   t.material,
		Operations: t.operations,
	}
}

// price runs the calculators for one batch quantity.
func (t technology) price(quantity int) (pricing.Input, pricing.Breakdown, error) {
	start := time.Now()
	in := t.input(quantity)
	b, err := pricing.Calculate(in)
	metrics.CalculationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return pricing.Input{}, pricing.Breakdown{}, fmt.Errorf("part %d: %w", t.part.ID, err)
	}
	return in, b, nil
}

// loadGeometry reads a live part with its live operations and features.
func (s *Service) loadGeometry(ctx context.Context, partID int64) (geometry, error) {
	part, err := s.store.GetPart(ctx, partID)
	if err != nil {
		return geometry{}, err
	}
	if part.Deleted() {
		return geometry{}, fmt.Errorf("part %d: %w", partID, domain.ErrNotFound)
	}
	ops, err := s.store.ListOperations(ctx, partID)
	if err != nil {
		return geometry{}, err
	}
	features, err := s.store.ListFeatures(ctx, partID)
	if err != nil {
		return geometry{}, err
	}
	return geometry{part: part, ops: ops, features: features}, nil
}

// resolve looks up material and machine prices through the catalog cache and
// derives per-unit run times.
func (s *Service) resolve(ctx context.Context, g geometry) (technology, error) {
	material, err := s.cache.Material(ctx, g.part.MaterialID)
	if err != nil {
		return technology{}, fmt.Errorf("part %d material: %w", g.part.ID, err)
	}
	if material.Deleted() {
		return technology{}, domain.NewValidationError(domain.EntityRef("part", g.part.ID), "material_id", "refers to a deleted material")
	}

	t := technology{
		geometry: g,
		material: pricing.MaterialInput{
			MaterialID: material.ID,
			Stock:      g.part.Stock,
			Density:    material.Density,
			PricePerKg: material.PricePerKg,
		},
		operations: make([]pricing.OperationInput, 0, len(g.ops)),
	}

	for _, op := range g.ops {
		runTime, err := pricing.OperationRunTime(op, g.features)
		if err != nil {
			return technology{}, err
		}
		oi := pricing.OperationInput{
			ID:            op.ID,
			SetupTimeMin:  op.SetupTimeMin,
			RunTimeMin:    runTime,
			IsCooperation: op.IsCooperation,
			CoopUnitPrice: op.CoopUnitPrice,
			CoopMinPrice:  op.CoopMinPrice,
		}
		if op.MachineID != nil && !op.IsCooperation {
			machine, err := s.cache.Machine(ctx, *op.MachineID)
			if err != nil {
				return technology{}, fmt.Errorf("operation %d machine: %w", op.ID, err)
			}
			if machine.Deleted() {
				return technology{}, domain.NewValidationError(domain.EntityRef("operation", op.ID), "machine_id", "refers to a deleted machine")
			}
			oi.MachineID = machine.ID
			oi.HourlyRate = machine.HourlyRate
		}
		t.operations = append(t.operations, oi)
	}
	return t, nil
}

func (s *Service) loadTechnology(ctx context.Context, partID int64) (technology, error) {
	g, err := s.loadGeometry(ctx, partID)
	if err != nil {
		return technology{}, err
	}
	return s.resolve(ctx, g)
}

func checkQuantity(q int) error {
	if q <= 0 {
		return domain.NewValidationError("batch", "quantity", "must be greater than 0")
	}
	return nil
}
