package technology

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/batchcost/internal/domain"
)

type MaterialGroupInput struct {
	Name    string
	Density float64
}

type MaterialInput struct {
	GroupID    int64
	Name       string
	PricePerKg decimal.Decimal
}

type MachineInput struct {
	Name       string
	HourlyRate decimal.Decimal
}

func (in MaterialGroupInput) check() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.NewValidationError("material group", "name", "is required")
	}
	if !(in.Density > 0) {
		return domain.NewValidationError("material group", "density", "must be positive")
	}
	return nil
}

func (in MaterialInput) check() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.NewValidationError("material", "name", "is required")
	}
	if in.PricePerKg.IsNegative() {
		return domain.NewValidationError("material", "price_per_kg", "must not be negative")
	}
	return nil
}

func (in MachineInput) check() error {
	if strings.TrimSpace(in.Name) == "" {
		return domain.NewValidationError("machine", "name", "is required")
	}
	if in.HourlyRate.IsNegative() {
		return domain.NewValidationError("machine", "hourly_rate", "must not be negative")
	}
	return nil
}

func (s *Service) CreateMaterialGroup(ctx context.Context, in MaterialGroupInput) (domain.MaterialGroup, error) {
	if err := in.check(); err != nil {
		return domain.MaterialGroup{}, err
	}
	id, err := s.store.InsertMaterialGroup(ctx, domain.MaterialGroup{
		Name:    strings.TrimSpace(in.Name),
		Density: in.Density,
		Audit:   s.stamp(ctx).Created(),
	})
	if err != nil {
		return domain.MaterialGroup{}, err
	}
	return s.store.GetMaterialGroup(ctx, id)
}

// UpdateMaterialGroup changes a group. Its density is folded into every
// material of the group, so the whole catalog cache is dropped.
func (s *Service) UpdateMaterialGroup(ctx context.Context, id int64, in MaterialGroupInput, expected int64) (domain.MaterialGroup, error) {
	if err := in.check(); err != nil {
		return domain.MaterialGroup{}, err
	}
	out, err := s.store.UpdateMaterialGroup(ctx, domain.MaterialGroup{ID: id, Name: strings.TrimSpace(in.Name), Density: in.Density}, expected, s.stamp(ctx))
	if err != nil {
		return domain.MaterialGroup{}, err
	}
	if err := applied(out, "material group", id, expected); err != nil {
		return domain.MaterialGroup{}, err
	}
	s.cache.InvalidateAll()

	parts, err := s.store.PartIDsByMaterialGroup(ctx, id)
	if err != nil {
		return domain.MaterialGroup{}, err
	}
	s.reprice(ctx, parts...)
	return s.store.GetMaterialGroup(ctx, id)
}

func (s *Service) CreateMaterial(ctx context.Context, in MaterialInput) (domain.Material, error) {
	if err := in.check(); err != nil {
		return domain.Material{}, err
	}
	if err := s.checkGroup(ctx, in.GroupID); err != nil {
		return domain.Material{}, err
	}
	id, err := s.store.InsertMaterial(ctx, domain.Material{
		GroupID:    in.GroupID,
		Name:       strings.TrimSpace(in.Name),
		PricePerKg: in.PricePerKg,
		Audit:      s.stamp(ctx).Created(),
	})
	if err != nil {
		return domain.Material{}, err
	}
	return s.store.GetMaterial(ctx, id)
}

// UpdateMaterial changes a material and reprices the draft batches of every
// part cut from it.
func (s *Service) UpdateMaterial(ctx context.Context, id int64, in MaterialInput, expected int64) (domain.Material, error) {
	if err := in.check(); err != nil {
		return domain.Material{}, err
	}
	if err := s.checkGroup(ctx, in.GroupID); err != nil {
		return domain.Material{}, err
	}
	out, err := s.store.UpdateMaterial(ctx, domain.Material{
		ID:         id,
		GroupID:    in.GroupID,
		Name:       strings.TrimSpace(in.Name),
		PricePerKg: in.PricePerKg,
	}, expected, s.stamp(ctx))
	if err != nil {
		return domain.Material{}, err
	}
	if err := applied(out, "material", id, expected); err != nil {
		return domain.Material{}, err
	}
	s.cache.InvalidateMaterial(id)
	s.log.Info("material updated", zap.Int64("material_id", id), zap.String("price_per_kg", in.PricePerKg.String()))

	parts, err := s.store.PartIDsByMaterial(ctx, id)
	if err != nil {
		return domain.Material{}, err
	}
	s.reprice(ctx, parts...)
	return s.store.GetMaterial(ctx, id)
}

func (s *Service) CreateMachine(ctx context.Context, in MachineInput) (domain.Machine, error) {
	if err := in.check(); err != nil {
		return domain.Machine{}, err
	}
	id, err := s.store.InsertMachine(ctx, domain.Machine{
		Name:       strings.TrimSpace(in.Name),
		HourlyRate: in.HourlyRate,
		Audit:      s.stamp(ctx).Created(),
	})
	if err != nil {
		return domain.Machine{}, err
	}
	return s.store.GetMachine(ctx, id)
}

// UpdateMachine changes a machine and reprices the draft batches of every part
// with an operation on it.
func (s *Service) UpdateMachine(ctx context.Context, id int64, in MachineInput, expected int64) (domain.Machine, error) {
	if err := in.check(); err != nil {
		return domain.Machine{}, err
	}
	out, err := s.store.UpdateMachine(ctx, domain.Machine{ID: id, Name: strings.TrimSpace(in.Name), HourlyRate: in.HourlyRate}, expected, s.stamp(ctx))
	if err != nil {
		return domain.Machine{}, err
	}
	if err := applied(out, "machine", id, expected); err != nil {
		return domain.Machine{}, err
	}
	s.cache.InvalidateMachine(id)
	s.log.Info("machine updated", zap.Int64("machine_id", id), zap.String("hourly_rate", in.HourlyRate.String()))

	parts, err := s.store.PartIDsByMachine(ctx, id)
	if err != nil {
		return domain.Machine{}, err
	}
	s.reprice(ctx, parts...)
	return s.store.GetMachine(ctx, id)
}

func (s *Service) checkGroup(ctx context.Context, id int64) error {
	g, err := s.store.GetMaterialGroup(ctx, id)
	return reference(g, err, "material", "group_id")
}
