package technology

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Simplici0/batchcost/internal/domain"
)

type PartInput struct {
	PartNumber string
	Name       string
	Stock      domain.Stock
	MaterialID int64
}

type OperationInput struct {
	Seq           int
	Type          domain.OperationType
	MachineID     *int64
	CuttingSpeed  float64
	FeedPerRev    float64
	DepthOfCut    float64
	SetupTimeMin  float64
	RunTimeMin    float64
	IsCooperation bool
	CoopUnitPrice decimal.Decimal
	CoopMinPrice  decimal.Decimal
}

type FeatureInput struct {
	OperationID *int64
	Type        domain.FeatureType
	Diameter    float64
	Length      float64
	Width       float64
	Depth       float64
	Count       int
}

var operationTypes = map[domain.OperationType]bool{
	domain.OpTurning:     true,
	domain.OpMilling:     true,
	domain.OpDrilling:    true,
	domain.OpGrinding:    true,
	domain.OpSawing:      true,
	domain.OpCooperation: true,
}

var featureTypes = map[domain.FeatureType]bool{
	domain.FeatureHole:   true,
	domain.FeatureTurn:   true,
	domain.FeatureFace:   true,
	domain.FeaturePocket: true,
	domain.FeatureSlot:   true,
	domain.FeatureThread: true,
}

func (in PartInput) check() error {
	if strings.TrimSpace(in.PartNumber) == "" {
		return domain.NewValidationError("part", "part_number", "is required")
	}
	// Impossible stock is rejected up front, never stored.
	if _, err := domain.Volume(in.Stock); err != nil {
		return err
	}
	return nil
}

func (in OperationInput) check() error {
	if !operationTypes[in.Type] {
		return domain.NewValidationError("operation", "type", "is not a known operation type")
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"cutting_speed", in.CuttingSpeed},
		{"feed_per_rev", in.FeedPerRev},
		{"depth_of_cut", in.DepthOfCut},
		{"setup_time_min", in.SetupTimeMin},
		{"run_time_min", in.RunTimeMin},
	} {
		if f.value < 0 {
			return domain.NewValidationError("operation", f.name, "must not be negative")
		}
	}
	if in.CoopUnitPrice.IsNegative() || in.CoopMinPrice.IsNegative() {
		return domain.NewValidationError("operation", "coop_unit_price", "must not be negative")
	}
	if in.Type == domain.OpCooperation && !in.IsCooperation {
		return domain.NewValidationError("operation", "is_cooperation", "must be set for cooperation operations")
	}
	return nil
}

func (in FeatureInput) check() error {
	if !featureTypes[in.Type] {
		return domain.NewValidationError("feature", "type", "is not a known feature type")
	}
	if in.Count < 1 {
		return domain.NewValidationError("feature", "count", "must be at least 1")
	}
	if in.Diameter < 0 || in.Length < 0 || in.Width < 0 || in.Depth < 0 {
		return domain.NewValidationError("feature", "dimensions", "must not be negative")
	}
	return nil
}

func (s *Service) CreatePart(ctx context.Context, in PartInput) (domain.Part, error) {
	if err := in.check(); err != nil {
		return domain.Part{}, err
	}
	if err := s.checkMaterial(ctx, in.MaterialID); err != nil {
		return domain.Part{}, err
	}
	id, err := s.store.InsertPart(ctx, domain.Part{
		PartNumber: strings.TrimSpace(in.PartNumber),
		Name:       in.Name,
		Stock:      in.Stock,
		MaterialID: in.MaterialID,
		Audit:      s.stamp(ctx).Created(),
	})
	if err != nil {
		return domain.Part{}, err
	}
	s.log.Info("part created", zap.Int64("part_id", id), zap.String("part_number", in.PartNumber))
	return s.store.GetPart(ctx, id)
}

func (s *Service) GetPart(ctx context.Context, id int64) (domain.Part, error) {
	p, err := s.store.GetPart(ctx, id)
	if err != nil {
		return domain.Part{}, err
	}
	return p, live(p, "part", id)
}

// PartDetail is a part with its live operations and features.
type PartDetail struct {
	domain.Part
	Stock      domain.Stock       `json:"stock"`
	StockType  domain.StockType   `json:"stock_type"`
	Operations []domain.Operation `json:"operations"`
	Features   []domain.Feature   `json:"features"`
}

func (s *Service) PartDetail(ctx context.Context, id int64) (PartDetail, error) {
	p, err := s.GetPart(ctx, id)
	if err != nil {
		return PartDetail{}, err
	}
	ops, err := s.store.ListOperations(ctx, id)
	if err != nil {
		return PartDetail{}, err
	}
	features, err := s.store.ListFeatures(ctx, id)
	if err != nil {
		return PartDetail{}, err
	}
	return PartDetail{Part: p, Stock: p.Stock, StockType: p.Stock.Type(), Operations: ops, Features: features}, nil
}

// UpdatePart changes the stock or material of a part. Frozen batches keep
// their price; their effective costs then report the geometry change.
func (s *Service) UpdatePart(ctx context.Context, id int64, in PartInput, expected int64) (domain.Part, error) {
	if err := in.check(); err != nil {
		return domain.Part{}, err
	}
	if err := s.checkMaterial(ctx, in.MaterialID); err != nil {
		return domain.Part{}, err
	}
	out, err := s.store.UpdatePart(ctx, domain.Part{
		ID:         id,
		PartNumber: strings.TrimSpace(in.PartNumber),
		Name:       in.Name,
		Stock:      in.Stock,
		MaterialID: in.MaterialID,
	}, expected, s.stamp(ctx))
	if err != nil {
		return domain.Part{}, err
	}
	if err := applied(out, "part", id, expected); err != nil {
		return domain.Part{}, err
	}
	s.reprice(ctx, id)
	return s.store.GetPart(ctx, id)
}

// CreateOperation appends an operation to a part. A zero Seq places it after
// the last live operation.
func (s *Service) CreateOperation(ctx context.Context, partID int64, in OperationInput) (domain.Operation, error) {
	if err := in.check(); err != nil {
		return domain.Operation{}, err
	}
	if _, err := s.GetPart(ctx, partID); err != nil {
		return domain.Operation{}, err
	}
	if err := s.checkMachine(ctx, in.MachineID); err != nil {
		return domain.Operation{}, err
	}
	seq := in.Seq
	if seq <= 0 {
		next, err := s.store.NextOperationSeq(ctx, partID)
		if err != nil {
			return domain.Operation{}, err
		}
		seq = next
	}

	op := in.operation()
	op.PartID = partID
	op.Seq = seq
	op.Audit = s.stamp(ctx).Created()
	id, err := s.store.InsertOperation(ctx, op)
	if err != nil {
		return domain.Operation{}, err
	}
	s.reprice(ctx, partID)
	return s.store.GetOperation(ctx, id)
}

func (s *Service) UpdateOperation(ctx context.Context, id int64, in OperationInput, expected int64) (domain.Operation, error) {
	if err := in.check(); err != nil {
		return domain.Operation{}, err
	}
	current, err := s.store.GetOperation(ctx, id)
	if err != nil {
		return domain.Operation{}, err
	}
	if err := live(current, "operation", id); err != nil {
		return domain.Operation{}, err
	}
	if err := s.checkMachine(ctx, in.MachineID); err != nil {
		return domain.Operation{}, err
	}

	op := in.operation()
	op.ID = id
	op.Seq = in.Seq
	if op.Seq <= 0 {
		op.Seq = current.Seq
	}
	out, err := s.store.UpdateOperation(ctx, op, expected, s.stamp(ctx))
	if err != nil {
		return domain.Operation{}, err
	}
	if err := applied(out, "operation", id, expected); err != nil {
		return domain.Operation{}, err
	}
	s.reprice(ctx, current.PartID)
	return s.store.GetOperation(ctx, id)
}

func (s *Service) DeleteOperation(ctx context.Context, id, expected int64) error {
	current, err := s.store.GetOperation(ctx, id)
	if err != nil {
		return err
	}
	out, err := s.store.SoftDeleteOperation(ctx, id, expected, s.stamp(ctx))
	if err != nil {
		return err
	}
	if err := applied(out, "operation", id, expected); err != nil {
		return err
	}
	s.reprice(ctx, current.PartID)
	return nil
}

func (s *Service) CreateFeature(ctx context.Context, partID int64, in FeatureInput) (domain.Feature, error) {
	if err := in.check(); err != nil {
		return domain.Feature{}, err
	}
	if _, err := s.GetPart(ctx, partID); err != nil {
		return domain.Feature{}, err
	}
	if err := s.checkFeatureOperation(ctx, partID, in.OperationID); err != nil {
		return domain.Feature{}, err
	}

	f := in.feature()
	f.PartID = partID
	f.Audit = s.stamp(ctx).Created()
	id, err := s.store.InsertFeature(ctx, f)
	if err != nil {
		return domain.Feature{}, err
	}
	s.reprice(ctx, partID)
	return s.store.GetFeature(ctx, id)
}

func (s *Service) UpdateFeature(ctx context.Context, id int64, in FeatureInput, expected int64) (domain.Feature, error) {
	if err := in.check(); err != nil {
		return domain.Feature{}, err
	}
	current, err := s.store.GetFeature(ctx, id)
	if err != nil {
		return domain.Feature{}, err
	}
	if err := live(current, "feature", id); err != nil {
		return domain.Feature{}, err
	}
	if err := s.checkFeatureOperation(ctx, current.PartID, in.OperationID); err != nil {
		return domain.Feature{}, err
	}

	f := in.feature()
	f.ID = id
	out, err := s.store.UpdateFeature(ctx, f, expected, s.stamp(ctx))
	if err != nil {
		return domain.Feature{}, err
	}
	if err := applied(out, "feature", id, expected); err != nil {
		return domain.Feature{}, err
	}
	s.reprice(ctx, current.PartID)
	return s.store.GetFeature(ctx, id)
}

func (s *Service) DeleteFeature(ctx context.Context, id, expected int64) error {
	current, err := s.store.GetFeature(ctx, id)
	if err != nil {
		return err
	}
	out, err := s.store.SoftDeleteFeature(ctx, id, expected, s.stamp(ctx))
	if err != nil {
		return err
	}
	if err := applied(out, "feature", id, expected); err != nil {
		return err
	}
	s.reprice(ctx, current.PartID)
	return nil
}

func (in OperationInput) operation() domain.Operation {
	return domain.Operation{
		Type:          in.Type,
		MachineID:     in.MachineID,
		CuttingSpeed:  in.CuttingSpeed,
		FeedPerRev:    in.FeedPerRev,
		DepthOfCut:    in.DepthOfCut,
		SetupTimeMin:  in.SetupTimeMin,
		RunTimeMin:    in.RunTimeMin,
		IsCooperation: in.IsCooperation,
		CoopUnitPrice: in.CoopUnitPrice,
		CoopMinPrice:  in.CoopMinPrice,
	}
}

func (in FeatureInput) feature() domain.Feature {
	return domain.Feature{
		OperationID: in.OperationID,
		Type:        in.Type,
		Diameter:    in.Diameter,
		Length:      in.Length,
		Width:       in.Width,
		Depth:       in.Depth,
		Count:       in.Count,
	}
}

func (s *Service) checkMaterial(ctx context.Context, id int64) error {
	m, err := s.store.GetMaterial(ctx, id)
	return reference(m, err, "part", "material_id")
}

func (s *Service) checkMachine(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	m, err := s.store.GetMachine(ctx, *id)
	return reference(m, err, "operation", "machine_id")
}

// checkFeatureOperation requires the machining operation of a feature to
// belong to the same part.
func (s *Service) checkFeatureOperation(ctx context.Context, partID int64, opID *int64) error {
	if opID == nil {
		return nil
	}
	op, err := s.store.GetOperation(ctx, *opID)
	if err := reference(op, err, "feature", "operation_id"); err != nil {
		return err
	}
	if op.PartID != partID {
		return domain.NewValidationError("feature", "operation_id", "belongs to another part")
	}
	return nil
}
