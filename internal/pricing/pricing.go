package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/batchcost/internal/domain"
)

// Places is the number of decimal places kept for every stored amount.
const Places = 4

var sixty = decimal.NewFromInt(60)

// OperationInput represents one operation with its resolved machine rate and
// per-unit run time.
type OperationInput struct {
	ID            int64
	MachineID     int64
	SetupTimeMin  float64
	RunTimeMin    float64
	HourlyRate    decimal.Decimal
	IsCooperation bool
	CoopUnitPrice decimal.Decimal
	CoopMinPrice  decimal.Decimal
}

// Input groups everything the price calculation needs for one batch.
type Input struct {
	Quantity   int
	Material   MaterialInput
	Operations []OperationInput
}

// OperationCost is the per-unit contribution of one operation.
type OperationCost struct {
	OperationID int64           `json:"operation_id"`
	Setup       decimal.Decimal `json:"setup"`
	Run         decimal.Decimal `json:"run"`
	Cooperation decimal.Decimal `json:"cooperation"`
}

// Breakdown contains all intermediate and line-item values of the pricing calculation.
type Breakdown struct {
	Volume          float64
	Mass            float64
	MaterialCost    decimal.Decimal
	SetupCost       decimal.Decimal
	MachiningCost   decimal.Decimal
	CooperationCost decimal.Decimal
	UnitCost        decimal.Decimal
	TotalCost       decimal.Decimal
	UnitTimeMin     float64
	Operations      []OperationCost
}

// Costs projects the breakdown onto the stored batch cost fields.
func (b Breakdown) Costs() domain.Costs {
	return domain.Costs{
		MaterialCost:    b.MaterialCost,
		SetupCost:       b.SetupCost,
		MachiningCost:   b.MachiningCost,
		CooperationCost: b.CooperationCost,
		UnitCost:        b.UnitCost,
		TotalCost:       b.TotalCost,
		UnitTimeMin:     b.UnitTimeMin,
	}
}

// SetupCost amortizes the setup of one operation over q units.
func SetupCost(setupTimeMin float64, hourlyRate decimal.Decimal, q int) (decimal.Decimal, error) {
	if err := checkQuantity(q); err != nil {
		return decimal.Zero, err
	}
	perBatch := decimal.NewFromFloat(setupTimeMin).Mul(hourlyRate).Div(sixty)
	return perBatch.Div(decimal.NewFromInt(int64(q))).Round(Places), nil
}

// RunCost is the per-unit run cost of one operation. Run time scales linearly
// with quantity so the per-unit amount does not depend on q.
func RunCost(runTimeMin float64, hourlyRate decimal.Decimal, q int) (decimal.Decimal, error) {
	if err := checkQuantity(q); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(runTimeMin).Mul(hourlyRate).Div(sixty).Round(Places), nil
}

// CooperationCost is the per-unit price of an outsourced operation, honouring
// the supplier's minimum order price. A non-positive unit price means the
// operation is not cooperated and contributes nothing.
func CooperationCost(unitPrice, minPrice decimal.Decimal, q int) (decimal.Decimal, error) {
	if err := checkQuantity(q); err != nil {
		return decimal.Zero, err
	}
	if !unitPrice.IsPositive() {
		return decimal.Zero, nil
	}
	qty := decimal.NewFromInt(int64(q))
	batch := decimal.Max(unitPrice.Mul(qty), minPrice)
	return batch.Div(qty).Round(Places), nil
}

// Calculate computes per-unit and total costs for in.Quantity units.
func Calculate(in Input) (Breakdown, error) {
	if err := checkQuantity(in.Quantity); err != nil {
		return Breakdown{}, err
	}

	material, err := CalculateMaterial(in.Material)
	if err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{
		Volume:          material.Volume,
		Mass:            material.Mass,
		MaterialCost:    material.Cost.Round(Places),
		SetupCost:       decimal.Zero,
		MachiningCost:   decimal.Zero,
		CooperationCost: decimal.Zero,
		Operations:      make([]OperationCost, 0, len(in.Operations)),
	}

	unitTime := 0.0
	for _, op := range in.Operations {
		oc := OperationCost{
			OperationID: op.ID,
			Setup:       decimal.Zero,
			Run:         decimal.Zero,
			Cooperation: decimal.Zero,
		}

		if op.IsCooperation {
			if oc.Cooperation, err = CooperationCost(op.CoopUnitPrice, op.CoopMinPrice, in.Quantity); err != nil {
				return Breakdown{}, err
			}
		} else {
			if op.SetupTimeMin < 0 || !isFinite(op.SetupTimeMin) {
				return Breakdown{}, domain.NewValidationError(operationRef(op.ID), "setup_time_min", "must be a finite non-negative number")
			}
			if op.RunTimeMin < 0 || !isFinite(op.RunTimeMin) {
				return Breakdown{}, domain.NewValidationError(operationRef(op.ID), "run_time_min", "must be a finite non-negative number")
			}
			if op.HourlyRate.IsNegative() {
				return Breakdown{}, domain.NewValidationError(machineRef(op.MachineID), "hourly_rate", "must not be negative")
			}
			if oc.Setup, err = SetupCost(op.SetupTimeMin, op.HourlyRate, in.Quantity); err != nil {
				return Breakdown{}, err
			}
			if oc.Run, err = RunCost(op.RunTimeMin, op.HourlyRate, in.Quantity); err != nil {
				return Breakdown{}, err
			}
			unitTime += op.RunTimeMin
		}

		b.SetupCost = b.SetupCost.Add(oc.Setup)
		b.MachiningCost = b.MachiningCost.Add(oc.Run)
		b.CooperationCost = b.CooperationCost.Add(oc.Cooperation)
		b.Operations = append(b.Operations, oc)
	}

	if !isFinite(unitTime) {
		return Breakdown{}, domain.NewValidationError("batch", "unit_time_min", "total run time overflows")
	}

	b.UnitCost = b.MaterialCost.Add(b.SetupCost).Add(b.MachiningCost).Add(b.CooperationCost)
	b.TotalCost = b.UnitCost.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(Places)
	b.UnitTimeMin = math.Round(unitTime*1e4) / 1e4

	return b, nil
}

// ValidateForFreeze rejects inputs that must never be enshrined in a snapshot:
// a non-positive material price, machine rate or cooperation price.
func ValidateForFreeze(in Input) error {
	if err := checkQuantity(in.Quantity); err != nil {
		return err
	}
	if !in.Material.PricePerKg.IsPositive() {
		return domain.NewValidationError(materialRef(in.Material.MaterialID), "price_per_kg", "must be positive before freezing")
	}
	for _, op := range in.Operations {
		if op.IsCooperation {
			if !op.CoopUnitPrice.IsPositive() {
				return domain.NewValidationError(operationRef(op.ID), "coop_unit_price", "must be positive before freezing")
			}
			continue
		}
		if op.MachineID == 0 {
			return domain.NewValidationError(operationRef(op.ID), "machine_id", "is required before freezing")
		}
		if !op.HourlyRate.IsPositive() {
			return domain.NewValidationError(machineRef(op.MachineID), "hourly_rate", "must be positive before freezing")
		}
	}
	return nil
}

func checkQuantity(q int) error {
	if q <= 0 {
		return domain.NewValidationError("batch", "quantity", "must be greater than 0")
	}
	return nil
}

func machineRef(id int64) string {
	if id == 0 {
		return "machine"
	}
	return domain.EntityRef("machine", id)
}
