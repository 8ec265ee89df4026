package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/batchcost/internal/domain"
)

// MaterialInput describes the raw stock of one unit and the material it is cut from.
type MaterialInput struct {
	MaterialID int64
	Stock      domain.Stock
	Density    float64 // g/cm³
	PricePerKg decimal.Decimal
}

// MaterialResult holds the derived stock values of one unit.
type MaterialResult struct {
	Volume float64 // mm³
	Mass   float64 // kg
	Cost   decimal.Decimal
}

// CalculateMaterial derives volume, mass and material cost for one unit.
func CalculateMaterial(in MaterialInput) (MaterialResult, error) {
	volume, err := domain.Volume(in.Stock)
	if err != nil {
		return MaterialResult{}, err
	}
	if !(in.Density > 0) {
		return MaterialResult{}, domain.NewValidationError(materialRef(in.MaterialID), "density", "must be positive")
	}
	if in.PricePerKg.IsNegative() {
		return MaterialResult{}, domain.NewValidationError(materialRef(in.MaterialID), "price_per_kg", "must not be negative")
	}

	// mm³ · g/cm³ → kg
	mass := volume * in.Density / 1e6
	if !isFinite(mass) {
		return MaterialResult{}, domain.NewValidationError(materialRef(in.MaterialID), "density", "stock mass overflows")
	}
	cost := decimal.NewFromFloat(mass).Mul(in.PricePerKg)

	return MaterialResult{
		Volume: volume,
		Mass:   mass,
		Cost:   cost,
	}, nil
}

func materialRef(id int64) string {
	if id == 0 {
		return "material"
	}
	return domain.EntityRef("material", id)
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
