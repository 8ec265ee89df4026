package pricing

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/batchcost/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decimalEqual(t *testing.T, name string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("%s = %s, want %s", name, got, want)
	}
}

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

// 100×100×10 mm plate at 2.5 g/cm³ weighs 0.25 kg; at 10/kg that is 2.50.
func plateMaterial() MaterialInput {
	return MaterialInput{
		MaterialID: 1,
		Stock:      domain.Plate{Width: 100, Thickness: 10, Length: 100},
		Density:    2.5,
		PricePerKg: dec("10"),
	}
}

func TestCalculate_WorkedExample(t *testing.T) {
	in := Input{
		Quantity: 100,
		Material: plateMaterial(),
		Operations: []OperationInput{{
			ID:           1,
			MachineID:    1,
			SetupTimeMin: 30,
			RunTimeMin:   2,
			HourlyRate:   dec("600"),
		}},
	}

	result, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	decimalEqual(t, "materialCost", result.MaterialCost, "2.50")
	decimalEqual(t, "setupCost", result.SetupCost, "3.00")
	decimalEqual(t, "machiningCost", result.MachiningCost, "20.00")
	decimalEqual(t, "unitCost", result.UnitCost, "25.50")
	decimalEqual(t, "totalCost", result.TotalCost, "2550")
	nearlyEqual(t, "mass", result.Mass, 0.25)
	nearlyEqual(t, "unitTime", result.UnitTimeMin, 2)
}

func TestCalculate_IsDeterministic(t *testing.T) {
	in := Input{
		Quantity: 7,
		Material: MaterialInput{
			MaterialID: 2,
			Stock:      domain.Tube{OuterRadius: 20, InnerRadius: 12, Length: 140},
			Density:    7.85,
			PricePerKg: dec("3.1"),
		},
		Operations: []OperationInput{
			{ID: 1, MachineID: 1, SetupTimeMin: 45, RunTimeMin: 3.3, HourlyRate: dec("850")},
			{ID: 2, IsCooperation: true, CoopUnitPrice: dec("4.2"), CoopMinPrice: dec("150")},
		},
	}

	first, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}
	second, err := Calculate(in)
	if err != nil {
		t.Fatalf("Calculate returned error: %v", err)
	}

	if first.UnitCost.String() != second.UnitCost.String() || first.TotalCost.String() != second.TotalCost.String() {
		t.Fatalf("expected identical outputs, got %s/%s and %s/%s", first.UnitCost, first.TotalCost, second.UnitCost, second.TotalCost)
	}
	if !first.Costs().Equal(second.Costs()) {
		t.Fatalf("expected identical costs, got %+v and %+v", first.Costs(), second.Costs())
	}
}

func TestCostFunctions_RejectNonPositiveQuantity(t *testing.T) {
	for _, q := range []int{0, -5} {
		var ve *domain.ValidationError
		if _, err := SetupCost(30, dec("600"), q); !errors.As(err, &ve) {
			t.Fatalf("SetupCost(q=%d): expected ValidationError, got %v", q, err)
		}
		if _, err := RunCost(2, dec("600"), q); !errors.As(err, &ve) {
			t.Fatalf("RunCost(q=%d): expected ValidationError, got %v", q, err)
		}
		if _, err := CooperationCost(dec("5"), dec("100"), q); !errors.As(err, &ve) {
			t.Fatalf("CooperationCost(q=%d): expected ValidationError, got %v", q, err)
		}
		if _, err := Calculate(Input{Quantity: q, Material: plateMaterial()}); !errors.As(err, &ve) {
			t.Fatalf("Calculate(q=%d): expected ValidationError, got %v", q, err)
		}
	}
}

func TestCooperationCost_MinimumPriceAndNonCooperated(t *testing.T) {
	belowMinimum, err := CooperationCost(dec("2"), dec("100"), 10)
	if err != nil {
		t.Fatalf("CooperationCost returned error: %v", err)
	}
	decimalEqual(t, "belowMinimum", belowMinimum, "10")

	aboveMinimum, err := CooperationCost(dec("2"), dec("100"), 200)
	if err != nil {
		t.Fatalf("CooperationCost returned error: %v", err)
	}
	decimalEqual(t, "aboveMinimum", aboveMinimum, "2")

	notCooperated, err := CooperationCost(dec("0"), dec("100"), 10)
	if err != nil {
		t.Fatalf("CooperationCost returned error: %v", err)
	}
	decimalEqual(t, "notCooperated", notCooperated, "0")
}

func TestSetupCost_AmortizesOverQuantity(t *testing.T) {
	small, _ := SetupCost(60, dec("500"), 10)
	large, _ := SetupCost(60, dec("500"), 1000)

	decimalEqual(t, "small", small, "50")
	decimalEqual(t, "large", large, "0.5")
}

func TestCalculateMaterial_MonotonicInMass(t *testing.T) {
	prev := decimal.NewFromInt(-1)
	for length := 10.0; length <= 500; length += 10 {
		result, err := CalculateMaterial(MaterialInput{
			Stock:      domain.RoundBar{Radius: 15, Length: length},
			Density:    7.85,
			PricePerKg: dec("2.2"),
		})
		if err != nil {
			t.Fatalf("length=%v: %v", length, err)
		}
		if result.Cost.IsNegative() {
			t.Fatalf("length=%v: negative cost %s", length, result.Cost)
		}
		if !result.Cost.GreaterThan(prev) {
			t.Fatalf("length=%v: cost %s not greater than %s", length, result.Cost, prev)
		}
		prev = result.Cost
	}
}

func TestCalculateMaterial_TubeGeometryError(t *testing.T) {
	_, err := CalculateMaterial(MaterialInput{
		Stock:      domain.Tube{OuterRadius: 20, InnerRadius: 25, Length: 100},
		Density:    7.85,
		PricePerKg: dec("2"),
	})
	var ge *domain.GeometryError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GeometryError, got %v", err)
	}
}

func TestCalculateMaterial_OverflowingMassIsValidationError(t *testing.T) {
	_, err := CalculateMaterial(MaterialInput{
		MaterialID: 4,
		Stock:      domain.SquareBar{Side: 1e150, Length: 1e7},
		Density:    1e10,
		PricePerKg: dec("2"),
	})
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Entity != "material 4" {
		t.Fatalf("expected validation error on material 4, got %v", err)
	}

	_, err = CalculateMaterial(MaterialInput{
		Stock:      domain.SquareBar{Side: 1e200, Length: 1e200},
		Density:    7.85,
		PricePerKg: dec("2"),
	})
	var ge *domain.GeometryError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GeometryError, got %v", err)
	}
}

func TestCalculate_RejectsNonFiniteTimes(t *testing.T) {
	cases := []struct {
		name  string
		op    OperationInput
		field string
	}{
		{"setup", OperationInput{ID: 1, SetupTimeMin: math.Inf(1), HourlyRate: dec("60")}, "setup_time_min"},
		{"run", OperationInput{ID: 1, RunTimeMin: math.NaN(), HourlyRate: dec("60")}, "run_time_min"},
	}
	for _, tc := range cases {
		_, err := Calculate(Input{Quantity: 1, Material: plateMaterial(), Operations: []OperationInput{tc.op}})
		var ve *domain.ValidationError
		if !errors.As(err, &ve) || ve.Field != tc.field {
			t.Fatalf("%s: expected %s validation error, got %v", tc.name, tc.field, err)
		}
	}

	huge := OperationInput{ID: 1, RunTimeMin: math.MaxFloat64, HourlyRate: dec("60")}
	_, err := Calculate(Input{Quantity: 1, Material: plateMaterial(), Operations: []OperationInput{huge, huge}})
	if !domain.IsValidation(err) {
		t.Fatalf("expected overflowing unit time to be rejected, got %v", err)
	}
}

func TestValidateForFreeze_NamesOffendingEntity(t *testing.T) {
	base := Input{
		Quantity: 10,
		Material: plateMaterial(),
		Operations: []OperationInput{
			{ID: 4, MachineID: 9, SetupTimeMin: 10, RunTimeMin: 1, HourlyRate: dec("100")},
		},
	}
	if err := ValidateForFreeze(base); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}

	zeroMaterial := base
	zeroMaterial.Material.PricePerKg = decimal.Zero
	var ve *domain.ValidationError
	if err := ValidateForFreeze(zeroMaterial); !errors.As(err, &ve) || ve.Entity != "material 1" {
		t.Fatalf("expected material 1 validation error, got %v", err)
	}

	zeroRate := base
	zeroRate.Operations = []OperationInput{{ID: 4, MachineID: 9, HourlyRate: decimal.Zero}}
	if err := ValidateForFreeze(zeroRate); !errors.As(err, &ve) || ve.Entity != "machine 9" {
		t.Fatalf("expected machine 9 validation error, got %v", err)
	}

	freeCoop := base
	freeCoop.Operations = []OperationInput{{ID: 5, IsCooperation: true}}
	if err := ValidateForFreeze(freeCoop); !errors.As(err, &ve) || ve.Entity != "operation 5" {
		t.Fatalf("expected operation 5 validation error, got %v", err)
	}
}
