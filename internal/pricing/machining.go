package pricing

import (
	"math"

	"github.com/Simplici0/batchcost/internal/domain"
)

// CuttingParams are the operation parameters a feature is machined with.
type CuttingParams struct {
	CuttingSpeed float64 // vc, m/min
	FeedPerRev   float64 // f, mm/rev
	DepthOfCut   float64 // ap, mm
}

// FeatureTime returns the machining time in minutes for one feature of one unit.
func FeatureTime(f domain.Feature, p CuttingParams) (float64, error) {
	ref := featureRef(f.ID)
	if p.CuttingSpeed <= 0 {
		return 0, domain.NewValidationError(ref, "cutting_speed", "must be positive to derive machining time")
	}
	if p.FeedPerRev <= 0 {
		return 0, domain.NewValidationError(ref, "feed_per_rev", "must be positive to derive machining time")
	}

	count := float64(f.Count)
	if count <= 0 {
		count = 1
	}

	switch f.Type {
	case domain.FeatureHole:
		vf, err := feedRate(ref, f.Diameter, p)
		if err != nil {
			return 0, err
		}
		if f.Depth <= 0 {
			return 0, domain.NewValidationError(ref, "depth", "must be positive")
		}
		return count * f.Depth / vf, nil
	case domain.FeatureTurn:
		vf, err := feedRate(ref, f.Diameter, p)
		if err != nil {
			return 0, err
		}
		n, err := passes(ref, f.Depth, p.DepthOfCut)
		if err != nil {
			return 0, err
		}
		if f.Length <= 0 {
			return 0, domain.NewValidationError(ref, "length", "must be positive")
		}
		return count * n * f.Length / vf, nil
	case domain.FeatureFace:
		vf, err := feedRate(ref, f.Diameter, p)
		if err != nil {
			return 0, err
		}
		return count * (f.Diameter / 2) / vf, nil
	case domain.FeaturePocket:
		// Diameter is the tool diameter; stepover is half of it.
		vf, err := feedRate(ref, f.Diameter, p)
		if err != nil {
			return 0, err
		}
		n, err := passes(ref, f.Depth, p.DepthOfCut)
		if err != nil {
			return 0, err
		}
		if f.Length <= 0 || f.Width <= 0 {
			return 0, domain.NewValidationError(ref, "length/width", "must be positive")
		}
		path := f.Length * f.Width / (0.5 * f.Diameter)
		return count * n * path / vf, nil
	case domain.FeatureSlot:
		vf, err := feedRate(ref, f.Width, p)
		if err != nil {
			return 0, err
		}
		n, err := passes(ref, f.Depth, p.DepthOfCut)
		if err != nil {
			return 0, err
		}
		if f.Length <= 0 {
			return 0, domain.NewValidationError(ref, "length", "must be positive")
		}
		return count * n * f.Length / vf, nil
	case domain.FeatureThread:
		rpm, err := spindleSpeed(ref, f.Diameter, p.CuttingSpeed)
		if err != nil {
			return 0, err
		}
		if f.Length <= 0 {
			return 0, domain.NewValidationError(ref, "length", "must be positive")
		}
		// feed_per_rev is the thread pitch
		return count * f.Length / (p.FeedPerRev * rpm), nil
	default:
		return 0, domain.NewValidationError(ref, "type", "unknown feature type "+string(f.Type))
	}
}

// OperationRunTime returns the per-unit run time of op in minutes. An explicit
// RunTimeMin wins; otherwise the features assigned to op are summed.
func OperationRunTime(op domain.Operation, features []domain.Feature) (float64, error) {
	if op.RunTimeMin < 0 || !isFinite(op.RunTimeMin) {
		return 0, domain.NewValidationError(operationRef(op.ID), "run_time_min", "must be a finite non-negative number")
	}
	if op.RunTimeMin > 0 || op.IsCooperation {
		return op.RunTimeMin, nil
	}

	params := CuttingParams{
		CuttingSpeed: op.CuttingSpeed,
		FeedPerRev:   op.FeedPerRev,
		DepthOfCut:   op.DepthOfCut,
	}
	total := 0.0
	for _, f := range features {
		if f.OperationID == nil || *f.OperationID != op.ID || f.Deleted() {
			continue
		}
		minutes, err := FeatureTime(f, params)
		if err != nil {
			return 0, &domain.ValidationError{
				Entity:  operationRef(op.ID),
				Field:   "features",
				Message: err.Error(),
			}
		}
		total += minutes
	}
	if !isFinite(total) {
		return 0, domain.NewValidationError(operationRef(op.ID), "features", "machining time overflows, check cutting_speed and feed_per_rev")
	}
	return total, nil
}

func spindleSpeed(ref string, diameter, vc float64) (float64, error) {
	if diameter <= 0 {
		return 0, domain.NewValidationError(ref, "diameter", "must be positive")
	}
	return 1000 * vc / (math.Pi * diameter), nil
}

func feedRate(ref string, diameter float64, p CuttingParams) (float64, error) {
	n, err := spindleSpeed(ref, diameter, p.CuttingSpeed)
	if err != nil {
		return 0, err
	}
	return p.FeedPerRev * n, nil
}

func passes(ref string, depth, ap float64) (float64, error) {
	if depth <= 0 {
		return 0, domain.NewValidationError(ref, "depth", "must be positive")
	}
	if ap <= 0 {
		return 0, domain.NewValidationError(ref, "depth_of_cut", "must be positive to derive passes")
	}
	return math.Ceil(depth / ap), nil
}

func featureRef(id int64) string {
	if id == 0 {
		return "feature"
	}
	return domain.EntityRef("feature", id)
}

func operationRef(id int64) string {
	if id == 0 {
		return "operation"
	}
	return domain.EntityRef("operation", id)
}
