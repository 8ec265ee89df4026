package snapshot

import "github.com/Simplici0/batchcost/internal/domain"

// EffectiveCosts is what a caller should show for a batch: the frozen price
// when there is one, the live price otherwise.
type EffectiveCosts struct {
	BatchID      int64        `json:"batch_id"`
	Quantity     int          `json:"quantity"`
	Frozen       bool         `json:"frozen"`
	Costs        domain.Costs `json:"costs"`
	Warnings     []string     `json:"warnings"`
	SnapshotHash string       `json:"snapshot_geometry_hash,omitempty"`
	CurrentHash  string       `json:"current_geometry_hash,omitempty"`
}

// GeometryChanged reports whether the GEOMETRY_CHANGED warning is set.
func (e EffectiveCosts) GeometryChanged() bool {
	for _, w := range e.Warnings {
		if w == WarningGeometryChanged {
			return true
		}
	}
	return false
}

// Frozen returns the snapshot costs of doc and, when currentHash differs from
// the hash captured at freeze time, the GEOMETRY_CHANGED warning with both
// digests. It never recomputes.
func Frozen(batch domain.Batch, doc Document, currentHash string) EffectiveCosts {
	out := EffectiveCosts{
		BatchID:  batch.ID,
		Quantity: doc.Metadata.Quantity,
		Frozen:   true,
		Costs:    doc.Costs,
		Warnings: []string{},
	}
	if doc.GeometryHash != currentHash {
		out.Warnings = append(out.Warnings, WarningGeometryChanged)
		out.SnapshotHash = doc.GeometryHash
		out.CurrentHash = currentHash
	}
	return out
}

// Live wraps freshly calculated costs of a draft batch.
func Live(batch domain.Batch, costs domain.Costs) EffectiveCosts {
	return EffectiveCosts{
		BatchID:  batch.ID,
		Quantity: batch.Quantity,
		Costs:    costs,
		Warnings: []string{},
	}
}
