package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Audit is carried by every mutable row. Version is the optimistic lock
// counter compared on every write.
type Audit struct {
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	CreatedBy string     `json:"created_by"`
	UpdatedBy string     `json:"updated_by"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
	Version   int64      `json:"version"`
}

// Deleted reports whether the row has been soft-deleted.
func (a Audit) Deleted() bool {
	return a.DeletedAt != nil
}

type MaterialGroup struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Density float64 `json:"density"` // g/cm³
	Audit
}

// Material is a priced catalog item. Density is inherited from its group.
type Material struct {
	ID         int64           `json:"id"`
	GroupID    int64           `json:"group_id"`
	Name       string          `json:"name"`
	Density    float64         `json:"density"`
	PricePerKg decimal.Decimal `json:"price_per_kg"`
	Audit
}

type Machine struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Audit
}

type Part struct {
	ID         int64  `json:"id"`
	PartNumber string `json:"part_number"`
	Name       string `json:"name"`
	Stock      Stock  `json:"-"`
	MaterialID int64  `json:"material_id"`
	Audit
}

type OperationType string

const (
	OpTurning     OperationType = "turning"
	OpMilling     OperationType = "milling"
	OpDrilling    OperationType = "drilling"
	OpGrinding    OperationType = "grinding"
	OpSawing      OperationType = "sawing"
	OpCooperation OperationType = "cooperation"
)

// Operation is one machining step. RunTimeMin is a per-unit override; when it
// is zero the run time is derived from the features the operation machines.
type Operation struct {
	ID            int64           `json:"id"`
	PartID        int64           `json:"part_id"`
	Seq           int             `json:"seq"`
	Type          OperationType   `json:"type"`
	MachineID     *int64          `json:"machine_id,omitempty"`
	CuttingSpeed  float64         `json:"cutting_speed"` // m/min
	FeedPerRev    float64         `json:"feed_per_rev"`  // mm/rev
	DepthOfCut    float64         `json:"depth_of_cut"`  // mm
	SetupTimeMin  float64         `json:"setup_time_min"`
	RunTimeMin    float64         `json:"run_time_min"`
	IsCooperation bool            `json:"is_cooperation"`
	CoopUnitPrice decimal.Decimal `json:"coop_unit_price"`
	CoopMinPrice  decimal.Decimal `json:"coop_min_price"`
	Audit
}

type FeatureType string

const (
	FeatureHole   FeatureType = "hole"
	FeatureTurn   FeatureType = "turn"
	FeatureFace   FeatureType = "face"
	FeaturePocket FeatureType = "pocket"
	FeatureSlot   FeatureType = "slot"
	FeatureThread FeatureType = "thread"
)

type Feature struct {
	ID          int64       `json:"id"`
	PartID      int64       `json:"part_id"`
	OperationID *int64      `json:"operation_id,omitempty"`
	Type        FeatureType `json:"type"`
	Diameter    float64     `json:"diameter"`
	Length      float64     `json:"length"`
	Width       float64     `json:"width"`
	Depth       float64     `json:"depth"`
	Count       int         `json:"count"`
	Audit
}

// Costs holds per-unit amounts plus the batch total.
type Costs struct {
	MaterialCost    decimal.Decimal `json:"material_cost"`
	SetupCost       decimal.Decimal `json:"setup_cost"`
	MachiningCost   decimal.Decimal `json:"machining_cost"`
	CooperationCost decimal.Decimal `json:"cooperation_cost"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	UnitTimeMin     float64         `json:"unit_time_min"`
}

// Equal compares amounts numerically.
func (c Costs) Equal(o Costs) bool {
	return c.MaterialCost.Equal(o.MaterialCost) &&
		c.SetupCost.Equal(o.SetupCost) &&
		c.MachiningCost.Equal(o.MachiningCost) &&
		c.CooperationCost.Equal(o.CooperationCost) &&
		c.UnitCost.Equal(o.UnitCost) &&
		c.TotalCost.Equal(o.TotalCost) &&
		c.UnitTimeMin == o.UnitTimeMin
}

// Batch is the cost of one part at one quantity. Once IsFrozen is set the
// costs live in SnapshotData and the row is immutable.
type Batch struct {
	ID           int64           `json:"id"`
	PartID       int64           `json:"part_id"`
	BatchSetID   *int64          `json:"batch_set_id,omitempty"`
	Position     int             `json:"position"`
	Quantity     int             `json:"quantity"`
	Costs        Costs           `json:"costs"`
	IsFrozen     bool            `json:"is_frozen"`
	FrozenAt     *time.Time      `json:"frozen_at,omitempty"`
	FrozenBy     string          `json:"frozen_by,omitempty"`
	SnapshotData json.RawMessage `json:"snapshot_data,omitempty"`
	Audit
}

type BatchSetStatus string

const (
	BatchSetDraft  BatchSetStatus = "draft"
	BatchSetFrozen BatchSetStatus = "frozen"
)

type BatchSet struct {
	ID           int64           `json:"id"`
	PartID       int64           `json:"part_id"`
	Name         string          `json:"name"`
	Status       BatchSetStatus  `json:"status"`
	FrozenAt     *time.Time      `json:"frozen_at,omitempty"`
	FrozenBy     string          `json:"frozen_by,omitempty"`
	SnapshotData json.RawMessage `json:"snapshot_data,omitempty"`
	Audit
}

// Frozen reports whether the set has left the draft state.
func (s BatchSet) Frozen() bool {
	return s.Status == BatchSetFrozen
}
