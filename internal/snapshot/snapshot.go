package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/pricing"
)

// CurrentVersion is written into every new snapshot document. Readers switch
// on snapshot_version so older shapes can be migrated when decoded.
const CurrentVersion = 1

// WarningGeometryChanged flags a frozen price whose part technology changed
// after the freeze.
const WarningGeometryChanged = "GEOMETRY_CHANGED"

// Document is the immutable blob stored on a frozen batch.
type Document struct {
	SnapshotVersion int          `json:"snapshot_version"`
	FrozenAt        time.Time    `json:"frozen_at"`
	FrozenBy        string       `json:"frozen_by"`
	GeometryHash    string       `json:"geometry_hash"`
	Costs           domain.Costs `json:"costs"`
	Metadata        Metadata     `json:"metadata"`
}

// Metadata records the inputs a frozen price was computed from.
type Metadata struct {
	PartID     int64               `json:"part_id"`
	BatchID    int64               `json:"batch_id"`
	Quantity   int                 `json:"quantity"`
	MaterialID int64               `json:"material_id"`
	PricePerKg decimal.Decimal     `json:"price_per_kg"`
	Density    float64             `json:"density"`
	Volume     float64             `json:"volume_mm3"`
	Mass       float64             `json:"mass_kg"`
	Operations []OperationMetadata `json:"operations"`
}

type OperationMetadata struct {
	OperationID   int64           `json:"operation_id"`
	MachineID     int64           `json:"machine_id,omitempty"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	SetupTimeMin  float64         `json:"setup_time_min"`
	RunTimeMin    float64         `json:"run_time_min"`
	IsCooperation bool            `json:"is_cooperation"`
	Setup         decimal.Decimal `json:"setup"`
	Run           decimal.Decimal `json:"run"`
	Cooperation   decimal.Decimal `json:"cooperation"`
}

// SetDocument is the immutable blob stored on a frozen batch set.
type SetDocument struct {
	SnapshotVersion int        `json:"snapshot_version"`
	FrozenAt        time.Time  `json:"frozen_at"`
	FrozenBy        string     `json:"frozen_by"`
	GeometryHash    string     `json:"geometry_hash"`
	Batches         []SetEntry `json:"batches"`
	Metadata        SetMeta    `json:"metadata"`
}

type SetEntry struct {
	BatchID  int64        `json:"batch_id"`
	Quantity int          `json:"quantity"`
	Costs    domain.Costs `json:"costs"`
}

type SetMeta struct {
	PartID int64  `json:"part_id"`
	SetID  int64  `json:"batch_set_id"`
	Name   string `json:"name"`
}

// Build assembles the snapshot document of one batch from a fresh calculation.
func Build(batch domain.Batch, in pricing.Input, b pricing.Breakdown, geometryHash string, frozenAt time.Time, frozenBy string) Document {
	ops := make([]OperationMetadata, 0, len(in.Operations))
	for i, op := range in.Operations {
		om := OperationMetadata{
			OperationID:   op.ID,
			MachineID:     op.MachineID,
			HourlyRate:    op.HourlyRate,
			SetupTimeMin:  op.SetupTimeMin,
			RunTimeMin:    op.RunTimeMin,
			IsCooperation: op.IsCooperation,
		}
		if i < len(b.Operations) {
			om.Setup = b.Operations[i].Setup
			om.Run = b.Operations[i].Run
			om.Cooperation = b.Operations[i].Cooperation
		}
		ops = append(ops, om)
	}

	return Document{
		SnapshotVersion: CurrentVersion,
		FrozenAt:        frozenAt.UTC(),
		FrozenBy:        frozenBy,
		GeometryHash:    geometryHash,
		Costs:           b.Costs(),
		Metadata: Metadata{
			PartID:     batch.PartID,
			BatchID:    batch.ID,
			Quantity:   in.Quantity,
			MaterialID: in.Material.MaterialID,
			PricePerKg: in.Material.PricePerKg,
			Density:    in.Material.Density,
			Volume:     b.Volume,
			Mass:       b.Mass,
			Operations: ops,
		},
	}
}

// Encode serializes doc, stamping the current schema version.
func Encode(doc Document) ([]byte, error) {
	doc.SnapshotVersion = CurrentVersion
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return raw, nil
}

// Decode parses a batch snapshot, migrating older schema versions.
func Decode(raw []byte) (Document, error) {
	version, err := peekVersion(raw)
	if err != nil {
		return Document{}, err
	}
	switch version {
	case 1:
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Document{}, fmt.Errorf("decode snapshot v1: %w", err)
		}
		return doc, nil
	default:
		return Document{}, fmt.Errorf("snapshot version %d: %w", version, domain.ErrSnapshotVersion)
	}
}

// EncodeSet serializes a set snapshot, stamping the current schema version.
func EncodeSet(doc SetDocument) ([]byte, error) {
	doc.SnapshotVersion = CurrentVersion
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode set snapshot: %w", err)
	}
	return raw, nil
}

// DecodeSet parses a batch set snapshot.
func DecodeSet(raw []byte) (SetDocument, error) {
	version, err := peekVersion(raw)
	if err != nil {
		return SetDocument{}, err
	}
	switch version {
	case 1:
		var doc SetDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return SetDocument{}, fmt.Errorf("decode set snapshot v1: %w", err)
		}
		return doc, nil
	default:
		return SetDocument{}, fmt.Errorf("set snapshot version %d: %w", version, domain.ErrSnapshotVersion)
	}
}

func peekVersion(raw []byte) (int, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("snapshot is empty: %w", domain.ErrSnapshotVersion)
	}
	var head struct {
		SnapshotVersion int `json:"snapshot_version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return 0, fmt.Errorf("read snapshot version: %w", err)
	}
	return head.SnapshotVersion, nil
}
