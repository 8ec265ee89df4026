package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Simplici0/batchcost/internal/domain"
)

// HashPrefix marks the digest algorithm so it can be changed later without
// comparing digests of different kinds.
const HashPrefix = "sha256:"

type canonicalPart struct {
	StockType  domain.StockType     `json:"stock_type"`
	Stock      json.RawMessage      `json:"stock"`
	MaterialID int64                `json:"material_id"`
	Operations []canonicalOperation `json:"operations"`
	Features   []canonicalFeature   `json:"features"`
}

type canonicalOperation struct {
	ID            int64                `json:"id"`
	Seq           int                  `json:"seq"`
	Type          domain.OperationType `json:"type"`
	MachineID     int64                `json:"machine_id"`
	CuttingSpeed  float64              `json:"cutting_speed"`
	FeedPerRev    float64              `json:"feed_per_rev"`
	DepthOfCut    float64              `json:"depth_of_cut"`
	SetupTimeMin  float64              `json:"setup_time_min"`
	RunTimeMin    float64              `json:"run_time_min"`
	IsCooperation bool                 `json:"is_cooperation"`
}

type canonicalFeature struct {
	ID          int64              `json:"id"`
	OperationID int64              `json:"operation_id"`
	Type        domain.FeatureType `json:"type"`
	Diameter    float64            `json:"diameter"`
	Length      float64            `json:"length"`
	Width       float64            `json:"width"`
	Depth       float64            `json:"depth"`
	Count       int                `json:"count"`
}

// GeometryHash digests the technology of a part: stock, material reference and
// every live operation (including its sequence) and feature, sorted by id.
// Prices and audit fields are not part of the digest.
func GeometryHash(part domain.Part, ops []domain.Operation, features []domain.Feature) (string, error) {
	stockType, stock, err := domain.EncodeStock(part.Stock)
	if err != nil {
		return "", err
	}

	c := canonicalPart{
		StockType:  stockType,
		Stock:      stock,
		MaterialID: part.MaterialID,
		Operations: make([]canonicalOperation, 0, len(ops)),
		Features:   make([]canonicalFeature, 0, len(features)),
	}

	for _, op := range ops {
		if op.Deleted() {
			continue
		}
		c.Operations = append(c.Operations, canonicalOperation{
			ID:            op.ID,
			Seq:           op.Seq,
			Type:          op.Type,
			MachineID:     derefID(op.MachineID),
			CuttingSpeed:  op.CuttingSpeed,
			FeedPerRev:    op.FeedPerRev,
			DepthOfCut:    op.DepthOfCut,
			SetupTimeMin:  op.SetupTimeMin,
			RunTimeMin:    op.RunTimeMin,
			IsCooperation: op.IsCooperation,
		})
	}
	for _, f := range features {
		if f.Deleted() {
			continue
		}
		c.Features = append(c.Features, canonicalFeature{
			ID:          f.ID,
			OperationID: derefID(f.OperationID),
			Type:        f.Type,
			Diameter:    f.Diameter,
			Length:      f.Length,
			Width:       f.Width,
			Depth:       f.Depth,
			Count:       f.Count,
		})
	}

	sort.Slice(c.Operations, func(i, j int) bool { return c.Operations[i].ID < c.Operations[j].ID })
	sort.Slice(c.Features, func(i, j int) bool { return c.Features[i].ID < c.Features[j].ID })

	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode canonical geometry: %w", err)
	}
	sum := sha256.Sum256(raw)
	return HashPrefix + hex.EncodeToString(sum[:]), nil
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
