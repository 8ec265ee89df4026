package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/batchcost/internal/audit"
	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/store"
)

const (
	defaultGroupName    = "Structural steel"
	defaultGroupDensity = 7.85
	defaultMaterialName = "S235JR"
	defaultMachineName  = "CNC machining centre"
)

var (
	defaultMaterialPrice = decimal.RequireFromString("1.20")
	defaultMachineRate   = decimal.RequireFromString("60")
)

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// Run executes the startup seed in an idempotent way. Rows are matched by
// name, so a renamed default is seeded again.
func Run(ctx context.Context, st *store.Store) (Stats, error) {
	stats := Stats{}
	stamp := audit.NewStamp(ctx, time.Now())

	err := st.WithTx(ctx, func(q *store.Queries) error {
		groupID, err := ensureMaterialGroup(ctx, q, stamp, &stats)
		if err != nil {
			return err
		}
		if err := ensureMaterial(ctx, q, groupID, stamp, &stats); err != nil {
			return err
		}
		return ensureMachine(ctx, q, stamp, &stats)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("seed: %w", err)
	}
	return stats, nil
}

func ensureMaterialGroup(ctx context.Context, q *store.Queries, stamp audit.Stamp, stats *Stats) (int64, error) {
	id, err := q.FindMaterialGroupByName(ctx, defaultGroupName)
	if !errors.Is(err, domain.ErrNotFound) {
		return id, err
	}

	id, err = q.InsertMaterialGroup(ctx, domain.MaterialGroup{
		Name:    defaultGroupName,
		Density: defaultGroupDensity,
		Audit:   stamp.Created(),
	})
	if err != nil {
		return 0, fmt.Errorf("insert default material group: %w", err)
	}
	stats.Inserts++
	return id, nil
}

func ensureMaterial(ctx context.Context, q *store.Queries, groupID int64, stamp audit.Stamp, stats *Stats) error {
	_, err := q.FindMaterialByName(ctx, defaultMaterialName)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if _, err := q.InsertMaterial(ctx, domain.Material{
		GroupID:    groupID,
		Name:       defaultMaterialName,
		PricePerKg: defaultMaterialPrice,
		Audit:      stamp.Created(),
	}); err != nil {
		return fmt.Errorf("insert default material: %w", err)
	}
	stats.Inserts++
	return nil
}

func ensureMachine(ctx context.Context, q *store.Queries, stamp audit.Stamp, stats *Stats) error {
	_, err := q.FindMachineByName(ctx, defaultMachineName)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if _, err := q.InsertMachine(ctx, domain.Machine{
		Name:       defaultMachineName,
		HourlyRate: defaultMachineRate,
		Audit:      stamp.Created(),
	}); err != nil {
		return fmt.Errorf("insert default machine: %w", err)
	}
	stats.Inserts++
	return nil
}
