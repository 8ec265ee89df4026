package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/snapshot"
)

func TestCreate_WorkedExample(t *testing.T) {
	f := newFixture(t)

	b, err := f.svc.Create(userCtx(), f.partID, 100)
	require.NoError(t, err)

	assert.True(t, b.Costs.MaterialCost.Equal(dec("2.5")), "material %s", b.Costs.MaterialCost)
	assert.True(t, b.Costs.SetupCost.Equal(dec("3")), "setup %s", b.Costs.SetupCost)
	assert.True(t, b.Costs.MachiningCost.Equal(dec("20")), "machining %s", b.Costs.MachiningCost)
	assert.True(t, b.Costs.UnitCost.Equal(dec("25.5")), "unit %s", b.Costs.UnitCost)
	assert.True(t, b.Costs.TotalCost.Equal(dec("2550")), "total %s", b.Costs.TotalCost)
	assert.Equal(t, int64(0), b.Version)
	assert.False(t, b.IsFrozen)
	assert.Equal(t, "estimator", b.CreatedBy)
	assert.Nil(t, b.BatchSetID)
}

func TestCreate_RejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)

	for _, q := range []int{0, -3} {
		_, err := f.svc.Create(userCtx(), f.partID, q)
		assert.True(t, domain.IsValidation(err), "quantity %d: got %v", q, err)
	}
}

func TestCreate_UnknownPart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(userCtx(), 999, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecalculate_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 50)
	require.NoError(t, err)

	first, err := f.svc.Recalculate(ctx, b.ID)
	require.NoError(t, err)
	second, err := f.svc.Recalculate(ctx, b.ID)
	require.NoError(t, err)

	assert.Equal(t, b.Version, second.Version, "unchanged inputs must not write")
	assert.True(t, first.Costs.Equal(second.Costs))
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestRecalculatePart_FollowsInputsAndSkipsFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	draft, err := f.svc.Create(ctx, f.partID, 100)
	require.NoError(t, err)
	frozen, err := f.svc.Create(ctx, f.partID, 100)
	require.NoError(t, err)
	frozen, err = f.svc.Freeze(ctx, frozen.ID, frozen.Version)
	require.NoError(t, err)

	f.setMaterialPrice(t, "20")

	n, err := f.svc.RecalculatePart(ctx, f.partID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, got.Costs.MaterialCost.Equal(dec("5")), "material %s", got.Costs.MaterialCost)
	assert.True(t, got.Costs.UnitCost.Equal(dec("28")), "unit %s", got.Costs.UnitCost)
	assert.Equal(t, draft.Version+1, got.Version)

	still, err := f.svc.Get(ctx, frozen.ID)
	require.NoError(t, err)
	assert.Equal(t, frozen.Version, still.Version)
	assert.True(t, still.Costs.UnitCost.Equal(dec("25.5")))

	n, err = f.svc.RecalculatePart(ctx, f.partID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFreeze_IsFixpoint(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 100)
	require.NoError(t, err)

	before, err := f.svc.EffectiveCosts(ctx, b.ID)
	require.NoError(t, err)
	require.False(t, before.Frozen)

	frozen, err := f.svc.Freeze(ctx, b.ID, b.Version)
	require.NoError(t, err)
	assert.True(t, frozen.IsFrozen)
	assert.Equal(t, b.Version+1, frozen.Version)
	assert.Equal(t, "estimator", frozen.FrozenBy)
	require.NotNil(t, frozen.FrozenAt)
	assert.True(t, frozen.FrozenAt.Equal(frozenClock))
	require.NotEmpty(t, frozen.SnapshotData)

	after, err := f.svc.EffectiveCosts(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, after.Frozen)
	assert.Empty(t, after.Warnings)
	assert.True(t, before.Costs.Equal(after.Costs), "before %+v after %+v", before.Costs, after.Costs)

	doc, err := snapshot.Decode(frozen.SnapshotData)
	require.NoError(t, err)
	assert.Equal(t, snapshot.CurrentVersion, doc.SnapshotVersion)
	assert.Equal(t, "estimator", doc.FrozenBy)
	assert.Equal(t, 100, doc.Metadata.Quantity)
	require.Len(t, doc.Metadata.Operations, 1)
	assert.True(t, doc.Metadata.Operations[0].HourlyRate.Equal(dec("600")))
}

func TestFreeze_RejectsNonPositiveInputs(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 10)
	require.NoError(t, err)

	f.setMachineRate(t, "0")

	_, err = f.svc.Freeze(ctx, b.ID, b.Version)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, domain.EntityRef("machine", f.machineID), ve.Entity)

	got, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, got.IsFrozen)
	assert.Empty(t, got.SnapshotData)
	assert.Equal(t, b.Version, got.Version)
}

func TestFreeze_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 10)
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Quantity: 20}, b.Version)
	require.NoError(t, err)

	_, err = f.svc.Freeze(ctx, b.ID, b.Version)
	assert.True(t, domain.IsConflict(err), "got %v", err)
}

func TestFrozenBatch_RejectsEveryMutationButClone(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 10)
	require.NoError(t, err)
	frozen, err := f.svc.Freeze(ctx, b.ID, b.Version)
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, b.ID, UpdateInput{Quantity: 11}, frozen.Version)
	assert.ErrorIs(t, err, domain.ErrFrozen)
	_, err = f.svc.Recalculate(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrFrozen)
	_, err = f.svc.Freeze(ctx, b.ID, frozen.Version)
	assert.ErrorIs(t, err, domain.ErrFrozen)

	clone, err := f.svc.Clone(ctx, b.ID)
	require.NoError(t, err)
	assert.NotEqual(t, b.ID, clone.ID)

	require.NoError(t, f.svc.Delete(ctx, b.ID, frozen.Version))
	_, err = f.svc.Get(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	row, err := f.store.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, row.IsFrozen)
	assert.NotEmpty(t, row.SnapshotData)
}

func TestUpdate_ConcurrentSameVersionExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 10)
	require.NoError(t, err)

	var conflicts, applied atomic.Int32
	var g errgroup.Group
	for _, q := range []int{200, 300} {
		g.Go(func() error {
			_, err := f.svc.Update(ctx, b.ID, UpdateInput{Quantity: q}, b.Version)
			switch {
			case err == nil:
				applied.Add(1)
			case domain.IsConflict(err):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(1), conflicts.Load())

	stored, err := f.svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Version+1, stored.Version)

	fresh, err := f.svc.EffectiveCosts(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, fresh.Costs.Equal(stored.Costs), "stored costs must match quantity %d", stored.Quantity)
}

func TestEffectiveCosts_GeometryChangedKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 100)
	require.NoError(t, err)
	frozen, err := f.svc.Freeze(ctx, b.ID, b.Version)
	require.NoError(t, err)

	f.setStock(t, domain.Plate{Width: 200, Thickness: 10, Length: 100})

	ec, err := f.svc.EffectiveCosts(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, ec.Frozen)
	assert.True(t, ec.GeometryChanged())
	assert.Equal(t, []string{snapshot.WarningGeometryChanged}, ec.Warnings)
	assert.NotEqual(t, ec.SnapshotHash, ec.CurrentHash)
	assert.True(t, ec.Costs.UnitCost.Equal(dec("25.5")), "unit %s", ec.Costs.UnitCost)
	assert.True(t, ec.Costs.Equal(frozen.Costs))
}

func TestEffectiveCosts_PriceChangeIsNotDrift(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 100)
	require.NoError(t, err)
	_, err = f.svc.Freeze(ctx, b.ID, b.Version)
	require.NoError(t, err)

	f.setMaterialPrice(t, "99")

	ec, err := f.svc.EffectiveCosts(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, ec.GeometryChanged())
	assert.True(t, ec.Costs.UnitCost.Equal(dec("25.5")))
}

func TestClone_FrozenBatchIsRepricedDraft(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	b, err := f.svc.Create(ctx, f.partID, 100)
	require.NoError(t, err)
	_, err = f.svc.Freeze(ctx, b.ID, b.Version)
	require.NoError(t, err)

	f.setMaterialPrice(t, "20")

	clone, err := f.svc.Clone(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, clone.IsFrozen)
	assert.Equal(t, int64(0), clone.Version)
	assert.Nil(t, clone.FrozenAt)
	assert.Empty(t, clone.SnapshotData)
	assert.Equal(t, b.Quantity, clone.Quantity)
	assert.True(t, clone.Costs.UnitCost.Equal(dec("28")), "unit %s", clone.Costs.UnitCost)

	live, err := f.svc.EffectiveCosts(ctx, clone.ID)
	require.NoError(t, err)
	assert.True(t, live.Costs.Equal(clone.Costs))
}

func TestDelete_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.svc.Create(ctx, f.partID, 10)
	require.NoError(t, err)

	err = f.svc.Delete(ctx, b.ID, b.Version+5)
	assert.True(t, domain.IsConflict(err), "got %v", err)

	require.NoError(t, f.svc.Delete(ctx, b.ID, b.Version))
	err = f.svc.Delete(ctx, b.ID, b.Version+1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
