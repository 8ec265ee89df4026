package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/snapshot"
)

// setWithBatches creates a draft set holding one batch per quantity.
func setWithBatches(t *testing.T, f *fixture, quantities ...int) Set {
	t.Helper()
	ctx := userCtx()
	set, err := f.sets.Create(ctx, f.partID, "Offer 2026-17")
	require.NoError(t, err)
	for _, q := range quantities {
		_, err := f.sets.AddBatch(ctx, set.ID, q, set.Version)
		require.NoError(t, err)
		set, err = f.sets.Get(ctx, set.ID)
		require.NoError(t, err)
	}
	return set
}

func TestSetCreate_OneDraftPerPart(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()

	_, err := f.sets.Create(ctx, f.partID, "A")
	require.NoError(t, err)
	_, err = f.sets.Create(ctx, f.partID, "B")
	assert.ErrorIs(t, err, domain.ErrDraftSetExists)

	_, err = f.sets.Create(ctx, f.partID, "  ")
	assert.True(t, domain.IsValidation(err))
}

func TestSetAddBatch_OrdersMembersAndBumpsVersion(t *testing.T) {
	f := newFixture(t)
	set := setWithBatches(t, f, 10, 100, 1000)

	assert.Equal(t, int64(3), set.Version)
	require.Len(t, set.Batches, 3)
	for i, b := range set.Batches {
		assert.Equal(t, i+1, b.Position)
		require.NotNil(t, b.BatchSetID)
		assert.Equal(t, set.ID, *b.BatchSetID)
	}
	assert.True(t, set.Batches[1].Costs.UnitCost.Equal(dec("25.5")))

	_, err := f.sets.AddBatch(userCtx(), set.ID, 5, 0)
	assert.True(t, domain.IsConflict(err), "got %v", err)
}

func TestSetRemoveBatch(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	set := setWithBatches(t, f, 10, 20)
	removed := set.Batches[0]

	require.NoError(t, f.sets.RemoveBatch(ctx, set.ID, removed.ID, set.Version))

	set, err := f.sets.Get(ctx, set.ID)
	require.NoError(t, err)
	require.Len(t, set.Batches, 1)
	assert.Equal(t, 20, set.Batches[0].Quantity)

	err = f.sets.RemoveBatch(ctx, set.ID, removed.ID, set.Version)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	loose, err := f.svc.Create(ctx, f.partID, 3)
	require.NoError(t, err)
	err = f.sets.RemoveBatch(ctx, set.ID, loose.ID, set.Version)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSetFreeze_FreezesAllMembersTogether(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	set := setWithBatches(t, f, 10, 100, 1000)

	frozen, err := f.sets.Freeze(ctx, set.ID, set.Version)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchSetFrozen, frozen.Status)
	require.NotNil(t, frozen.FrozenAt)
	require.Len(t, frozen.Batches, 3)
	for _, b := range frozen.Batches {
		assert.True(t, b.IsFrozen, "batch %d", b.ID)
		require.NotNil(t, b.FrozenAt)
		assert.True(t, b.FrozenAt.Equal(*frozen.FrozenAt), "batch %d frozen_at", b.ID)
	}

	doc, err := snapshot.DecodeSet(frozen.SnapshotData)
	require.NoError(t, err)
	require.Len(t, doc.Batches, 3)
	assert.Equal(t, frozen.Batches[1].ID, doc.Batches[1].BatchID)
	assert.True(t, doc.Batches[1].Costs.UnitCost.Equal(dec("25.5")))

	_, err = f.sets.AddBatch(ctx, set.ID, 5, frozen.Version)
	assert.ErrorIs(t, err, domain.ErrFrozen)
	err = f.sets.RemoveBatch(ctx, set.ID, frozen.Batches[0].ID, frozen.Version)
	assert.ErrorIs(t, err, domain.ErrFrozen)
	_, err = f.sets.Freeze(ctx, set.ID, frozen.Version)
	assert.ErrorIs(t, err, domain.ErrFrozen)
}

func TestSetFreeze_InjectedFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	set := setWithBatches(t, f, 10, 100, 1000)
	last := set.Batches[2]

	_, err := f.db.Exec(fmt.Sprintf(`
		CREATE TRIGGER fail_freeze BEFORE UPDATE OF is_frozen ON batches
		WHEN NEW.id = %d
		BEGIN
			SELECT RAISE(ABORT, 'injected failure');
		END;
	`, last.ID))
	require.NoError(t, err)

	_, err = f.sets.Freeze(ctx, set.ID, set.Version)
	require.Error(t, err)

	after, err := f.sets.Get(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchSetDraft, after.Status)
	assert.Equal(t, set.Version, after.Version)
	assert.Nil(t, after.FrozenAt)
	for i, b := range after.Batches {
		assert.False(t, b.IsFrozen, "batch %d", b.ID)
		assert.Nil(t, b.FrozenAt)
		assert.Empty(t, b.SnapshotData)
		assert.Equal(t, set.Batches[i].Version, b.Version)
	}

	_, err = f.db.Exec(`DROP TRIGGER fail_freeze`)
	require.NoError(t, err)
	_, err = f.sets.Freeze(ctx, set.ID, set.Version)
	require.NoError(t, err)
}

func TestSetFreeze_RejectsEmptySetAndFrozenMembers(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()

	empty, err := f.sets.Create(ctx, f.partID, "empty")
	require.NoError(t, err)
	_, err = f.sets.Freeze(ctx, empty.ID, empty.Version)
	assert.True(t, domain.IsValidation(err), "got %v", err)
	require.NoError(t, f.sets.Delete(ctx, empty.ID, empty.Version))

	set := setWithBatches(t, f, 10, 20)
	// Members are frozen through the set only.
	_, err = f.svc.Freeze(ctx, set.Batches[0].ID, set.Batches[0].Version)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "batch_set_id", ve.Field)
	member, err := f.svc.Get(ctx, set.Batches[0].ID)
	require.NoError(t, err)
	assert.False(t, member.IsFrozen)

	frozen, err := f.sets.Freeze(ctx, set.ID, set.Version)
	require.NoError(t, err)
	_, err = f.sets.Freeze(ctx, frozen.ID, frozen.Version)
	assert.ErrorIs(t, err, domain.ErrFrozen)
}

func TestSetRecalculate(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	set := setWithBatches(t, f, 10, 100)

	f.setMaterialPrice(t, "20")
	n, err := f.sets.Recalculate(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	set, err = f.sets.Get(ctx, set.ID)
	require.NoError(t, err)
	frozen, err := f.sets.Freeze(ctx, set.ID, set.Version)
	require.NoError(t, err)

	f.setMaterialPrice(t, "40")
	n, err = f.sets.Recalculate(ctx, set.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	after, err := f.sets.Get(ctx, set.ID)
	require.NoError(t, err)
	for i, b := range after.Batches {
		assert.Equal(t, frozen.Batches[i].Version, b.Version)
		assert.True(t, b.Costs.Equal(frozen.Batches[i].Costs))
	}
}

func TestSetClone(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	set := setWithBatches(t, f, 10, 100)

	_, err := f.sets.Clone(ctx, set.ID)
	assert.ErrorIs(t, err, domain.ErrDraftSetExists)

	frozen, err := f.sets.Freeze(ctx, set.ID, set.Version)
	require.NoError(t, err)
	f.setMaterialPrice(t, "20")

	clone, err := f.sets.Clone(ctx, set.ID)
	require.NoError(t, err)
	assert.NotEqual(t, frozen.ID, clone.ID)
	assert.Equal(t, domain.BatchSetDraft, clone.Status)
	assert.Equal(t, "Offer 2026-17 (copy)", clone.Name)
	assert.Equal(t, int64(0), clone.Version)
	assert.Empty(t, clone.SnapshotData)
	require.Len(t, clone.Batches, 2)
	for i, b := range clone.Batches {
		assert.False(t, b.IsFrozen)
		assert.Equal(t, int64(0), b.Version)
		assert.Equal(t, frozen.Batches[i].Quantity, b.Quantity)
		assert.Equal(t, frozen.Batches[i].Position, b.Position)
	}
	assert.True(t, clone.Batches[1].Costs.UnitCost.Equal(dec("28")))
}

func TestSetDelete(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	set := setWithBatches(t, f, 10, 100)

	err := f.sets.Delete(ctx, set.ID, set.Version-1)
	assert.True(t, domain.IsConflict(err), "got %v", err)

	require.NoError(t, f.sets.Delete(ctx, set.ID, set.Version))
	_, err = f.sets.Get(ctx, set.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	for _, b := range set.Batches {
		_, err := f.svc.Get(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}

	_, err = f.sets.Create(ctx, f.partID, "next")
	assert.NoError(t, err)
}

func TestSetEffectiveCosts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	set := setWithBatches(t, f, 10, 100)

	draft, err := f.sets.EffectiveCosts(ctx, set.ID)
	require.NoError(t, err)
	assert.False(t, draft.Frozen)
	require.Len(t, draft.Batches, 2)
	assert.True(t, draft.Batches[1].Costs.UnitCost.Equal(dec("25.5")))

	_, err = f.sets.Freeze(ctx, set.ID, set.Version)
	require.NoError(t, err)

	clean, err := f.sets.EffectiveCosts(ctx, set.ID)
	require.NoError(t, err)
	assert.True(t, clean.Frozen)
	assert.Empty(t, clean.Warnings)
	for i := range clean.Batches {
		assert.True(t, clean.Batches[i].Costs.Equal(draft.Batches[i].Costs))
	}

	f.setStock(t, domain.Plate{Width: 100, Thickness: 20, Length: 100})

	drifted, err := f.sets.EffectiveCosts(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{snapshot.WarningGeometryChanged}, drifted.Warnings)
	assert.NotEqual(t, drifted.SnapshotHash, drifted.CurrentHash)
	for i := range drifted.Batches {
		assert.True(t, drifted.Batches[i].GeometryChanged())
		assert.True(t, drifted.Batches[i].Costs.Equal(draft.Batches[i].Costs))
	}
}
