// Package batch prices parts at a quantity, keeps draft batches in step with
// their inputs and freezes batches and batch sets into immutable snapshots.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/batchcost/internal/audit"
	"github.com/Simplici0/batchcost/internal/catalog"
	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/metrics"
	"github.com/Simplici0/batchcost/internal/pricing"
	"github.com/Simplici0/batchcost/internal/snapshot"
	"github.com/Simplici0/batchcost/internal/store"
)

// Service manages single batches.
type Service struct {
	store *store.Store
	cache *catalog.Cache
	log   *zap.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for audit and freeze stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st *store.Store, cache *catalog.Cache, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store: st,
		cache: cache,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateInput holds the editable fields of a draft batch.
type UpdateInput struct {
	Quantity int
}

// Create prices a new draft batch of quantity units of a part.
func (s *Service) Create(ctx context.Context, partID int64, quantity int) (domain.Batch, error) {
	if err := checkQuantity(quantity); err != nil {
		return domain.Batch{}, err
	}
	tech, err := s.loadTechnology(ctx, partID)
	if err != nil {
		return domain.Batch{}, err
	}
	_, b, err := tech.price(quantity)
	if err != nil {
		return domain.Batch{}, err
	}

	id, err := s.store.InsertBatch(ctx, domain.Batch{
		PartID:   partID,
		Quantity: quantity,
		Costs:    b.Costs(),
		Audit:    s.stamp(ctx).Created(),
	})
	if err != nil {
		return domain.Batch{}, err
	}
	s.log.Info("batch created", zap.Int64("batch_id", id), zap.Int64("part_id", partID), zap.Int("quantity", quantity))
	return s.store.GetBatch(ctx, id)
}

// Get returns a live batch.
func (s *Service) Get(ctx context.Context, id int64) (domain.Batch, error) {
	b, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if b.Deleted() {
		return domain.Batch{}, fmt.Errorf("batch %d: %w", id, domain.ErrNotFound)
	}
	return b, nil
}

// Update changes the quantity of a draft batch and reprices it. expected must
// be the version the caller last read.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, expected int64) (domain.Batch, error) {
	if err := checkQuantity(in.Quantity); err != nil {
		return domain.Batch{}, err
	}
	b, err := s.writable(ctx, id, expected)
	if err != nil {
		return domain.Batch{}, err
	}
	tech, err := s.loadTechnology(ctx, b.PartID)
	if err != nil {
		return domain.Batch{}, err
	}
	_, bd, err := tech.price(in.Quantity)
	if err != nil {
		return domain.Batch{}, err
	}

	b.Quantity = in.Quantity
	b.Costs = bd.Costs()
	out, err := s.store.UpdateBatch(ctx, b, expected, s.stamp(ctx))
	if err != nil {
		return domain.Batch{}, err
	}
	if err := outcomeErr(out, "batch", id, expected); err != nil {
		return domain.Batch{}, err
	}
	return s.store.GetBatch(ctx, id)
}

// Recalculate reprices a draft batch from current inputs. Unchanged costs are
// not written, so repeated calls leave the row untouched.
func (s *Service) Recalculate(ctx context.Context, id int64) (domain.Batch, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if b.IsFrozen {
		return domain.Batch{}, fmt.Errorf("batch %d: %w", id, domain.ErrFrozen)
	}
	tech, err := s.loadTechnology(ctx, b.PartID)
	if err != nil {
		return domain.Batch{}, err
	}

	var written bool
	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		ok, err := s.recalculate(ctx, q, tech, id)
		written = ok
		return err
	})
	if err != nil {
		return domain.Batch{}, err
	}
	if !written {
		return b, nil
	}
	return s.store.GetBatch(ctx, id)
}

// RecalculatePart reprices every draft batch of a part and returns how many
// rows changed. Frozen batches are left alone.
func (s *Service) RecalculatePart(ctx context.Context, partID int64) (int, error) {
	tech, err := s.loadTechnology(ctx, partID)
	if err != nil {
		return 0, err
	}

	written := 0
	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		batches, err := q.ListBatchesByPart(ctx, partID)
		if err != nil {
			return err
		}
		n, err := s.recalculateAll(ctx, q, tech, batches)
		written = n
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Debug("part recalculated", zap.Int64("part_id", partID), zap.Int("batches_written", written))
	return written, nil
}

func (s *Service) recalculateAll(ctx context.Context, q *store.Queries, tech technology, batches []domain.Batch) (int, error) {
	written := 0
	for _, b := range batches {
		if b.IsFrozen {
			continue
		}
		ok, err := s.recalculate(ctx, q, tech, b.ID)
		if err != nil {
			return 0, err
		}
		if ok {
			written++
		}
	}
	return written, nil
}

// recalculate must run inside a transaction: the batch is re-read there so
// the version written against is the current one.
func (s *Service) recalculate(ctx context.Context, q *store.Queries, tech technology, id int64) (bool, error) {
	b, err := q.GetBatch(ctx, id)
	if err != nil {
		return false, err
	}
	if b.IsFrozen {
		return false, fmt.Errorf("batch %d: %w", id, domain.ErrFrozen)
	}
	_, bd, err := tech.price(b.Quantity)
	if err != nil {
		return false, err
	}
	costs := bd.Costs()
	if costs.Equal(b.Costs) {
		metrics.Recalculations.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	b.Costs = costs
	out, err := q.UpdateBatch(ctx, b, b.Version, s.stamp(ctx))
	if err != nil {
		return false, err
	}
	if err := outcomeErr(out, "batch", id, b.Version); err != nil {
		return false, err
	}
	metrics.Recalculations.WithLabelValues("written").Inc()
	return true, nil
}

// Delete soft-deletes a batch. Frozen batches may be deleted; the row and its
// snapshot are kept.
func (s *Service) Delete(ctx context.Context, id, expected int64) error {
	out, err := s.store.SoftDeleteBatch(ctx, id, expected, s.stamp(ctx))
	if err != nil {
		return err
	}
	if err := outcomeErr(out, "batch", id, expected); err != nil {
		return err
	}
	s.log.Info("batch deleted", zap.Int64("batch_id", id))
	return nil
}

// Freeze prices the batch one final time and stores the result as an
// immutable snapshot. Flag, snapshot and stamps are written in one
// transaction.
func (s *Service) Freeze(ctx context.Context, id, expected int64) (domain.Batch, error) {
	b, err := s.writable(ctx, id, expected)
	if err != nil {
		return domain.Batch{}, err
	}
	// Set members share one frozen_at and are frozen through their set.
	if b.BatchSetID != nil {
		return domain.Batch{}, domain.NewValidationError(domain.EntityRef("batch", id), "batch_set_id",
			fmt.Sprintf("is frozen through batch set %d", *b.BatchSetID))
	}
	tech, err := s.loadTechnology(ctx, b.PartID)
	if err != nil {
		return domain.Batch{}, err
	}
	hash, err := tech.hash()
	if err != nil {
		return domain.Batch{}, err
	}

	st := s.stamp(ctx)
	costs, raw, err := freezeDocument(tech, b, hash, st)
	if err != nil {
		return domain.Batch{}, err
	}

	err = s.store.WithTx(ctx, func(q *store.Queries) error {
		out, err := q.FreezeBatch(ctx, id, expected, costs, raw, st.At, st.By)
		if err != nil {
			return err
		}
		return outcomeErr(out, "batch", id, expected)
	})
	if err != nil {
		return domain.Batch{}, err
	}

	metrics.Freezes.WithLabelValues("batch").Inc()
	s.log.Info("batch frozen",
		zap.Int64("batch_id", id),
		zap.String("unit_cost", costs.UnitCost.String()),
		zap.String("geometry_hash", hash),
	)
	return s.store.GetBatch(ctx, id)
}

// freezeDocument validates the inputs of b and builds its snapshot.
func freezeDocument(tech technology, b domain.Batch, hash string, st audit.Stamp) (domain.Costs, []byte, error) {
	in := tech.input(b.Quantity)
	if err := pricing.ValidateForFreeze(in); err != nil {
		return domain.Costs{}, nil, err
	}
	in, bd, err := tech.price(b.Quantity)
	if err != nil {
		return domain.Costs{}, nil, err
	}
	raw, err := snapshot.Encode(snapshot.Build(b, in, bd, hash, st.At, st.By))
	if err != nil {
		return domain.Costs{}, nil, err
	}
	return bd.Costs(), raw, nil
}

// Clone creates a new draft batch for the same part and quantity, priced from
// current inputs. Snapshot and freeze stamps are never copied.
func (s *Service) Clone(ctx context.Context, id int64) (domain.Batch, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	clone, err := s.Create(ctx, src.PartID, src.Quantity)
	if err != nil {
		return domain.Batch{}, err
	}
	s.log.Info("batch cloned", zap.Int64("source_id", id), zap.Int64("batch_id", clone.ID))
	return clone, nil
}

// EffectiveCosts returns the frozen price of a frozen batch, flagged when the
// part's geometry changed since, or the live price of a draft batch.
func (s *Service) EffectiveCosts(ctx context.Context, id int64) (snapshot.EffectiveCosts, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return snapshot.EffectiveCosts{}, err
	}
	g, err := s.loadGeometry(ctx, b.PartID)
	if err != nil {
		return snapshot.EffectiveCosts{}, err
	}
	if b.IsFrozen {
		current, err := g.hash()
		if err != nil {
			return snapshot.EffectiveCosts{}, err
		}
		return s.frozenCosts(b, current)
	}
	tech, err := s.resolve(ctx, g)
	if err != nil {
		return snapshot.EffectiveCosts{}, err
	}
	return liveCosts(tech, b)
}

func (s *Service) frozenCosts(b domain.Batch, currentHash string) (snapshot.EffectiveCosts, error) {
	doc, err := snapshot.Decode(b.SnapshotData)
	if err != nil {
		return snapshot.EffectiveCosts{}, fmt.Errorf("batch %d: %w", b.ID, err)
	}
	ec := snapshot.Frozen(b, doc, currentHash)
	if ec.GeometryChanged() {
		metrics.GeometryDrift.Inc()
		s.log.Warn("frozen batch geometry changed",
			zap.Int64("batch_id", b.ID),
			zap.String("snapshot_hash", ec.SnapshotHash),
			zap.String("current_hash", ec.CurrentHash),
		)
	}
	return ec, nil
}

func liveCosts(tech technology, b domain.Batch) (snapshot.EffectiveCosts, error) {
	_, bd, err := tech.price(b.Quantity)
	if err != nil {
		return snapshot.EffectiveCosts{}, err
	}
	return snapshot.Live(b, bd.Costs()), nil
}

// writable loads a batch that the caller may still change at version expected.
func (s *Service) writable(ctx context.Context, id, expected int64) (domain.Batch, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if b.IsFrozen {
		return domain.Batch{}, fmt.Errorf("batch %d: %w", id, domain.ErrFrozen)
	}
	if b.Version != expected {
		metrics.Conflict("batch")
		return domain.Batch{}, &domain.ConflictError{Entity: "batch", ID: id, Expected: expected, Actual: b.Version}
	}
	return b, nil
}

func (s *Service) stamp(ctx context.Context) audit.Stamp {
	return audit.NewStamp(ctx, s.now())
}

// outcomeErr converts a store outcome and counts conflicts.
func outcomeErr(out store.Outcome, entity string, id, expected int64) error {
	if out.Result == store.Conflict {
		metrics.Conflict(entity)
	}
	return out.Err(entity, id, expected)
}
