package batch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/metrics"
	"github.com/Simplici0/batchcost/internal/snapshot"
	"github.com/Simplici0/batchcost/internal/store"
)

// SetService manages batch sets: named, ordered groups of batches of one part
// that are frozen, recalculated and cloned as a unit.
type SetService struct {
	svc *Service
}

func NewSetService(batches *Service) *SetService {
	return &SetService{svc: batches}
}

// Set is a batch set with its live members in position order.
type Set struct {
	domain.BatchSet
	Batches []domain.Batch `json:"batches"`
}

// SetCosts are the effective costs of every member of a set.
type SetCosts struct {
	BatchSetID   int64                     `json:"batch_set_id"`
	Frozen       bool                      `json:"frozen"`
	Batches      []snapshot.EffectiveCosts `json:"batches"`
	Warnings     []string                  `json:"warnings"`
	SnapshotHash string                    `json:"snapshot_geometry_hash,omitempty"`
	CurrentHash  string                    `json:"current_geometry_hash,omitempty"`
}

// Create opens a new draft set for a part. A part has at most one draft set.
func (s *SetService) Create(ctx context.Context, partID int64, name string) (Set, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Set{}, domain.NewValidationError("batch set", "name", "is required")
	}
	if _, err := s.svc.loadGeometry(ctx, partID); err != nil {
		return Set{}, err
	}

	id, err := s.svc.store.InsertBatchSet(ctx, domain.BatchSet{
		PartID: partID,
		Name:   name,
		Status: domain.BatchSetDraft,
		Audit:  s.svc.stamp(ctx).Created(),
	})
	if err != nil {
		return Set{}, err
	}
	s.svc.log.Info("batch set created", zap.Int64("batch_set_id", id), zap.Int64("part_id", partID))
	return s.Get(ctx, id)
}

// Get returns a live set with its members.
func (s *SetService) Get(ctx context.Context, id int64) (Set, error) {
	bs, err := s.liveSet(ctx, id)
	if err != nil {
		return Set{}, err
	}
	members, err := s.svc.store.ListBatchesBySet(ctx, id)
	if err != nil {
		return Set{}, err
	}
	return Set{BatchSet: bs, Batches: members}, nil
}

// AddBatch prices a new batch of quantity units and appends it to a draft set.
func (s *SetService) AddBatch(ctx context.Context, setID int64, quantity int, expected int64) (domain.Batch, error) {
	if err := checkQuantity(quantity); err != nil {
		return domain.Batch{}, err
	}
	bs, err := s.draftSet(ctx, setID, expected)
	if err != nil {
		return domain.Batch{}, err
	}
	tech, err := s.svc.loadTechnology(ctx, bs.PartID)
	if err != nil {
		return domain.Batch{}, err
	}
	_, bd, err := tech.price(quantity)
	if err != nil {
		return domain.Batch{}, err
	}

	st := s.svc.stamp(ctx)
	var id int64
	err = s.svc.store.WithTx(ctx, func(q *store.Queries) error {
		out, err := q.TouchBatchSet(ctx, setID, expected, st)
		if err != nil {
			return err
		}
		if err := outcomeErr(out, "batch set", setID, expected); err != nil {
			return err
		}
		pos, err := q.NextBatchPosition(ctx, setID)
		if err != nil {
			return err
		}
		id, err = q.InsertBatch(ctx, domain.Batch{
			PartID:     bs.PartID,
			BatchSetID: &setID,
			Position:   pos,
			Quantity:   quantity,
			Costs:      bd.Costs(),
			Audit:      st.Created(),
		})
		return err
	})
	if err != nil {
		return domain.Batch{}, err
	}
	return s.svc.store.GetBatch(ctx, id)
}

// RemoveBatch soft-deletes a member of a draft set.
func (s *SetService) RemoveBatch(ctx context.Context, setID, batchID, expected int64) error {
	if _, err := s.draftSet(ctx, setID, expected); err != nil {
		return err
	}
	b, err := s.svc.Get(ctx, batchID)
	if err != nil {
		return err
	}
	if b.BatchSetID == nil || *b.BatchSetID != setID {
		return fmt.Errorf("batch %d in batch set %d: %w", batchID, setID, domain.ErrNotFound)
	}

	st := s.svc.stamp(ctx)
	return s.svc.store.WithTx(ctx, func(q *store.Queries) error {
		out, err := q.TouchBatchSet(ctx, setID, expected, st)
		if err != nil {
			return err
		}
		if err := outcomeErr(out, "batch set", setID, expected); err != nil {
			return err
		}
		out, err = q.SoftDeleteBatch(ctx, batchID, b.Version, st)
		if err != nil {
			return err
		}
		return outcomeErr(out, "batch", batchID, b.Version)
	})
}

// Freeze freezes every member and the set itself in one transaction with a
// single frozen_at. Any failure leaves the set and all members in draft.
func (s *SetService) Freeze(ctx context.Context, setID, expected int64) (Set, error) {
	bs, err := s.draftSet(ctx, setID, expected)
	if err != nil {
		return Set{}, err
	}
	members, err := s.svc.store.ListBatchesBySet(ctx, setID)
	if err != nil {
		return Set{}, err
	}
	if len(members) == 0 {
		return Set{}, domain.NewValidationError(domain.EntityRef("batch set", setID), "batches", "must contain at least one batch")
	}
	for _, m := range members {
		if m.IsFrozen {
			return Set{}, fmt.Errorf("batch %d in batch set %d: %w", m.ID, setID, domain.ErrFrozen)
		}
	}

	tech, err := s.svc.loadTechnology(ctx, bs.PartID)
	if err != nil {
		return Set{}, err
	}
	hash, err := tech.hash()
	if err != nil {
		return Set{}, err
	}

	st := s.svc.stamp(ctx)
	type frozenMember struct {
		batch domain.Batch
		costs domain.Costs
		raw   []byte
	}
	frozen := make([]frozenMember, 0, len(members))
	entries := make([]snapshot.SetEntry, 0, len(members))
	for _, m := range members {
		costs, raw, err := freezeDocument(tech, m, hash, st)
		if err != nil {
			return Set{}, err
		}
		frozen = append(frozen, frozenMember{batch: m, costs: costs, raw: raw})
		entries = append(entries, snapshot.SetEntry{BatchID: m.ID, Quantity: m.Quantity, Costs: costs})
	}
	setRaw, err := snapshot.EncodeSet(snapshot.SetDocument{
		FrozenAt:     st.At,
		FrozenBy:     st.By,
		GeometryHash: hash,
		Batches:      entries,
		Metadata:     snapshot.SetMeta{PartID: bs.PartID, SetID: setID, Name: bs.Name},
	})
	if err != nil {
		return Set{}, err
	}

	err = s.svc.store.WithTx(ctx, func(q *store.Queries) error {
		for _, fm := range frozen {
			out, err := q.FreezeBatch(ctx, fm.batch.ID, fm.batch.Version, fm.costs, fm.raw, st.At, st.By)
			if err != nil {
				return err
			}
			if err := outcomeErr(out, "batch", fm.batch.ID, fm.batch.Version); err != nil {
				return err
			}
		}
		out, err := q.FreezeBatchSet(ctx, setID, expected, setRaw, st.At, st.By)
		if err != nil {
			return err
		}
		return outcomeErr(out, "batch set", setID, expected)
	})
	if err != nil {
		s.svc.log.Warn("batch set freeze rolled back", zap.Int64("batch_set_id", setID), zap.Error(err))
		return Set{}, err
	}

	metrics.Freezes.WithLabelValues("batch_set").Inc()
	s.svc.log.Info("batch set frozen", zap.Int64("batch_set_id", setID), zap.Int("batches", len(members)), zap.String("geometry_hash", hash))
	return s.Get(ctx, setID)
}

// Recalculate reprices the draft members of a set. It does nothing for a
// frozen set.
func (s *SetService) Recalculate(ctx context.Context, setID int64) (int, error) {
	bs, err := s.liveSet(ctx, setID)
	if err != nil {
		return 0, err
	}
	if bs.Frozen() {
		return 0, nil
	}
	tech, err := s.svc.loadTechnology(ctx, bs.PartID)
	if err != nil {
		return 0, err
	}

	written := 0
	err = s.svc.store.WithTx(ctx, func(q *store.Queries) error {
		members, err := q.ListBatchesBySet(ctx, setID)
		if err != nil {
			return err
		}
		n, err := s.svc.recalculateAll(ctx, q, tech, members)
		written = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Clone copies a set into a new draft set of the same part. Members are
// repriced from current inputs; nothing frozen is carried over.
func (s *SetService) Clone(ctx context.Context, setID int64) (Set, error) {
	src, err := s.Get(ctx, setID)
	if err != nil {
		return Set{}, err
	}
	tech, err := s.svc.loadTechnology(ctx, src.PartID)
	if err != nil {
		return Set{}, err
	}

	st := s.svc.stamp(ctx)
	clones := make([]domain.Batch, 0, len(src.Batches))
	for _, m := range src.Batches {
		_, bd, err := tech.price(m.Quantity)
		if err != nil {
			return Set{}, err
		}
		clones = append(clones, domain.Batch{
			PartID:   src.PartID,
			Position: m.Position,
			Quantity: m.Quantity,
			Costs:    bd.Costs(),
			Audit:    st.Created(),
		})
	}

	var id int64
	err = s.svc.store.WithTx(ctx, func(q *store.Queries) error {
		id, err = q.InsertBatchSet(ctx, domain.BatchSet{
			PartID: src.PartID,
			Name:   src.Name + " (copy)",
			Status: domain.BatchSetDraft,
			Audit:  st.Created(),
		})
		if err != nil {
			return err
		}
		for _, c := range clones {
			c.BatchSetID = &id
			if _, err := q.InsertBatch(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Set{}, err
	}
	s.svc.log.Info("batch set cloned", zap.Int64("source_id", setID), zap.Int64("batch_set_id", id))
	return s.Get(ctx, id)
}

// Delete soft-deletes a set and its members. Snapshots stay on the rows.
func (s *SetService) Delete(ctx context.Context, setID, expected int64) error {
	st := s.svc.stamp(ctx)
	return s.svc.store.WithTx(ctx, func(q *store.Queries) error {
		out, err := q.SoftDeleteBatchSet(ctx, setID, expected, st)
		if err != nil {
			return err
		}
		if err := outcomeErr(out, "batch set", setID, expected); err != nil {
			return err
		}
		_, err = q.SoftDeleteBatchesInSet(ctx, setID, st)
		return err
	})
}

// EffectiveCosts returns the snapshot costs of a frozen set, flagged when the
// part's geometry changed since, or the effective costs of each member of a
// draft set.
func (s *SetService) EffectiveCosts(ctx context.Context, setID int64) (SetCosts, error) {
	set, err := s.Get(ctx, setID)
	if err != nil {
		return SetCosts{}, err
	}
	g, err := s.svc.loadGeometry(ctx, set.PartID)
	if err != nil {
		return SetCosts{}, err
	}
	current, err := g.hash()
	if err != nil {
		return SetCosts{}, err
	}

	out := SetCosts{
		BatchSetID: setID,
		Frozen:     set.Frozen(),
		Batches:    make([]snapshot.EffectiveCosts, 0, len(set.Batches)),
		Warnings:   []string{},
	}

	if set.Frozen() {
		doc, err := snapshot.DecodeSet(set.SnapshotData)
		if err != nil {
			return SetCosts{}, fmt.Errorf("batch set %d: %w", setID, err)
		}
		for _, e := range doc.Batches {
			ec := snapshot.EffectiveCosts{
				BatchID:  e.BatchID,
				Quantity: e.Quantity,
				Frozen:   true,
				Costs:    e.Costs,
				Warnings: []string{},
			}
			out.Batches = append(out.Batches, ec)
		}
		if doc.GeometryHash != current {
			metrics.GeometryDrift.Inc()
			out.Warnings = append(out.Warnings, snapshot.WarningGeometryChanged)
			out.SnapshotHash = doc.GeometryHash
			out.CurrentHash = current
			for i := range out.Batches {
				out.Batches[i].Warnings = append(out.Batches[i].Warnings, snapshot.WarningGeometryChanged)
			}
			s.svc.log.Warn("frozen batch set geometry changed", zap.Int64("batch_set_id", setID))
		}
		return out, nil
	}

	var tech *technology
	for _, b := range set.Batches {
		if b.IsFrozen {
			ec, err := s.svc.frozenCosts(b, current)
			if err != nil {
				return SetCosts{}, err
			}
			out.Batches = append(out.Batches, ec)
			continue
		}
		if tech == nil {
			t, err := s.svc.resolve(ctx, g)
			if err != nil {
				return SetCosts{}, err
			}
			tech = &t
		}
		ec, err := liveCosts(*tech, b)
		if err != nil {
			return SetCosts{}, err
		}
		out.Batches = append(out.Batches, ec)
	}
	return out, nil
}

func (s *SetService) liveSet(ctx context.Context, id int64) (domain.BatchSet, error) {
	bs, err := s.svc.store.GetBatchSet(ctx, id)
	if err != nil {
		return domain.BatchSet{}, err
	}
	if bs.Deleted() {
		return domain.BatchSet{}, fmt.Errorf("batch set %d: %w", id, domain.ErrNotFound)
	}
	return bs, nil
}

// draftSet loads a set whose membership may still change at version expected.
func (s *SetService) draftSet(ctx context.Context, id, expected int64) (domain.BatchSet, error) {
	bs, err := s.liveSet(ctx, id)
	if err != nil {
		return domain.BatchSet{}, err
	}
	if bs.Frozen() {
		return domain.BatchSet{}, fmt.Errorf("batch set %d: %w", id, domain.ErrFrozen)
	}
	if bs.Version != expected {
		metrics.Conflict("batch set")
		return domain.BatchSet{}, &domain.ConflictError{Entity: "batch set", ID: id, Expected: expected, Actual: bs.Version}
	}
	return bs, nil
}
