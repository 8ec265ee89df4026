// Package technology edits the inputs batches are priced from: the catalog of
// materials and machines and the stock, operations and features of parts.
// Every committed change reprices the draft batches it affects.
package technology

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/batchcost/internal/audit"
	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/metrics"
	"github.com/Simplici0/batchcost/internal/store"
)

// Recalculator reprices the draft batches of a part.
type Recalculator interface {
	RecalculatePart(ctx context.Context, partID int64) (int, error)
}

// Invalidator drops cached catalog entries after they change.
type Invalidator interface {
	InvalidateMaterial(id int64)
	InvalidateMachine(id int64)
	InvalidateAll()
}

type Service struct {
	store  *store.Store
	cache  Invalidator
	recalc Recalculator
	log    *zap.Logger
	now    func() time.Time
}

func NewService(st *store.Store, cache Invalidator, recalc Recalculator, log *zap.Logger) *Service {
	return &Service{
		store:  st,
		cache:  cache,
		recalc: recalc,
		log:    log,
		now:    time.Now,
	}
}

func (s *Service) stamp(ctx context.Context) audit.Stamp {
	return audit.NewStamp(ctx, s.now())
}

// reprice recalculates the draft batches of parts after a committed change.
// A part whose technology cannot be priced yet keeps its previous costs.
func (s *Service) reprice(ctx context.Context, partIDs ...int64) {
	for _, id := range partIDs {
		n, err := s.recalc.RecalculatePart(ctx, id)
		if err != nil {
			s.log.Warn("recalculate part", zap.Int64("part_id", id), zap.Error(err))
			continue
		}
		if n > 0 {
			s.log.Info("batches repriced", zap.Int64("part_id", id), zap.Int("batches", n))
		}
	}
}

func applied(out store.Outcome, entity string, id, expected int64) error {
	if out.Result == store.Conflict {
		metrics.Conflict(entity)
	}
	return out.Err(entity, id, expected)
}

func live[T interface{ Deleted() bool }](v T, entity string, id int64) error {
	if v.Deleted() {
		return fmt.Errorf("%s %d: %w", entity, id, domain.ErrNotFound)
	}
	return nil
}

// reference checks that a row named by an input field exists and is live.
func reference[T interface{ Deleted() bool }](v T, err error, entity, field string) error {
	if errors.Is(err, domain.ErrNotFound) || (err == nil && v.Deleted()) {
		return domain.NewValidationError(entity, field, "refers to an unknown record")
	}
	return err
}
