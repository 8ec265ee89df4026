package audit

import (
	"context"
	"time"

	"github.com/Simplici0/batchcost/internal/domain"
)

// SystemActor is recorded when no principal is attached to the context, for
// example during seeding.
const SystemActor = "system"

// Principal is the authenticated caller, supplied by the auth layer.
type Principal struct {
	ID   string
	Role string
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached to ctx.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.ID != ""
}

// Actor returns the id recorded in created_by/updated_by columns.
func Actor(ctx context.Context) string {
	if p, ok := FromContext(ctx); ok {
		return p.ID
	}
	return SystemActor
}

// Stamp describes who performs a write and when.
type Stamp struct {
	By string
	At time.Time
}

// NewStamp builds a Stamp for the principal in ctx.
func NewStamp(ctx context.Context, now time.Time) Stamp {
	return Stamp{By: Actor(ctx), At: now.UTC()}
}

// Created fills the audit fields of a new row. New rows start at version 0.
func (s Stamp) Created() domain.Audit {
	return domain.Audit{
		CreatedAt: s.At,
		UpdatedAt: s.At,
		CreatedBy: s.By,
		UpdatedBy: s.By,
		Version:   0,
	}
}
