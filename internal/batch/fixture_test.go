package batch

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Simplici0/batchcost/internal/audit"
	"github.com/Simplici0/batchcost/internal/catalog"
	"github.com/Simplici0/batchcost/internal/db"
	"github.com/Simplici0/batchcost/internal/domain"
	"github.com/Simplici0/batchcost/internal/migrations"
	"github.com/Simplici0/batchcost/internal/store"
)

var frozenClock = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db    *sql.DB
	store *store.Store
	cache *catalog.Cache
	svc   *Service
	sets  *SetService

	partID     int64
	materialID int64
	machineID  int64
	opID       int64
}

// newFixture builds a plate part of 100×100×10 mm aluminium (2.5 g/cm³,
// 10/kg) with one milling operation: 30 min setup, 2 min run, 600/h.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, migrations.Up(database))

	st := store.New(database)
	cache := catalog.New(st)
	svc := NewService(st, cache, zaptest.NewLogger(t), WithClock(func() time.Time { return frozenClock }))
	f := &fixture{db: database, store: st, cache: cache, svc: svc, sets: NewSetService(svc)}

	ctx := context.Background()
	a := audit.Stamp{By: "seed", At: frozenClock}.Created()

	groupID, err := st.InsertMaterialGroup(ctx, domain.MaterialGroup{Name: "Aluminium", Density: 2.5, Audit: a})
	require.NoError(t, err)
	f.materialID, err = st.InsertMaterial(ctx, domain.Material{GroupID: groupID, Name: "AW-6082", PricePerKg: decimal.NewFromInt(10), Audit: a})
	require.NoError(t, err)
	f.machineID, err = st.InsertMachine(ctx, domain.Machine{Name: "DMU 50", HourlyRate: decimal.NewFromInt(600), Audit: a})
	require.NoError(t, err)
	f.partID, err = st.InsertPart(ctx, domain.Part{
		PartNumber: "BR-7",
		Name:       "Bracket",
		Stock:      domain.Plate{Width: 100, Thickness: 10, Length: 100},
		MaterialID: f.materialID,
		Audit:      a,
	})
	require.NoError(t, err)
	f.opID, err = st.InsertOperation(ctx, domain.Operation{
		PartID:       f.partID,
		Seq:          10,
		Type:         domain.OpMilling,
		MachineID:    &f.machineID,
		SetupTimeMin: 30,
		RunTimeMin:   2,
		Audit:        a,
	})
	require.NoError(t, err)
	return f
}

func userCtx() context.Context {
	return audit.WithPrincipal(context.Background(), audit.Principal{ID: "estimator", Role: "engineer"})
}

func (f *fixture) setMaterialPrice(t *testing.T, price string) {
	t.Helper()
	ctx := context.Background()
	m, err := f.store.GetMaterial(ctx, f.materialID)
	require.NoError(t, err)
	m.PricePerKg = decimal.RequireFromString(price)
	out, err := f.store.UpdateMaterial(ctx, m, m.Version, audit.Stamp{By: "buyer", At: frozenClock})
	require.NoError(t, err)
	require.Equal(t, store.Applied, out.Result)
	f.cache.InvalidateMaterial(f.materialID)
}

func (f *fixture) setMachineRate(t *testing.T, rate string) {
	t.Helper()
	ctx := context.Background()
	m, err := f.store.GetMachine(ctx, f.machineID)
	require.NoError(t, err)
	m.HourlyRate = decimal.RequireFromString(rate)
	out, err := f.store.UpdateMachine(ctx, m, m.Version, audit.Stamp{By: "planner", At: frozenClock})
	require.NoError(t, err)
	require.Equal(t, store.Applied, out.Result)
	f.cache.InvalidateMachine(f.machineID)
}

func (f *fixture) setStock(t *testing.T, stock domain.Stock) {
	t.Helper()
	ctx := context.Background()
	p, err := f.store.GetPart(ctx, f.partID)
	require.NoError(t, err)
	p.Stock = stock
	out, err := f.store.UpdatePart(ctx, p, p.Version, audit.Stamp{By: "engineer", At: frozenClock})
	require.NoError(t, err)
	require.Equal(t, store.Applied, out.Result)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
