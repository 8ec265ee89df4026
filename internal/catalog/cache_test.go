package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Simplici0/batchcost/internal/domain"
)

type countingLoader struct {
	mu           sync.Mutex
	price        decimal.Decimal
	materialHits atomic.Int64
	machineHits  atomic.Int64
}

func (l *countingLoader) GetMaterial(_ context.Context, id int64) (domain.Material, error) {
	l.materialHits.Add(1)
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Material{ID: id, Density: 7.85, PricePerKg: l.price}, nil
}

func (l *countingLoader) GetMachine(_ context.Context, id int64) (domain.Machine, error) {
	l.machineHits.Add(1)
	if id == 404 {
		return domain.Machine{}, domain.ErrNotFound
	}
	return domain.Machine{ID: id, HourlyRate: decimal.NewFromInt(600)}, nil
}

func (l *countingLoader) setPrice(p string) {
	l.mu.Lock()
	l.price = decimal.RequireFromString(p)
	l.mu.Unlock()
}

func TestCacheServesRepeatedReadsFromMemory(t *testing.T) {
	loader := &countingLoader{price: decimal.NewFromInt(3)}
	cache := New(loader)

	for i := 0; i < 5; i++ {
		m, err := cache.Material(context.Background(), 1)
		require.NoError(t, err)
		assert.True(t, m.PricePerKg.Equal(decimal.NewFromInt(3)))
	}

	assert.Equal(t, int64(1), loader.materialHits.Load())
	assert.Equal(t, Stats{Hits: 4, Misses: 1}, cache.Stats())
}

func TestInvalidateMaterialReloadsFreshValue(t *testing.T) {
	loader := &countingLoader{price: decimal.NewFromInt(3)}
	cache := New(loader)
	ctx := context.Background()

	_, err := cache.Material(ctx, 1)
	require.NoError(t, err)

	loader.setPrice("4.5")
	stale, err := cache.Material(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stale.PricePerKg.Equal(decimal.NewFromInt(3)), "served from cache until invalidated")

	cache.InvalidateMaterial(1)
	fresh, err := cache.Material(ctx, 1)
	require.NoError(t, err)
	assert.True(t, fresh.PricePerKg.Equal(decimal.RequireFromString("4.5")))
}

func TestCacheTTLExpiresEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	loader := &countingLoader{}
	cache := New(loader, WithTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := cache.Machine(ctx, 7)
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = cache.Machine(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loader.machineHits.Load())

	now = now.Add(time.Minute)
	_, err = cache.Machine(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loader.machineHits.Load())
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	loader := &countingLoader{}
	cache := New(loader)

	_, err := cache.Machine(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = cache.Machine(context.Background(), 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int64(2), loader.machineHits.Load())
}

func TestCacheConcurrentReads(t *testing.T) {
	loader := &countingLoader{price: decimal.NewFromInt(2)}
	cache := New(loader)

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			_, err := cache.Material(context.Background(), 9)
			return err
		})
		if i%8 == 0 {
			cache.InvalidateAll()
		}
	}
	require.NoError(t, g.Wait())

	m, err := cache.Material(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), m.ID)
}
