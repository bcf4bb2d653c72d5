package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/cache"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/events"
	"github.com/andresuchdata/autopo-engine/internal/reasoning"
	"github.com/andresuchdata/autopo-engine/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testStore int64 = 1

var testNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNarrator struct {
	mock.Mock
}

func (m *mockNarrator) Narrate(ctx context.Context, trace domain.NumericTrace) (string, error) {
	args := m.Called(ctx, trace)
	return args.String(0), args.Error(1)
}

// quantityNarrator answers with a sentence built only from trace numbers.
type quantityNarrator struct{}

func (quantityNarrator) Narrate(_ context.Context, trace domain.NumericTrace) (string, error) {
	return fmt.Sprintf("Order %d units.", trace.RecommendedOrderQty), nil
}

type mockCart struct {
	mock.Mock
}

func (m *mockCart) Enqueue(ctx context.Context, item events.CartItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *mockCart) Close() {
	m.Called()
}

type fixture struct {
	mem    *memory.Store
	clock  *testClock
	caches *cache.Caches
	opts   Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: testNow}
	opts := DefaultOptions()
	opts.Now = clock.Now
	opts.WorkerCount = 2
	return &fixture{
		mem:    memory.NewStore(),
		clock:  clock,
		caches: cache.NewNoop(),
		opts:   opts,
	}
}

// seedSKU registers a SKU with 90 days of history and a steady daily sale
// over the trailing salesDays.
func (f *fixture) seedSKU(itemID, category string, onHand float64, cost int64, dailySales float64, salesDays int) {
	firstSeen := testNow.AddDate(0, 0, -90)
	f.mem.PutSKU(domain.RegistryEntry{
		StoreID:     testStore,
		ItemID:      itemID,
		ProductName: "Product " + itemID,
		Category:    category,
		OnHand:      onHand,
		CostPrice:   decimal.NewFromInt(cost),
		SellPrice:   decimal.NewFromInt(cost * 2),
		FirstSeenAt: &firstSeen,
	})
	for i := 0; i < salesDays; i++ {
		f.mem.PutLedgerDay(testStore, itemID, domain.LedgerDay{
			Date:         testNow.AddDate(0, 0, -i),
			UnitsSold:    dailySales,
			ClosingStock: onHand,
		})
	}
}

// seedWorkedExamples loads one SKU per decision path.
func (f *fixture) seedWorkedExamples() {
	f.seedSKU("SKU-BUY", "Skincare", 1, 10, 2, 30)
	f.seedSKU("SKU-DEAD", "Haircare", 12, 5, 0, 0)
	f.seedSKU("SKU-LESS", "Skincare", 40, 10, 1, 30)
	f.seedSKU("SKU-GONE", "Makeup", 0, 10, 0, 0)
}

func (f *fixture) recommendations(t *testing.T, narrator reasoning.Narrator) *RecommendationService {
	t.Helper()
	svc, err := NewRecommendationService(f.mem.Repositories(), narrator, f.caches, f.opts)
	require.NoError(t, err)
	return svc
}

func (f *fixture) generate(t *testing.T, force bool) *domain.GenerateResult {
	t.Helper()
	res, err := f.recommendations(t, nil).Generate(context.Background(), domain.GenerateRequest{
		StoreID:     testStore,
		ForceUpdate: force,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) current(t *testing.T) map[string]domain.Recommendation {
	t.Helper()
	rows, err := f.mem.ListCurrent(context.Background(), testStore)
	require.NoError(t, err)
	out := make(map[string]domain.Recommendation, len(rows))
	for _, rec := range rows {
		out[rec.ItemID] = rec
	}
	return out
}

func itemIDs(recs []domain.Recommendation) []string {
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ItemID
	}
	return ids
}
