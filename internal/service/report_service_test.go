package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReport_Membership(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	svc := NewReportService(f.mem.Repositories(), nil, f.caches, f.opts)
	ctx := context.Background()

	tests := []struct {
		kind domain.ReportKind
		want []string
	}{
		{domain.ReportBuyMore, []string{"SKU-BUY"}},
		{domain.ReportBuyLess, []string{"SKU-LESS"}},
		{domain.ReportDeadStock, []string{"SKU-DEAD"}},
		{domain.ReportBufferBreach, []string{"SKU-BUY"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			rows, err := svc.Report(ctx, testStore, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, itemIDs(rows))
			assert.NotContains(t, itemIDs(rows), "SKU-GONE")
		})
	}
}

func TestReport_SkipsUnregisteredSKUs(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)
	f.mem.RemoveSKU(testStore, "SKU-LESS")

	rows, err := NewReportService(f.mem.Repositories(), nil, f.caches, f.opts).Report(context.Background(), testStore, domain.ReportBuyLess)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReport_UnknownKind(t *testing.T) {
	f := newFixture(t)
	_, err := NewReportService(f.mem.Repositories(), nil, f.caches, f.opts).Report(context.Background(), testStore, "overstock")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)

	s, err := NewReportService(f.mem.Repositories(), nil, f.caches, f.opts).Summary(context.Background(), testStore)
	require.NoError(t, err)

	assert.Equal(t, 4, s.TotalSKUs)
	assert.Equal(t, 53.0, s.TotalUnits)
	assert.True(t, s.InventoryValue.Equal(decimal.NewFromInt(470)), "inventory value = %s", s.InventoryValue)
	assert.True(t, s.PotentialRevenue.Equal(decimal.NewFromInt(940)), "revenue = %s", s.PotentialRevenue)
	assert.True(t, s.PotentialProfit.Equal(decimal.NewFromInt(470)), "profit = %s", s.PotentialProfit)
	assert.InDelta(t, 50.0, s.AverageMarginPct, 1e-9)

	assert.Equal(t, domain.StockHealthBuckets{OutOfStock: 1, Critical: 1, Healthy: 2}, s.StockHealth)
	require.Len(t, s.CriticalAlerts, 2)
	assert.Contains(t, s.CriticalAlerts[0], "Product SKU-GONE")
	assert.Contains(t, s.CriticalAlerts[1], "Product SKU-BUY")

	require.Len(t, s.TopCategories, 3)
	assert.Equal(t, "Skincare", s.TopCategories[0].Category)
	assert.Equal(t, 2, s.TopCategories[0].SKUs)
	assert.True(t, s.TopCategories[0].Value.Equal(decimal.NewFromInt(410)))
	assert.Equal(t, "Haircare", s.TopCategories[1].Category)

	assert.True(t, s.DeadStockValue.Equal(decimal.NewFromInt(60)), "dead stock = %s", s.DeadStockValue)
	assert.True(t, s.BlockedCapital.Equal(decimal.NewFromInt(400)), "blocked = %s", s.BlockedCapital)
	assert.Equal(t, 3, s.OpenRecommendation)
}

func TestExportWorkbook(t *testing.T) {
	f := newFixture(t)
	f.seedWorkedExamples()
	f.generate(t, false)

	dir := t.TempDir()
	objects, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	res, err := NewReportService(f.mem.Repositories(), objects, f.caches, f.opts).ExportWorkbook(context.Background(), testStore)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Rows)
	assert.Positive(t, res.Size)

	wb, err := excelize.OpenFile(filepath.Join(dir, res.Key))
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, []string{"buy_more", "buy_less", "dead_stock", "buffer_breach"}, wb.GetSheetList())

	rows, err := wb.GetRows("buy_more")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "SKU", rows[0][0])
	assert.Equal(t, "SKU-BUY", rows[1][0])
	assert.Equal(t, "5", rows[1][11])
}
