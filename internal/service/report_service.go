package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/cache"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/pipeline/replenishment"
	"github.com/andresuchdata/autopo-engine/internal/repository"
	"github.com/andresuchdata/autopo-engine/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	criticalStockLevel = 10
	alertStockLevel    = 5
	maxCriticalAlerts  = 10
	maxTopCategories   = 5
)

type ReportService struct {
	store   repository.Store
	objects storage.ObjectStorage
	reports cache.ReportCache
	now     func() time.Time
}

func NewReportService(store repository.Store, objects storage.ObjectStorage, caches *cache.Caches, opts Options) *ReportService {
	if caches == nil {
		caches = cache.NewNoop()
	}
	return &ReportService{store: store, objects: objects, reports: caches.Reports, now: opts.clock()}
}

// Report returns the current rows of one decision report. SKUs that left the
// registry are not reported even when an old snapshot still exists.
func (s *ReportService) Report(ctx context.Context, storeID int64, kind domain.ReportKind) ([]domain.Recommendation, error) {
	if _, ok := domain.ParseReportKind(string(kind)); !ok {
		return nil, fmt.Errorf("%w: unknown report %q", domain.ErrInvalidInput, kind)
	}

	if rows, ok, err := s.reports.GetReport(ctx, storeID, kind); err != nil {
		log.Warn().Err(err).Int64("store_id", storeID).Str("report", string(kind)).Msg("report cache read failed")
	} else if ok {
		return rows, nil
	}

	current, err := s.registeredCurrent(ctx, storeID)
	if err != nil {
		return nil, err
	}
	rows := replenishment.FilterReport(kind, current)

	if err := s.reports.SetReport(ctx, storeID, kind, rows); err != nil {
		log.Warn().Err(err).Int64("store_id", storeID).Str("report", string(kind)).Msg("report cache write failed")
	}
	return rows, nil
}

// Summary values the store's registry and folds in the current snapshots.
func (s *ReportService) Summary(ctx context.Context, storeID int64) (*domain.InventorySummary, error) {
	if cached, ok, err := s.reports.GetSummary(ctx, storeID); err != nil {
		log.Warn().Err(err).Int64("store_id", storeID).Msg("summary cache read failed")
	} else if ok {
		return cached, nil
	}

	entries, err := s.store.Registry.ListSKUs(ctx, storeID, nil)
	if err != nil {
		return nil, err
	}
	current, err := s.store.Recommendations.ListCurrent(ctx, storeID)
	if err != nil {
		return nil, err
	}

	summary := summarize(storeID, entries, current)
	if err := s.reports.SetSummary(ctx, summary); err != nil {
		log.Warn().Err(err).Int64("store_id", storeID).Msg("summary cache write failed")
	}
	return summary, nil
}

func summarize(storeID int64, entries []domain.RegistryEntry, current []domain.Recommendation) *domain.InventorySummary {
	summary := &domain.InventorySummary{
		StoreID:          storeID,
		TotalSKUs:        len(entries),
		InventoryValue:   decimal.Zero,
		PotentialRevenue: decimal.Zero,
		PotentialProfit:  decimal.Zero,
		CriticalAlerts:   make([]string, 0),
		TopCategories:    make([]domain.CategoryValue, 0),
		DeadStockValue:   decimal.Zero,
		BlockedCapital:   decimal.Zero,
	}

	byCategory := make(map[string]*domain.CategoryValue)
	var marginSum float64
	var marginCount int
	alerts := make([]domain.RegistryEntry, 0)

	for _, e := range entries {
		stock := decimal.NewFromFloat(e.OnHand)
		value := stock.Mul(e.CostPrice)
		summary.TotalUnits += e.OnHand
		summary.InventoryValue = summary.InventoryValue.Add(value)
		summary.PotentialRevenue = summary.PotentialRevenue.Add(stock.Mul(e.SellPrice))

		if e.SellPrice.IsPositive() {
			margin, _ := e.SellPrice.Sub(e.CostPrice).Div(e.SellPrice).Mul(decimal.NewFromInt(100)).Float64()
			marginSum += margin
			marginCount++
		}

		switch {
		case e.OnHand <= 0:
			summary.StockHealth.OutOfStock++
		case e.OnHand <= criticalStockLevel:
			summary.StockHealth.Critical++
		default:
			summary.StockHealth.Healthy++
		}
		if e.OnHand <= alertStockLevel {
			alerts = append(alerts, e)
		}

		cat, ok := byCategory[e.Category]
		if !ok {
			cat = &domain.CategoryValue{Category: e.Category, Value: decimal.Zero}
			byCategory[e.Category] = cat
		}
		cat.SKUs++
		cat.Value = cat.Value.Add(value)
	}

	summary.PotentialProfit = summary.PotentialRevenue.Sub(summary.InventoryValue)
	if marginCount > 0 {
		summary.AverageMarginPct = marginSum / float64(marginCount)
	}

	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].OnHand < alerts[j].OnHand })
	for i, e := range alerts {
		if i == maxCriticalAlerts {
			break
		}
		summary.CriticalAlerts = append(summary.CriticalAlerts,
			fmt.Sprintf("%s (%s): stock %s", e.ProductName, e.Category, strconv.FormatFloat(e.OnHand, 'f', -1, 64)))
	}

	categories := make([]domain.CategoryValue, 0, len(byCategory))
	for _, c := range byCategory {
		categories = append(categories, *c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if cmp := categories[i].Value.Cmp(categories[j].Value); cmp != 0 {
			return cmp > 0
		}
		return categories[i].Category < categories[j].Category
	})
	if len(categories) > maxTopCategories {
		categories = categories[:maxTopCategories]
	}
	summary.TopCategories = categories

	registered := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		registered[e.ItemID] = struct{}{}
	}
	for _, rec := range current {
		if _, ok := registered[rec.ItemID]; !ok {
			continue
		}
		if rec.StockClass == domain.StockDead {
			summary.DeadStockValue = summary.DeadStockValue.Add(rec.ValueAtRisk)
		}
		if rec.StockClass == domain.StockActive {
			summary.BlockedCapital = summary.BlockedCapital.Add(rec.BlockedCapital)
		}
		if rec.FeedbackStatus == domain.FeedbackPending && rec.StockClass != domain.StockInactive {
			summary.OpenRecommendation++
		}
	}

	return summary
}

type workbookColumn struct {
	header string
	width  float64
	value  func(domain.Recommendation) interface{}
}

var workbookColumns = []workbookColumn{
	{"SKU", 18, func(r domain.Recommendation) interface{} { return r.ItemID }},
	{"Product", 36, func(r domain.Recommendation) interface{} { return r.ProductName }},
	{"Category", 20, func(r domain.Recommendation) interface{} { return r.Category }},
	{"Stock Class", 14, func(r domain.Recommendation) interface{} { return string(r.StockClass) }},
	{"Insight", 12, func(r domain.Recommendation) interface{} { return string(r.InsightCategory) }},
	{"Risk", 10, func(r domain.Recommendation) interface{} { return string(r.RiskState) }},
	{"On Hand", 10, func(r domain.Recommendation) interface{} { return r.CurrentStock }},
	{"Weighted ADS", 14, func(r domain.Recommendation) interface{} { return r.WeightedADS }},
	{"Days of Cover", 14, func(r domain.Recommendation) interface{} { return r.DaysOfCover }},
	{"Safety Stock", 12, func(r domain.Recommendation) interface{} { return r.GuardrailSafetyStock }},
	{"Reorder Point", 14, func(r domain.Recommendation) interface{} { return r.ReorderPoint }},
	{"Order Qty", 10, func(r domain.Recommendation) interface{} { return r.RecommendedOrderQty }},
	{"Blocked Capital", 16, func(r domain.Recommendation) interface{} { return r.BlockedCapital.StringFixed(2) }},
	{"Value at Risk", 16, func(r domain.Recommendation) interface{} { return r.ValueAtRisk.StringFixed(2) }},
	{"Confidence", 12, func(r domain.Recommendation) interface{} { return string(r.Confidence) }},
	{"Feedback", 12, func(r domain.Recommendation) interface{} { return string(r.FeedbackStatus) }},
	{"Generated At", 22, func(r domain.Recommendation) interface{} { return r.GeneratedAt.UTC().Format(time.RFC3339) }},
}

// ExportWorkbook writes every report as one sheet of an xlsx workbook and
// uploads it to object storage.
func (s *ReportService) ExportWorkbook(ctx context.Context, storeID int64) (*domain.ExportResult, error) {
	if s.objects == nil {
		return nil, fmt.Errorf("report export requires object storage")
	}

	current, err := s.registeredCurrent(ctx, storeID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	total := 0
	for i, kind := range domain.ReportKinds {
		sheet := string(kind)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}

		rows := replenishment.FilterReport(kind, current)
		if err := writeReportSheet(f, sheet, headerStyle, rows); err != nil {
			return nil, err
		}
		total += len(rows)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	key := fmt.Sprintf("exports/store-%d/reports-%s.xlsx", storeID, s.now().UTC().Format("20060102T150405Z"))
	if err := s.objects.UploadObject(ctx, key, buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to upload workbook: %w", err)
	}

	log.Info().Int64("store_id", storeID).Str("key", key).Int("rows", total).Msg("report workbook exported")
	return &domain.ExportResult{StoreID: storeID, Key: key, Size: int64(buf.Len()), Rows: total}, nil
}

func writeReportSheet(f *excelize.File, sheet string, headerStyle int, rows []domain.Recommendation) error {
	for i, col := range workbookColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col.header); err != nil {
			return fmt.Errorf("failed to write header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
		colName, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, colName, colName, col.width); err != nil {
			return err
		}
	}

	for r, rec := range rows {
		for c, col := range workbookColumns {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, col.value(rec)); err != nil {
				return fmt.Errorf("failed to write cell %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

// registeredCurrent drops current rows whose SKU is no longer registered.
func (s *ReportService) registeredCurrent(ctx context.Context, storeID int64) ([]domain.Recommendation, error) {
	current, err := s.store.Recommendations.ListCurrent(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return current, nil
	}

	entries, err := s.store.Registry.ListSKUs(ctx, storeID, nil)
	if err != nil {
		return nil, err
	}
	registered := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		registered[e.ItemID] = struct{}{}
	}

	out := make([]domain.Recommendation, 0, len(current))
	for _, rec := range current {
		if _, ok := registered[rec.ItemID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
