package replenishment

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/google/uuid"
)

// NewSnapshot assembles the persisted row for one evaluated SKU. The rationale
// is filled in later by the generator.
func NewSnapshot(state domain.SKUState, m domain.Metrics, cls domain.Classification, runID uuid.UUID, generatedAt time.Time) domain.Recommendation {
	rec := domain.Recommendation{
		ID:          uuid.New(),
		RunID:       runID,
		StoreID:     state.StoreID,
		ItemID:      state.ItemID,
		ProductName: state.ProductName,
		Category:    state.Category,

		CurrentStock:         state.OnHand,
		PendingQuantity:      state.PendingQty,
		CaseSize:             state.CaseSize,
		MinOrderQty:          state.MinOrderQty,
		CostPrice:            state.CostPrice,
		SellPrice:            state.SellPrice,
		ADS7:                 m.ADS7,
		ADS14:                m.ADS14,
		ADS30:                m.ADS30,
		WeightedADS:          m.WeightedADS,
		DemandStdDev:         m.DemandStdDev,
		ProtectionWindowDays: m.ProtectionWindowDays,
		ServiceLevelZ:        m.ServiceLevelZ,
		GuardrailSafetyStock: m.GuardrailSafetyStock,
		SafetyStock:          m.SafetyStock,
		ReorderPoint:         m.ReorderPoint,
		TargetStock:          m.TargetStock,
		DaysOfCover:          m.DaysOfCover,
		RecommendedOrderQty:  m.RecommendedOrderQty,
		HistoryDays:          m.HistoryDays,
		Confidence:           m.Confidence,
		StockClass:           m.StockClass,
		InsightCategory:      cls.Category,
		RiskState:            cls.Risk,
		BlockedCapital:       cls.BlockedCapital,
		ValueAtRisk:          m.ValueAtRisk,
		Caveat:               cls.Caveat,
		GeneratedAt:          generatedAt,
		FeedbackStatus:       domain.FeedbackPending,
	}
	rec.SnapshotHash = SnapshotHash(rec)
	return rec
}

// SnapshotHash fingerprints the decision content of a row, ignoring ids and
// timestamps, so two identical generations hash the same.
func SnapshotHash(rec domain.Recommendation) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	parts := []string{
		strconv.FormatInt(rec.StoreID, 10),
		rec.ItemID,
		f(rec.CurrentStock),
		f(rec.PendingQuantity),
		strconv.Itoa(rec.CaseSize),
		strconv.Itoa(rec.MinOrderQty),
		rec.CostPrice.String(),
		rec.SellPrice.String(),
		f(rec.ADS7),
		f(rec.ADS14),
		f(rec.ADS30),
		f(rec.DemandStdDev),
		f(rec.ProtectionWindowDays),
		f(rec.ServiceLevelZ),
		strconv.Itoa(rec.RecommendedOrderQty),
		strconv.Itoa(rec.HistoryDays),
		string(rec.Confidence),
		string(rec.StockClass),
		string(rec.InsightCategory),
		string(rec.RiskState),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// MateriallyChanged reports whether a fresh evaluation differs enough from
// the latest snapshot to justify a new row.
func MateriallyChanged(prev domain.Recommendation, next domain.Recommendation, tolerance float64) bool {
	if prev.InsightCategory != next.InsightCategory ||
		prev.RiskState != next.RiskState ||
		prev.StockClass != next.StockClass ||
		prev.Confidence != next.Confidence ||
		prev.RecommendedOrderQty != next.RecommendedOrderQty ||
		prev.CaseSize != next.CaseSize ||
		prev.MinOrderQty != next.MinOrderQty ||
		prev.ProtectionWindowDays != next.ProtectionWindowDays {
		return true
	}
	if !nearlyEqual(prev.CurrentStock, next.CurrentStock) || !nearlyEqual(prev.PendingQuantity, next.PendingQuantity) {
		return true
	}
	if !prev.CostPrice.Equal(next.CostPrice) || !prev.SellPrice.Equal(next.SellPrice) {
		return true
	}
	base := math.Max(math.Abs(prev.WeightedADS), coverEpsilon)
	return math.Abs(next.WeightedADS-prev.WeightedADS)/base > tolerance
}

// Describe is a short human label used in logs.
func Describe(rec domain.Recommendation) string {
	return fmt.Sprintf("%s/%s qty=%d cover=%.2f", rec.InsightCategory, rec.RiskState, rec.RecommendedOrderQty, rec.DaysOfCover)
}
