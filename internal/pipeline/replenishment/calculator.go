package replenishment

import (
	"fmt"
	"math"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Calculator computes replenishment metrics for one SKU. It has no side
// effects and returns identical output for identical input.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a new metrics calculator
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Calculate computes all metrics for a SKU state.
func (c *Calculator) Calculate(state domain.SKUState) (domain.Metrics, error) {
	if err := validateState(state); err != nil {
		return domain.Metrics{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	window := c.cfg.ProtectionWindowDays
	if state.ProtectionWindowDays > 0 {
		window = state.ProtectionWindowDays
	}

	buckets := dailyBuckets(state)

	m := domain.Metrics{
		ADS7:                 windowADS(buckets, 7),
		ADS14:                windowADS(buckets, 14),
		ADS30:                windowADS(buckets, salesWindowDays),
		ProtectionWindowDays: window,
		ServiceLevelZ:        c.cfg.ServiceLevelZ,
		ValueAtRisk:          decimal.Zero,
	}

	// 1. Blended velocity; never an average over event count
	m.WeightedADS = WeightedADS(m.ADS7, m.ADS14, m.ADS30)

	// 2. Demand variability over zero-filled daily buckets
	m.DemandStdDev = populationStdDev(buckets)

	// 3. Both safety stock forms
	m.GuardrailSafetyStock = GuardrailSafetyStock(m.WeightedADS)
	m.SafetyStock = StrategicSafetyStock(m.WeightedADS, m.DemandStdDev, window, c.cfg.ServiceLevelZ)

	// 4. Reorder point and target
	m.TargetStock = TargetStock(m.WeightedADS, window)
	m.ReorderPoint = ReorderPoint(m.WeightedADS, window, m.SafetyStock)

	// 5. Cover
	m.DaysOfCover = DaysOfCover(state.OnHand, m.WeightedADS)

	// 6. Confidence from history length
	m.HistoryDays = historyDays(state)
	m.Confidence = c.ConfidenceFor(m.HistoryDays)

	// 7. Exclusion rule and order quantity
	m.StockClass = StockClassOf(m.WeightedADS, state.OnHand)
	switch m.StockClass {
	case domain.StockActive:
		m.RecommendedOrderQty = OrderQuantity(m.TargetStock, state.OnHand, state.PendingQty, state.CaseSize, state.MinOrderQty)
	case domain.StockDead:
		m.ValueAtRisk = decimal.NewFromFloat(state.OnHand).Mul(state.CostPrice)
	}

	return m, nil
}

// ConfidenceFor maps history length to a confidence tier.
func (c *Calculator) ConfidenceFor(days int) domain.ConfidenceTier {
	switch {
	case days < c.cfg.LowConfidenceDays:
		return domain.ConfidenceLow
	case days > c.cfg.HighConfidenceDays:
		return domain.ConfidenceHigh
	default:
		return domain.ConfidenceMedium
	}
}

// WeightedADS blends the three trailing velocities.
func WeightedADS(ads7, ads14, ads30 float64) float64 {
	return weightADS7*ads7 + weightADS14*ads14 + weightADS30*ads30
}

// GuardrailSafetyStock is the tactical buffer used by buffer-breach checks.
func GuardrailSafetyStock(ads float64) float64 {
	if ads < 0.5 {
		return 1
	}
	return math.Max(3, math.Ceil(ads*3))
}

// StrategicSafetyStock is the sigma-based buffer used for reorder points.
func StrategicSafetyStock(ads, sigma, window, z float64) float64 {
	return math.Max(z*sigma, math.Max(ads*window, 0.5*ads))
}

// TargetStock is the stock level the recommendation aims for.
func TargetStock(ads, window float64) float64 {
	return ads * window
}

// ReorderPoint is the level at which replenishment is due.
func ReorderPoint(ads, window, safetyStock float64) float64 {
	return ads*window + safetyStock
}

// DaysOfCover divides stock by velocity with a floor on velocity and a cap on
// the result, so the value is always finite.
func DaysOfCover(onHand, ads float64) float64 {
	cover := onHand / math.Max(ads, coverEpsilon)
	return math.Min(math.Max(cover, 0), DaysOfCoverCap)
}

// OrderQuantity is max(0, ceil(target - on hand - pending)) rounded to pack.
func OrderQuantity(target, onHand, pending float64, caseSize, minOrderQty int) int {
	return RoundToPack(ceilQty(target-onHand-pending), caseSize, minOrderQty)
}

// RoundToPack lifts a positive quantity to the minimum order and then up to
// a whole number of cases.
func RoundToPack(qty, caseSize, minOrderQty int) int {
	if qty <= 0 {
		return 0
	}

	// Enforce minimum order
	if minOrderQty > 0 && qty < minOrderQty {
		qty = minOrderQty
	}

	if caseSize > 1 && qty%caseSize != 0 {
		qty = (qty/caseSize + 1) * caseSize
	}

	return qty
}

// StockClassOf applies the exclusion rule shared by every classification and
// report path.
func StockClassOf(ads, onHand float64) domain.StockClass {
	if ads > 0 {
		return domain.StockActive
	}
	if onHand > 0 {
		return domain.StockDead
	}
	return domain.StockInactive
}

func validateState(state domain.SKUState) error {
	if state.AsOf.IsZero() {
		return fmt.Errorf("%s: as-of date is required", state.ItemID)
	}
	if !finiteNonNegative(state.OnHand) {
		return fmt.Errorf("%s: invalid on-hand %v", state.ItemID, state.OnHand)
	}
	if !finiteNonNegative(state.PendingQty) {
		return fmt.Errorf("%s: invalid pending quantity %v", state.ItemID, state.PendingQty)
	}
	if state.CostPrice.IsNegative() || state.SellPrice.IsNegative() {
		return fmt.Errorf("%s: prices must not be negative", state.ItemID)
	}
	if state.CaseSize < 0 || state.MinOrderQty < 0 {
		return fmt.Errorf("%s: case size and minimum order must not be negative", state.ItemID)
	}
	if state.ProtectionWindowDays < 0 || math.IsNaN(state.ProtectionWindowDays) {
		return fmt.Errorf("%s: invalid protection window %v", state.ItemID, state.ProtectionWindowDays)
	}
	for _, ev := range state.Sales {
		if !finiteNonNegative(ev.Quantity) {
			return fmt.Errorf("%s: invalid sales quantity %v on %s", state.ItemID, ev.Quantity, ev.Date.Format("2006-01-02"))
		}
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// dailyBuckets returns the trailing window of daily sold quantities, index 0
// being the as-of day. Days without sales are zero.
func dailyBuckets(state domain.SKUState) []float64 {
	buckets := make([]float64, salesWindowDays)
	for _, ev := range state.Sales {
		offset := daysBetween(ev.Date, state.AsOf)
		if offset < 0 || offset >= salesWindowDays {
			continue
		}
		buckets[offset] += ev.Quantity
	}
	return buckets
}

// windowADS is the sum over the n days ending at the as-of day divided by n.
func windowADS(buckets []float64, n int) float64 {
	var sum float64
	for i := 0; i < n && i < len(buckets); i++ {
		sum += buckets[i]
	}
	return sum / float64(n)
}

func populationStdDev(buckets []float64) float64 {
	if len(buckets) == 0 {
		return 0
	}
	var mean float64
	for _, v := range buckets {
		mean += v
	}
	mean /= float64(len(buckets))

	var variance float64
	for _, v := range buckets {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(buckets)))
}

// historyDays counts the calendar days of history up to and including as-of.
// Without a registry start date the earliest sale is used.
func historyDays(state domain.SKUState) int {
	start := state.HistoryStart
	if start == nil {
		for i := range state.Sales {
			d := state.Sales[i].Date
			if start == nil || d.Before(*start) {
				start = &d
			}
		}
	}
	if start == nil {
		return 0
	}
	days := daysBetween(*start, state.AsOf) + 1
	if days < 0 {
		return 0
	}
	return days
}
