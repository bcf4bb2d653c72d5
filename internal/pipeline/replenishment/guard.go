package replenishment

import (
	"github.com/andresuchdata/autopo-engine/internal/domain"
)

// Guard rebuilds the numeric trace of a recommendation from its own snapshot
// fields. It never reads live stock.
type Guard struct{}

func NewGuard() *Guard {
	return &Guard{}
}

// Reconstruct derives every intermediate number from the snapshot inputs,
// compares it with what was stored, and returns the consistent values. When
// a stored value contradicts its inputs the trace carries the derived value
// and a discrepancy instead of trusting the stored number.
func (g *Guard) Reconstruct(rec domain.Recommendation) domain.NumericTrace {
	window := rec.ProtectionWindowDays
	wads := WeightedADS(rec.ADS7, rec.ADS14, rec.ADS30)
	safety := StrategicSafetyStock(wads, rec.DemandStdDev, window, rec.ServiceLevelZ)
	guardrail := GuardrailSafetyStock(wads)
	target := TargetStock(wads, window)
	rop := ReorderPoint(wads, window, safety)
	cover := DaysOfCover(rec.CurrentStock, wads)
	class := StockClassOf(wads, rec.CurrentStock)

	qty := 0
	if class == domain.StockActive {
		qty = OrderQuantity(target, rec.CurrentStock, rec.PendingQuantity, rec.CaseSize, rec.MinOrderQty)
	}

	var discrepancies []domain.Discrepancy
	check := func(field string, stored, derived float64) {
		if !nearlyEqual(stored, derived) {
			discrepancies = append(discrepancies, domain.Discrepancy{Field: field, Stored: stored, Derived: derived})
		}
	}
	check("weighted_ads", rec.WeightedADS, wads)
	check("safety_stock", rec.SafetyStock, safety)
	check("guardrail_safety_stock", rec.GuardrailSafetyStock, guardrail)
	check("target_stock", rec.TargetStock, target)
	check("reorder_point", rec.ReorderPoint, rop)
	check("days_of_cover", rec.DaysOfCover, cover)
	if rec.RecommendedOrderQty != qty {
		discrepancies = append(discrepancies, domain.Discrepancy{
			Field:   "recommended_order_quantity",
			Stored:  float64(rec.RecommendedOrderQty),
			Derived: float64(qty),
		})
	}
	if rec.StockClass != class {
		discrepancies = append(discrepancies, domain.Discrepancy{Field: "stock_class"})
	}

	return domain.NumericTrace{
		RecommendationID: rec.ID,
		StoreID:          rec.StoreID,
		ItemID:           rec.ItemID,
		ProductName:      rec.ProductName,
		GeneratedAt:      rec.GeneratedAt,

		ADS7:                 roundFloat(rec.ADS7, 2),
		ADS14:                roundFloat(rec.ADS14, 2),
		ADS30:                roundFloat(rec.ADS30, 2),
		WeightedADS:          roundFloat(wads, 2),
		DemandStdDev:         roundFloat(rec.DemandStdDev, 2),
		ProtectionWindowDays: roundFloat(window, 2),
		ServiceLevelZ:        rec.ServiceLevelZ,
		SafetyStock:          roundFloat(safety, 2),
		GuardrailSafetyStock: roundFloat(guardrail, 2),
		ReorderPoint:         roundFloat(rop, 2),
		TargetStock:          roundFloat(target, 2),
		CurrentStock:         roundFloat(rec.CurrentStock, 2),
		PendingQuantity:      roundFloat(rec.PendingQuantity, 2),
		CaseSize:             rec.CaseSize,
		MinOrderQty:          rec.MinOrderQty,
		DaysOfCover:          roundFloat(cover, 2),
		RecommendedOrderQty:  qty,
		HistoryDays:          rec.HistoryDays,

		Confidence:      rec.Confidence,
		StockClass:      class,
		InsightCategory: rec.InsightCategory,
		RiskState:       rec.RiskState,
		BlockedCapital:  rec.BlockedCapital.Round(2),
		ValueAtRisk:     rec.ValueAtRisk.Round(2),
		Caveat:          rec.Caveat,
		Rationale:       rec.Rationale,

		IntegrityOK:   len(discrepancies) == 0,
		Discrepancies: discrepancies,
	}
}

// Check returns only the discrepancies for a row.
func (g *Guard) Check(rec domain.Recommendation) []domain.Discrepancy {
	return g.Reconstruct(rec).Discrepancies
}
