package replenishment

import "github.com/andresuchdata/autopo-engine/internal/domain"

// InReport decides report membership for a current snapshot. Inactive rows
// belong to no report, and dead stock only to the dead-stock report.
func InReport(kind domain.ReportKind, rec domain.Recommendation) bool {
	if rec.StockClass == domain.StockInactive {
		return false
	}

	switch kind {
	case domain.ReportBuyMore:
		return rec.StockClass == domain.StockActive && rec.InsightCategory == domain.InsightBuyMore
	case domain.ReportBuyLess:
		return rec.StockClass == domain.StockActive && rec.InsightCategory == domain.InsightBuyLess
	case domain.ReportDeadStock:
		return rec.StockClass == domain.StockDead
	case domain.ReportBufferBreach:
		return rec.StockClass == domain.StockActive && rec.CurrentStock < rec.GuardrailSafetyStock
	}
	return false
}

// FilterReport keeps the rows belonging to a report.
func FilterReport(kind domain.ReportKind, recs []domain.Recommendation) []domain.Recommendation {
	out := make([]domain.Recommendation, 0)
	for _, rec := range recs {
		if InReport(kind, rec) {
			out = append(out, rec)
		}
	}
	return out
}
