package replenishment

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/andresuchdata/autopo-engine/internal/domain"
)

var (
	numberPattern    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	thousandsPattern = regexp.MustCompile(`(\d),(\d{3})`)
)

// TemplateRationale renders the deterministic explanation for a trace. It
// uses only numbers present in the trace.
func TemplateRationale(t domain.NumericTrace) string {
	var b strings.Builder

	switch {
	case t.StockClass == domain.StockDead:
		fmt.Fprintf(&b, "No sales in the last 30 days with %s units on hand; %s of stock value is at risk and no reorder is suggested.",
			num(t.CurrentStock), t.ValueAtRisk.StringFixed(2))
	case t.InsightCategory == domain.InsightBuyMore:
		if t.RecommendedOrderQty > 0 {
			fmt.Fprintf(&b, "Order %d units.", t.RecommendedOrderQty)
		} else {
			fmt.Fprintf(&b, "No new order needed: %s units already pending cover the gap to target.", num(t.PendingQuantity))
		}
		fmt.Fprintf(&b, " Weighted daily sales of %s against %s on hand and %s pending give %s days of cover, below the %s-day protection window (%s).",
			num(t.WeightedADS), num(t.CurrentStock), num(t.PendingQuantity),
			num(t.DaysOfCover), num(t.ProtectionWindowDays), t.RiskState)
		fmt.Fprintf(&b, " Target stock is %s units; reorder point is %s.", num(t.TargetStock), num(t.ReorderPoint))
	case t.InsightCategory == domain.InsightBuyLess:
		fmt.Fprintf(&b, "Hold purchasing. %s units on hand cover %s days at %s units per day, far beyond the %s-day protection window; %s of capital is tied up.",
			num(t.CurrentStock), num(t.DaysOfCover), num(t.WeightedADS), num(t.ProtectionWindowDays), t.BlockedCapital.StringFixed(2))
	default:
		fmt.Fprintf(&b, "%s units on hand cover %s days at %s units per day against a %s-day protection window.",
			num(t.CurrentStock), num(t.DaysOfCover), num(t.WeightedADS), num(t.ProtectionWindowDays))
		if t.RecommendedOrderQty > 0 {
			fmt.Fprintf(&b, " The math points to %d units, but no order is issued yet.", t.RecommendedOrderQty)
		} else {
			b.WriteString(" No action needed.")
		}
	}

	if t.Caveat != "" {
		b.WriteString(" ")
		b.WriteString(t.Caveat)
	}
	return b.String()
}

// ProseMatchesTrace reports whether every number mentioned in prose is one
// of the trace's own numbers. Narration that invents figures is rejected.
func ProseMatchesTrace(prose string, t domain.NumericTrace) bool {
	if strings.TrimSpace(prose) == "" {
		return false
	}

	allowed := traceNumbers(t)
	cleaned := thousandsPattern.ReplaceAllString(prose, "$1$2")
	for _, match := range numberPattern.FindAllString(cleaned, -1) {
		v, err := strconv.ParseFloat(match, 64)
		if err != nil {
			return false
		}
		if !containsNumber(allowed, v) {
			return false
		}
	}
	return true
}

func traceNumbers(t domain.NumericTrace) []float64 {
	values := []float64{
		t.ADS7, t.ADS14, t.ADS30, t.WeightedADS, t.DemandStdDev,
		t.ProtectionWindowDays, t.ServiceLevelZ, t.SafetyStock, t.GuardrailSafetyStock,
		t.ReorderPoint, t.TargetStock, t.CurrentStock, t.PendingQuantity, t.DaysOfCover,
		float64(t.CaseSize), float64(t.MinOrderQty), float64(t.RecommendedOrderQty), float64(t.HistoryDays),
		t.BlockedCapital.InexactFloat64(), t.ValueAtRisk.InexactFloat64(),
		7, 14, 30,
	}
	if !t.GeneratedAt.IsZero() {
		y, m, d := t.GeneratedAt.Date()
		values = append(values, float64(y), float64(m), float64(d))
	}

	out := make([]float64, 0, len(values)*3)
	for _, v := range values {
		out = append(out, v, roundFloat(v, 1), math.Round(v))
	}
	return out
}

func containsNumber(allowed []float64, v float64) bool {
	for _, a := range allowed {
		if math.Abs(a-v) < 0.006 {
			return true
		}
	}
	return false
}

func num(v float64) string {
	return strconv.FormatFloat(roundFloat(v, 2), 'f', -1, 64)
}
