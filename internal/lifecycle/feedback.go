// Package lifecycle holds the two state machines that run over a persisted
// recommendation: user feedback and delayed outcome verification. They own
// disjoint column groups of the same row.
package lifecycle

import (
	"fmt"

	"github.com/andresuchdata/autopo-engine/internal/domain"
)

// NextFeedback validates a feedback transition. It returns applied=false for
// an idempotent repeat of the current terminal status.
func NextFeedback(current, target domain.FeedbackStatus) (applied bool, err error) {
	if !target.IsTerminal() {
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, target)
	}

	switch {
	case current == domain.FeedbackPending:
		return true, nil
	case current == target:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, target)
	}
}

// QueuesCart reports whether a transition should place an advisory order in
// the procurement cart. A row whose gap is already covered by pending stock
// orders nothing.
func QueuesCart(rec domain.Recommendation, status domain.FeedbackStatus) bool {
	return rec.InsightCategory == domain.InsightBuyMore && status.Committed() && rec.OrderQuantity() > 0
}
