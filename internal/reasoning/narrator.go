// Package reasoning turns a numeric trace into prose. Narration is always
// optional: any failure falls back to the deterministic template.
package reasoning

import (
	"context"
	"errors"
	"strings"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/pipeline/replenishment"
	"github.com/rs/zerolog/log"
)

var (
	ErrDisabled         = errors.New("reasoning service disabled")
	ErrUnsupportedProse = errors.New("narration mentions numbers absent from the trace")
)

// Narrator explains a trace. It receives only the numeric trace.
type Narrator interface {
	Narrate(ctx context.Context, trace domain.NumericTrace) (string, error)
}

// Disabled never narrates.
type Disabled struct{}

func (Disabled) Narrate(context.Context, domain.NumericTrace) (string, error) {
	return "", ErrDisabled
}

// Rationale asks the narrator for prose and falls back to the template when
// it fails or invents numbers. The caveat, if any, is always present.
func Rationale(ctx context.Context, n Narrator, trace domain.NumericTrace) (string, domain.RationaleSource) {
	if n == nil {
		return replenishment.TemplateRationale(trace), domain.RationaleTemplate
	}

	prose, err := n.Narrate(ctx, trace)
	if err == nil && !replenishment.ProseMatchesTrace(prose, trace) {
		err = ErrUnsupportedProse
	}
	if err != nil {
		if !errors.Is(err, ErrDisabled) {
			log.Warn().Err(err).
				Str("item_id", trace.ItemID).
				Str("recommendation_id", trace.RecommendationID.String()).
				Msg("narration unavailable, using template rationale")
		}
		return replenishment.TemplateRationale(trace), domain.RationaleTemplate
	}

	prose = strings.TrimSpace(prose)
	if trace.Caveat != "" && !strings.Contains(prose, trace.Caveat) {
		prose += " " + trace.Caveat
	}
	return prose, domain.RationaleReasoning
}
