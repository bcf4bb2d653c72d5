package service

import (
	"time"

	"github.com/andresuchdata/autopo-engine/internal/config"
	"github.com/andresuchdata/autopo-engine/internal/lifecycle"
	"github.com/andresuchdata/autopo-engine/internal/pipeline/replenishment"
)

const defaultMassFailureRatio = 0.5

// Options tunes the engine services.
type Options struct {
	Engine           replenishment.Config
	Outcome          lifecycle.OutcomePolicy
	MassFailureRatio float64
	WorkerCount      int
	Now              func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Engine:           replenishment.DefaultConfig(),
		Outcome:          lifecycle.DefaultOutcomePolicy(),
		MassFailureRatio: defaultMassFailureRatio,
		WorkerCount:      4,
		Now:              time.Now,
	}
}

// OptionsFromConfig maps the engine configuration section.
func OptionsFromConfig(cfg config.EngineConfig) Options {
	opts := DefaultOptions()
	opts.Engine = cfg.Replenishment()
	opts.Outcome = cfg.OutcomePolicy()
	if cfg.MassFailureRatio > 0 {
		opts.MassFailureRatio = cfg.MassFailureRatio
	}
	if cfg.WorkerCount > 0 {
		opts.WorkerCount = cfg.WorkerCount
	}
	return opts
}

func (o Options) clock() func() time.Time {
	if o.Now == nil {
		return time.Now
	}
	return o.Now
}
