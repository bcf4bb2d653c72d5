package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler triggers an orchestrated store batch on a fixed interval.
type Scheduler struct {
	name         string
	interval     time.Duration
	stores       []int64
	orchestrator *Orchestrator
	task         StoreTask
}

func NewScheduler(name string, interval time.Duration, stores []int64, orchestrator *Orchestrator, task StoreTask) *Scheduler {
	return &Scheduler{
		name:         name,
		interval:     interval,
		stores:       stores,
		orchestrator: orchestrator,
		task:         task,
	}
}

// Start blocks, running one batch immediately and then once per interval,
// until ctx is cancelled. A zero interval or empty store list returns at once.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 || len(s.stores) == 0 {
		log.Info().Str("schedule", s.name).Msg("scheduler disabled")
		return
	}

	log.Info().Str("schedule", s.name).
		Dur("interval", s.interval).
		Ints64("stores", s.stores).
		Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			log.Info().Str("schedule", s.name).Msg("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	started := time.Now()
	if err := s.orchestrator.Run(ctx, s.stores, s.task); err != nil {
		log.Warn().Err(err).Str("schedule", s.name).Msg("scheduled batch finished with errors")
		return
	}
	log.Info().Str("schedule", s.name).Dur("duration", time.Since(started)).Msg("scheduled batch finished")
}
