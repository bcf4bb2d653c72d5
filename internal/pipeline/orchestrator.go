package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// StoreTask runs one batch for one store.
type StoreTask func(ctx context.Context, storeID int64) error

// Orchestrator runs a StoreTask over many stores, each independently, with a
// bound on how many stores run at once.
type Orchestrator struct {
	concurrency int
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{concurrency: concurrency}
}

// Run executes task for every store. A failing store does not cancel the
// others; all failures are joined into the returned error.
func (o *Orchestrator) Run(ctx context.Context, storeIDs []int64, task StoreTask) error {
	if len(storeIDs) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(o.concurrency)

	for _, storeID := range storeIDs {
		storeID := storeID
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("store %d: %w", storeID, err))
				mu.Unlock()
				return nil
			}

			if err := task(ctx, storeID); err != nil {
				log.Error().Err(err).Int64("store_id", storeID).Msg("store batch failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("store %d: %w", storeID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
