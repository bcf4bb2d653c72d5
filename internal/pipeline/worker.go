package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/rs/zerolog/log"
)

// JobFunc processes one job.
type JobFunc[J, T any] func(ctx context.Context, job J) (T, error)

// Worker fans jobs across a fixed number of goroutines.
type Worker[J, T any] struct {
	config PoolConfig
	key    func(J) string
	fn     JobFunc[J, T]
}

// NewWorker creates a new pool worker. key names a job in logs and results.
func NewWorker[J, T any](config PoolConfig, key func(J) string, fn JobFunc[J, T]) *Worker[J, T] {
	return &Worker[J, T]{config: config, key: key, fn: fn}
}

// Process runs every job and returns one result per job, in input order.
// A failing job never stops the others; a cancelled context marks the
// remaining jobs with the context error.
func (w *Worker[J, T]) Process(ctx context.Context, jobs []J) ([]Result[T], PoolMetrics) {
	metrics := PoolMetrics{Jobs: len(jobs), StartedAt: time.Now()}
	results := make([]Result[T], len(jobs))
	if len(jobs) == 0 {
		return results, metrics
	}

	workerCount := w.config.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(jobs) {
		workerCount = len(jobs)
	}

	jobChan := make(chan int, len(jobs))
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobChan {
				results[idx] = w.processJob(ctx, workerID, jobs[idx])
			}
		}(i)
	}

	// Enqueue jobs
	queued := 0
enqueue:
	for idx := range jobs {
		select {
		case <-ctx.Done():
			break enqueue
		case jobChan <- idx:
			queued++
		}
	}
	close(jobChan)

	// Wait for all workers
	wg.Wait()

	for idx := queued; idx < len(jobs); idx++ {
		results[idx] = Result[T]{Key: w.key(jobs[idx]), Err: ctx.Err()}
	}

	for _, res := range results {
		if res.Err != nil {
			metrics.Failed++
		}
		if res.Attempts > 1 {
			metrics.Retried++
		}
	}
	metrics.Duration = time.Since(metrics.StartedAt)

	log.Debug().Str("pool", w.config.Name).
		Int("jobs", metrics.Jobs).
		Int("failed", metrics.Failed).
		Dur("duration", metrics.Duration).
		Msg("pool finished")

	return results, metrics
}

// processJob runs one job with retry. Invalid input is never retried.
func (w *Worker[J, T]) processJob(ctx context.Context, workerID int, job J) Result[T] {
	res := Result[T]{Key: w.key(job)}

	attempts := w.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		res.Attempts = attempt
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		value, err := w.fn(ctx, job)
		if err == nil {
			res.Value = value
			res.Err = nil
			return res
		}
		res.Err = err

		if errors.Is(err, domain.ErrInvalidInput) || attempt == attempts {
			break
		}

		log.Warn().Err(err).
			Str("pool", w.config.Name).
			Int("worker", workerID).
			Str("job", res.Key).
			Int("attempt", attempt).
			Msg("job failed, retrying")

		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(w.config.RetryBackoff * time.Duration(attempt)):
		}
	}

	log.Warn().Err(res.Err).
		Str("pool", w.config.Name).
		Int("worker", workerID).
		Str("job", res.Key).
		Msg("job failed")
	return res
}
