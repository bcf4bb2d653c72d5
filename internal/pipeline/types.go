package pipeline

import "time"

// PoolConfig holds configuration for a worker pool instance
type PoolConfig struct {
	Name          string
	WorkerCount   int           // Number of concurrent workers
	RetryAttempts int           // Total attempts per job, including the first
	RetryBackoff  time.Duration // Backoff duration between retries
}

// DefaultPoolConfig returns sensible defaults
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{
		Name:          name,
		WorkerCount:   4,
		RetryAttempts: 1,
		RetryBackoff:  200 * time.Millisecond,
	}
}

// Result is the outcome of one job. Results are returned in job order.
type Result[T any] struct {
	Key      string
	Value    T
	Err      error
	Attempts int
}

// PoolMetrics summarizes a finished pool run.
type PoolMetrics struct {
	Jobs      int
	Failed    int
	Retried   int
	StartedAt time.Time
	Duration  time.Duration
}
