package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/google/uuid"
)

// runRepository handles database operations for run tracking
type runRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *runRepository {
	return &runRepository{db: db}
}

// CreateRun creates a new run record
func (r *runRepository) CreateRun(ctx context.Context, run *domain.GenerationRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO generation_runs (
			id, store_id, kind, status, forced, requested,
			written, skipped, failed, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.ID, run.StoreID, run.Kind, run.Status, run.Forced, run.Requested,
		run.Written, run.Skipped, run.Failed, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("error creating run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing run
func (r *runRepository) UpdateRun(ctx context.Context, run *domain.GenerationRun) error {
	query := `
		UPDATE generation_runs
		SET status = $1, requested = $2, written = $3, skipped = $4, failed = $5,
		    completed_at = $6, error_message = $7
		WHERE id = $8
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.Requested, run.Written, run.Skipped, run.Failed,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (r *runRepository) GetRun(ctx context.Context, id uuid.UUID) (*domain.GenerationRun, error) {
	query := `
		SELECT id, store_id, kind, status, forced, requested, written, skipped, failed,
		       started_at, completed_at, error_message
		FROM generation_runs
		WHERE id = $1
	`

	run := &domain.GenerationRun{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &run.StoreID, &run.Kind, &run.Status, &run.Forced,
		&run.Requested, &run.Written, &run.Skipped, &run.Failed,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// ListRuns returns the most recent runs for a store
func (r *runRepository) ListRuns(ctx context.Context, storeID int64, limit int) ([]domain.GenerationRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, store_id, kind, status, forced, requested, written, skipped, failed,
		       started_at, completed_at, error_message
		FROM generation_runs
		WHERE store_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	var runs []domain.GenerationRun
	if err := r.db.SelectContext(ctx, &runs, query, storeID, limit); err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	return runs, nil
}
