package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const recommendationColumns = `
	id, run_id, store_id, store_item_id, product_name, category,
	current_stock, pending_quantity, case_size, min_order_qty, cost_price, sell_price,
	ads_7, ads_14, ads_30, weighted_ads, demand_std_dev, protection_window_days, service_level_z,
	guardrail_safety_stock, safety_stock, reorder_point, target_stock, days_of_cover,
	recommended_order_quantity, history_days, confidence, stock_class, insight_category, risk_state,
	blocked_capital, value_at_risk, caveat, rationale, rationale_source, snapshot_hash, forced, generated_at,
	feedback_status, feedback_reason, feedback_quantity, processed_at, processed_by,
	outcome_check_count, realized_outcome, financial_impact_cash, outcome_checked_at`

type recommendationRepository struct {
	db *DB
}

func NewRecommendationRepository(db *DB) *recommendationRepository {
	return &recommendationRepository{db: db}
}

// Insert writes one snapshot in its own transaction.
func (r *recommendationRepository) Insert(ctx context.Context, rec *domain.Recommendation) error {
	query := `
		INSERT INTO recommendations (` + recommendationColumns + `) VALUES (
			:id, :run_id, :store_id, :store_item_id, :product_name, :category,
			:current_stock, :pending_quantity, :case_size, :min_order_qty, :cost_price, :sell_price,
			:ads_7, :ads_14, :ads_30, :weighted_ads, :demand_std_dev, :protection_window_days, :service_level_z,
			:guardrail_safety_stock, :safety_stock, :reorder_point, :target_stock, :days_of_cover,
			:recommended_order_quantity, :history_days, :confidence, :stock_class, :insight_category, :risk_state,
			:blocked_capital, :value_at_risk, :caveat, :rationale, :rationale_source, :snapshot_hash, :forced, :generated_at,
			:feedback_status, :feedback_reason, :feedback_quantity, :processed_at, :processed_by,
			:outcome_check_count, :realized_outcome, :financial_impact_cash, :outcome_checked_at
		)`

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
			return fmt.Errorf("error inserting recommendation for %s: %w", rec.ItemID, err)
		}
		return nil
	})
}

func (r *recommendationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations WHERE id = $1`

	var rec domain.Recommendation
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("recommendation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("error getting recommendation: %w", err)
	}
	return &rec, nil
}

func (r *recommendationRepository) LatestBySKU(ctx context.Context, storeID int64, itemIDs []string) (map[string]domain.Recommendation, error) {
	query := `
		SELECT DISTINCT ON (store_item_id) ` + recommendationColumns + `
		FROM recommendations
		WHERE store_id = $1 AND store_item_id = ANY($2)
		ORDER BY store_item_id, generated_at DESC`

	var rows []domain.Recommendation
	if err := r.db.SelectContext(ctx, &rows, query, storeID, pq.Array(itemIDs)); err != nil {
		return nil, fmt.Errorf("error getting latest recommendations: %w", err)
	}

	latest := make(map[string]domain.Recommendation, len(rows))
	for _, rec := range rows {
		latest[rec.ItemID] = rec
	}
	return latest, nil
}

func (r *recommendationRepository) ListCurrent(ctx context.Context, storeID int64) ([]domain.Recommendation, error) {
	query := `
		SELECT DISTINCT ON (store_item_id) ` + recommendationColumns + `
		FROM recommendations
		WHERE store_id = $1
		ORDER BY store_item_id, generated_at DESC`

	var rows []domain.Recommendation
	if err := r.db.SelectContext(ctx, &rows, query, storeID); err != nil {
		return nil, fmt.Errorf("error getting current recommendations: %w", err)
	}
	return rows, nil
}

func (r *recommendationRepository) UpdateFeedback(ctx context.Context, id uuid.UUID, expected domain.FeedbackStatus, upd domain.FeedbackUpdate, audit domain.FeedbackAuditEntry) (bool, error) {
	applied := false
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE recommendations
			SET feedback_status = $1, feedback_reason = $2, feedback_quantity = $3,
			    processed_at = $4, processed_by = $5
			WHERE id = $6 AND feedback_status = $7`,
			upd.Status, upd.Reason, upd.Quantity, upd.ProcessedAt, upd.ProcessedBy, id, expected,
		)
		if err != nil {
			return fmt.Errorf("error updating feedback: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("error reading feedback update result: %w", err)
		}
		if affected == 0 {
			return nil
		}

		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO recommendation_feedback_audit (
				id, recommendation_id, from_status, to_status, reason, quantity, actor, created_at
			) VALUES (:id, :recommendation_id, :from_status, :to_status, :reason, :quantity, :actor, :created_at)`,
			audit,
		); err != nil {
			return fmt.Errorf("error writing feedback audit: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *recommendationRepository) FeedbackHistory(ctx context.Context, id uuid.UUID) ([]domain.FeedbackAuditEntry, error) {
	query := `
		SELECT id, recommendation_id, from_status, to_status, reason, quantity, actor, created_at
		FROM recommendation_feedback_audit
		WHERE recommendation_id = $1
		ORDER BY created_at`

	var entries []domain.FeedbackAuditEntry
	if err := r.db.SelectContext(ctx, &entries, query, id); err != nil {
		return nil, fmt.Errorf("error getting feedback history: %w", err)
	}
	return entries, nil
}

func (r *recommendationRepository) ListVerifiable(ctx context.Context, storeID int64, maxChecks int) ([]domain.Recommendation, error) {
	statuses := make([]string, 0, len(domain.TrackableFeedback))
	for _, s := range domain.TrackableFeedback {
		statuses = append(statuses, string(s))
	}

	query := `
		SELECT ` + recommendationColumns + `
		FROM recommendations
		WHERE store_id = $1
		  AND insight_category = $2
		  AND feedback_status = ANY($3)
		  AND realized_outcome IS NULL
		  AND outcome_check_count < $4
		ORDER BY generated_at`

	var rows []domain.Recommendation
	if err := r.db.SelectContext(ctx, &rows, query, storeID, domain.InsightBuyMore, pq.Array(statuses), maxChecks); err != nil {
		return nil, fmt.Errorf("error getting verifiable recommendations: %w", err)
	}
	return rows, nil
}

func (r *recommendationRepository) RecordOutcomeCheck(ctx context.Context, id uuid.UUID, priorChecks int, upd domain.OutcomeUpdate) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recommendations
		SET outcome_check_count = $1, realized_outcome = $2, financial_impact_cash = $3, outcome_checked_at = $4
		WHERE id = $5 AND realized_outcome IS NULL AND outcome_check_count = $6`,
		upd.CheckCount, upd.Outcome, upd.FinancialImpact, upd.CheckedAt, id, priorChecks,
	)
	if err != nil {
		return false, fmt.Errorf("error recording outcome check: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading outcome update result: %w", err)
	}
	return affected > 0, nil
}

func (r *recommendationRepository) CountActivePending(ctx context.Context, storeID int64) (int, error) {
	query := `
		WITH current AS (
			SELECT DISTINCT ON (store_item_id) feedback_status
			FROM recommendations
			WHERE store_id = $1
			ORDER BY store_item_id, generated_at DESC
		)
		SELECT COUNT(*) FROM current WHERE feedback_status = $2`

	var count int
	if err := r.db.GetContext(ctx, &count, query, storeID, domain.FeedbackPending); err != nil {
		return 0, fmt.Errorf("error counting active recommendations: %w", err)
	}
	return count, nil
}

func (r *recommendationRepository) DuplicateSnapshots(ctx context.Context, storeID int64) ([]domain.DuplicateSnapshot, error) {
	query := `
		SELECT store_item_id,
		       (generated_at AT TIME ZONE 'UTC')::date AS day,
		       snapshot_hash,
		       COUNT(*) AS count
		FROM recommendations
		WHERE store_id = $1 AND NOT forced
		GROUP BY store_item_id, day, snapshot_hash
		HAVING COUNT(*) > 1
		ORDER BY day, store_item_id`

	var rows []domain.DuplicateSnapshot
	if err := r.db.SelectContext(ctx, &rows, query, storeID); err != nil {
		return nil, fmt.Errorf("error finding duplicate snapshots: %w", err)
	}
	return rows, nil
}

func (r *recommendationRepository) ListStaleVerifications(ctx context.Context, storeID int64, maxChecks int) ([]domain.Recommendation, error) {
	query := `
		SELECT ` + recommendationColumns + `
		FROM recommendations
		WHERE store_id = $1
		  AND realized_outcome IS NULL
		  AND outcome_check_count >= $2`

	var rows []domain.Recommendation
	if err := r.db.SelectContext(ctx, &rows, query, storeID, maxChecks); err != nil {
		return nil, fmt.Errorf("error finding stale verifications: %w", err)
	}
	return rows, nil
}

func (r *recommendationRepository) ListGeneratedBefore(ctx context.Context, storeID int64, before time.Time) ([]domain.Recommendation, error) {
	query := `
		SELECT ` + recommendationColumns + `
		FROM recommendations
		WHERE store_id = $1 AND generated_at < $2
		ORDER BY generated_at`

	var rows []domain.Recommendation
	if err := r.db.SelectContext(ctx, &rows, query, storeID, before); err != nil {
		return nil, fmt.Errorf("error listing recommendations for purge: %w", err)
	}
	return rows, nil
}

// DeleteGeneratedBefore removes old rows and, by cascade, their audit trail.
// Registry and ledger tables are never touched.
func (r *recommendationRepository) DeleteGeneratedBefore(ctx context.Context, storeID int64, before time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM recommendations WHERE store_id = $1 AND generated_at < $2`, storeID, before)
		if err != nil {
			return fmt.Errorf("error purging recommendations: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	return deleted, err
}
