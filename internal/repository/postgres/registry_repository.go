package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/lib/pq"
)

// registryRepository reads the SKU registry and daily ledger. Both tables are
// owned by the ingestion side; this repository only selects from them.
type registryRepository struct {
	db *DB
}

func NewRegistryRepository(db *DB) *registryRepository {
	return &registryRepository{db: db}
}

func (r *registryRepository) ListSKUs(ctx context.Context, storeID int64, itemIDs []string) ([]domain.RegistryEntry, error) {
	conditions := []string{"store_id = $1"}
	args := []interface{}{storeID}
	if len(itemIDs) > 0 {
		args = append(args, pq.Array(itemIDs))
		conditions = append(conditions, fmt.Sprintf("store_item_id = ANY($%d)", len(args)))
	}

	query := `
		SELECT store_id, store_item_id, normalized_product_name, master_category_name,
		       on_hand, cost_price, sell_price, pending_quantity, case_size, min_order_qty,
		       first_seen_at, protection_window_days
		FROM store_sku_registry
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY store_item_id`

	var entries []domain.RegistryEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("error getting registry entries: %w", err)
	}
	return entries, nil
}

func (r *registryRepository) CountSKUs(ctx context.Context, storeID int64) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM store_sku_registry WHERE store_id = $1`, storeID); err != nil {
		return 0, fmt.Errorf("error counting registry entries: %w", err)
	}
	return count, nil
}

// ProtectionWindows merges global category windows (store 0) with the store's
// own overrides, the store's value winning.
func (r *registryRepository) ProtectionWindows(ctx context.Context, storeID int64) (map[string]float64, error) {
	query := `
		SELECT store_id, master_category_name, protection_window_days
		FROM category_protection_windows
		WHERE store_id IN (0, $1)
		ORDER BY store_id`

	var rows []struct {
		StoreID  int64   `db:"store_id"`
		Category string  `db:"master_category_name"`
		Days     float64 `db:"protection_window_days"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, storeID); err != nil {
		return nil, fmt.Errorf("error getting protection windows: %w", err)
	}

	windows := make(map[string]float64, len(rows))
	for _, row := range rows {
		windows[strings.ToUpper(row.Category)] = row.Days
	}
	return windows, nil
}

func (r *registryRepository) SalesBetween(ctx context.Context, storeID int64, itemIDs []string, from, to time.Time) (map[string][]domain.SalesEvent, error) {
	query := `
		SELECT store_item_id, ledger_date, units_sold
		FROM sku_daily_ledger
		WHERE store_id = $1
		  AND store_item_id = ANY($2)
		  AND ledger_date BETWEEN $3 AND $4
		  AND units_sold > 0
		ORDER BY store_item_id, ledger_date`

	var rows []struct {
		ItemID string `db:"store_item_id"`
		domain.SalesEvent
	}
	if err := r.db.SelectContext(ctx, &rows, query, storeID, pq.Array(itemIDs), from, to); err != nil {
		return nil, fmt.Errorf("error getting sales events: %w", err)
	}

	sales := make(map[string][]domain.SalesEvent)
	for _, row := range rows {
		sales[row.ItemID] = append(sales[row.ItemID], row.SalesEvent)
	}
	return sales, nil
}

func (r *registryRepository) DailyLedger(ctx context.Context, storeID int64, itemID string, from, to time.Time) ([]domain.LedgerDay, error) {
	query := `
		SELECT ledger_date, units_sold, closing_stock
		FROM sku_daily_ledger
		WHERE store_id = $1 AND store_item_id = $2 AND ledger_date BETWEEN $3 AND $4
		ORDER BY ledger_date`

	var days []domain.LedgerDay
	if err := r.db.SelectContext(ctx, &days, query, storeID, itemID, from, to); err != nil {
		return nil, fmt.Errorf("error getting ledger for %s: %w", itemID, err)
	}
	return days, nil
}
