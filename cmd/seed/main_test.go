package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpsertQuery(t *testing.T) {
	q := upsertQuery(seedTable{
		name:     "sku_daily_ledger",
		columns:  []string{"store_id", "store_item_id", "ledger_date", "units_sold"},
		conflict: []string{"store_id", "store_item_id", "ledger_date"},
	})

	assert.Equal(t,
		`INSERT INTO sku_daily_ledger ("store_id", "store_item_id", "ledger_date", "units_sold") VALUES ($1, $2, $3, $4) `+
			`ON CONFLICT (store_id, store_item_id, ledger_date) DO UPDATE SET "units_sold" = EXCLUDED."units_sold"`,
		q)
}

func TestColumnIndex(t *testing.T) {
	header := []string{"Store_ID", " store_item_id ", "units_sold"}
	assert.Equal(t, 0, columnIndex(header, "store_id"))
	assert.Equal(t, 1, columnIndex(header, "store_item_id"))
	assert.Equal(t, -1, columnIndex(header, "closing_stock"))
}
