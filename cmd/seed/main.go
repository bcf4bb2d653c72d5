package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

type contextKey string

const dbKey contextKey = "db"

// seedTable describes one CSV file and the table it upserts into.
type seedTable struct {
	name     string
	file     string
	columns  []string
	conflict []string
	defaults map[string]interface{} // used for missing or empty optional columns
}

var seedTables = []seedTable{
	{
		name:     "stores",
		file:     "stores.csv",
		columns:  []string{"id", "name"},
		conflict: []string{"id"},
	},
	{
		name: "store_sku_registry",
		file: "registry.csv",
		columns: []string{
			"store_id", "store_item_id", "normalized_product_name", "master_category_name",
			"on_hand", "cost_price", "sell_price", "pending_quantity", "case_size",
			"min_order_qty", "first_seen_at", "protection_window_days",
		},
		conflict: []string{"store_id", "store_item_id"},
		defaults: map[string]interface{}{
			"pending_quantity": "0", "case_size": "0", "min_order_qty": "0",
			"first_seen_at": nil, "protection_window_days": nil,
		},
	},
	{
		name:     "category_protection_windows",
		file:     "protection_windows.csv",
		columns:  []string{"store_id", "master_category_name", "protection_window_days"},
		conflict: []string{"store_id", "master_category_name"},
	},
	{
		name:     "sku_daily_ledger",
		file:     "ledger.csv",
		columns:  []string{"store_id", "store_item_id", "ledger_date", "units_sold", "closing_stock"},
		conflict: []string{"store_id", "store_item_id", "ledger_date"},
	},
}

func newDBURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "Database connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	}
}

func newDataDirFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "data-dir",
		Usage:   "Directory containing the seed CSV files",
		Value:   "./data/seeds",
		EnvVars: []string{"SEED_DATA_DIR"},
	}
}

func initDB(c *cli.Context) error {
	db, err := sqlx.Connect("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	c.Context = context.WithValue(c.Context, dbKey, db)
	return nil
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey).(*sqlx.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: could not load .env file: %v", err)
	}

	commands := []*cli.Command{
		{
			Name:   "all",
			Usage:  "Seed stores, registry, protection windows and ledger",
			Flags:  []cli.Flag{newDBURLFlag(), newDataDirFlag()},
			Before: initDB,
			After:  closeDB,
			Action: func(c *cli.Context) error {
				return runSeeder(c, seedTables)
			},
		},
	}
	for _, table := range seedTables {
		table := table
		commands = append(commands, &cli.Command{
			Name:   strings.TrimSuffix(table.file, ".csv"),
			Usage:  fmt.Sprintf("Seed %s from %s", table.name, table.file),
			Flags:  []cli.Flag{newDBURLFlag(), newDataDirFlag()},
			Before: initDB,
			After:  closeDB,
			Action: func(c *cli.Context) error {
				return runSeeder(c, []seedTable{table})
			},
		})
	}

	app := &cli.App{
		Name:     "seed",
		Usage:    "Seed the decision engine inputs from CSV files",
		Commands: commands,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runSeeder(c *cli.Context, tables []seedTable) error {
	db := c.Context.Value(dbKey).(*sqlx.DB)
	dataDir := c.String("data-dir")
	ctx := c.Context

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Defer a rollback in case anything fails.
	defer tx.Rollback()

	log.Println("Starting database seeding...")
	for _, table := range tables {
		path := filepath.Join(dataDir, table.file)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			log.Printf("Skipping %s: %s not found\n", table.name, path)
			continue
		}
		n, err := loadTable(ctx, tx, table, path)
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", table.name, err)
		}
		log.Printf("Seeded %d rows into %s\n", n, table.name)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Println("Database seeding completed successfully!")
	return nil
}

func loadTable(ctx context.Context, tx *sqlx.Tx, table seedTable, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	indexes := make([]int, len(table.columns))
	for i, col := range table.columns {
		idx := columnIndex(header, col)
		if _, optional := table.defaults[col]; idx < 0 && !optional {
			return 0, fmt.Errorf("column %q not found in header: %v", col, header)
		}
		indexes[i] = idx
	}

	query := upsertQuery(table)
	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read CSV record: %w", err)
		}

		args := make([]interface{}, len(table.columns))
		for i, col := range table.columns {
			var value string
			if idx := indexes[i]; idx >= 0 && idx < len(record) {
				value = strings.TrimSpace(record[idx])
			}
			if fallback, optional := table.defaults[col]; value == "" && optional {
				args[i] = fallback
				continue
			}
			args[i] = value
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return count, fmt.Errorf("failed to insert record %d: %w", count+1, err)
		}
		count++
	}
	return count, nil
}

func upsertQuery(table seedTable) string {
	placeholders := make([]string, len(table.columns))
	for i := range table.columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	conflict := make(map[string]bool, len(table.conflict))
	for _, col := range table.conflict {
		conflict[col] = true
	}
	updates := make([]string, 0, len(table.columns))
	for _, col := range table.columns {
		if !conflict[col] {
			updates = append(updates, fmt.Sprintf(`"%s" = EXCLUDED."%s"`, col, col))
		}
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table.name,
		`"`+strings.Join(table.columns, `", "`)+`"`,
		strings.Join(placeholders, ", "),
		strings.Join(table.conflict, ", "),
		strings.Join(updates, ", "),
	)
}

func columnIndex(header []string, column string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), column) {
			return i
		}
	}
	return -1
}
