package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/app"
	"github.com/andresuchdata/autopo-engine/internal/config"
	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/pkg/logger"
	"github.com/urfave/cli/v2"
)

type contextKey string

const engineKey contextKey = "engine"

func storesFlag() *cli.Int64SliceFlag {
	return &cli.Int64SliceFlag{
		Name:     "store",
		Aliases:  []string{"s"},
		Usage:    "Store id to process (repeatable)",
		Required: true,
	}
}

func initEngine(c *cli.Context) error {
	cfg := config.Load()
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	engine, err := app.Build(c.Context, cfg)
	if err != nil {
		return err
	}
	c.Context = context.WithValue(c.Context, engineKey, engine)
	return nil
}

func closeEngine(c *cli.Context) error {
	if engine, ok := c.Context.Value(engineKey).(*app.App); ok && engine != nil {
		engine.Close()
	}
	return nil
}

func engineFrom(c *cli.Context) *app.App {
	return c.Context.Value(engineKey).(*app.App)
}

func main() {
	cliApp := &cli.App{
		Name:  "engine",
		Usage: "Run inventory decision engine jobs",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply the embedded database schema",
				Before: initEngine,
				After:  closeEngine,
				Action: func(c *cli.Context) error {
					return engineFrom(c).DB.Migrate(c.Context)
				},
			},
			{
				Name:  "generate",
				Usage: "Generate recommendations for one or more stores",
				Flags: []cli.Flag{
					storesFlag(),
					&cli.StringSliceFlag{Name: "sku", Usage: "Restrict the run to these SKUs"},
					&cli.BoolFlag{Name: "force", Usage: "Write snapshots even when nothing changed"},
					&cli.StringFlag{Name: "as-of", Usage: "Evaluate as of this date (YYYY-MM-DD)"},
					&cli.StringFlag{Name: "actor", Value: "cli"},
				},
				Before: initEngine,
				After:  closeEngine,
				Action: runGenerate,
			},
			{
				Name:  "verify",
				Usage: "Run one outcome verification pass",
				Flags: []cli.Flag{
					storesFlag(),
					&cli.StringFlag{Name: "as-of", Usage: "Observe the ledger up to this date (YYYY-MM-DD)"},
				},
				Before: initEngine,
				After:  closeEngine,
				Action: runVerify,
			},
			{
				Name:   "audit",
				Usage:  "Check recommendation integrity",
				Flags:  []cli.Flag{storesFlag()},
				Before: initEngine,
				After:  closeEngine,
				Action: runAudit,
			},
			{
				Name:  "purge",
				Usage: "Archive and delete recommendations generated before a date",
				Flags: []cli.Flag{
					storesFlag(),
					&cli.StringFlag{Name: "before", Usage: "Cutoff date (YYYY-MM-DD)", Required: true},
				},
				Before: initEngine,
				After:  closeEngine,
				Action: runPurge,
			},
			{
				Name:   "export",
				Usage:  "Export every report as an xlsx workbook",
				Flags:  []cli.Flag{storesFlag()},
				Before: initEngine,
				After:  closeEngine,
				Action: runExport,
			},
			{
				Name:  "runs",
				Usage: "List recent generate and verify runs",
				Flags: []cli.Flag{
					storesFlag(),
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Before: initEngine,
				After:  closeEngine,
				Action: runRuns,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("engine command failed")
	}
}

func runGenerate(c *cli.Context) error {
	engine := engineFrom(c)
	asOf, err := parseDate(c.String("as-of"))
	if err != nil {
		return err
	}

	return engine.ForStores(c.Context, c.Int64Slice("store"), func(ctx context.Context, storeID int64) error {
		res, err := engine.Recommendations.Generate(ctx, domain.GenerateRequest{
			StoreID:     storeID,
			ItemIDs:     c.StringSlice("sku"),
			ForceUpdate: c.Bool("force"),
			AsOf:        asOf,
			Actor:       c.String("actor"),
		})
		if res != nil {
			printJSON(res.Run)
		}
		return err
	})
}

func runVerify(c *cli.Context) error {
	engine := engineFrom(c)
	asOf, err := parseDate(c.String("as-of"))
	if err != nil {
		return err
	}

	return engine.ForStores(c.Context, c.Int64Slice("store"), func(ctx context.Context, storeID int64) error {
		res, err := engine.Outcomes.VerifyOutcomes(ctx, storeID, asOf)
		if err != nil {
			return err
		}
		printJSON(res)
		return nil
	})
}

func runAudit(c *cli.Context) error {
	engine := engineFrom(c)
	var failed []error
	for _, storeID := range c.Int64Slice("store") {
		report, err := engine.Integrity.Audit(c.Context, storeID)
		if report != nil {
			printJSON(report)
		}
		if err != nil {
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}

func runPurge(c *cli.Context) error {
	engine := engineFrom(c)
	before, err := parseDate(c.String("before"))
	if err != nil {
		return err
	}
	before = before.Truncate(24 * time.Hour)

	for _, storeID := range c.Int64Slice("store") {
		res, err := engine.Integrity.Purge(c.Context, storeID, before)
		if err != nil {
			return err
		}
		printJSON(res)
	}
	return nil
}

func runExport(c *cli.Context) error {
	engine := engineFrom(c)
	return engine.ForStores(c.Context, c.Int64Slice("store"), func(ctx context.Context, storeID int64) error {
		res, err := engine.Reports.ExportWorkbook(ctx, storeID)
		if err != nil {
			return err
		}
		printJSON(res)
		return nil
	})
}

func runRuns(c *cli.Context) error {
	engine := engineFrom(c)
	for _, storeID := range c.Int64Slice("store") {
		runs, err := engine.Recommendations.Runs(c.Context, storeID, c.Int("limit"))
		if err != nil {
			return err
		}
		printJSON(runs)
	}
	return nil
}

// parseDate reads an optional YYYY-MM-DD value as the end of that UTC day.
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
	}
	return day.Add(24*time.Hour - time.Nanosecond), nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to print result")
	}
}
