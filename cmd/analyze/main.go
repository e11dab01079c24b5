package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/quantlens/eod-engine/internal/logger"
	"github.com/quantlens/eod-engine/internal/pipeline"
	"github.com/quantlens/eod-engine/internal/store"
	"github.com/quantlens/eod-engine/pkg/marketdata"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// newRunner wires a Runner with a progressbar from a config file. The
// returned cleanup closes the store and flushes the logger.
func newRunner(configPath string) (*pipeline.Runner, func(), error) {
	config, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	s, err := store.NewStore(config.DatabasePath, l)
	if err != nil {
		l.Sync()

		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	provider, err := marketdata.NewProvider(config.MarketData)
	if err != nil {
		s.Close()
		l.Sync()

		return nil, nil, fmt.Errorf("failed to create market data provider: %w", err)
	}

	runner, err := pipeline.NewRunner(config, s, provider, l)
	if err != nil {
		s.Close()
		l.Sync()

		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	var bar *progressbar.ProgressBar

	runner.SetProgress(func(stage string, current, total int) {
		if bar == nil || bar.GetMax() != total {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(fmt.Sprintf("Running %s", stage)),
				progressbar.OptionShowCount())
		}

		bar.Set(current)
	})

	cleanup := func() {
		if bar != nil {
			bar.Finish()
		}

		s.Close()
		l.Sync()
	}

	return runner, cleanup, nil
}

// analyzeAction runs the daily pipeline once for the given date.
func analyzeAction(ctx context.Context, cmd *cli.Command) error {
	runner, cleanup, err := newRunner(cmd.String("config"))
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := runner.RunDaily(ctx, cmd.Timestamp("date"), cmd.Bool("force"))
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	log.Printf("Run %s completed in %s: %d snapshots, %d decisions (%d strong), %d sectors, %d stops updated, %d deep dives, %d symbol errors.",
		summary.RunID, summary.Duration.Round(time.Millisecond),
		summary.Snapshots, summary.Decisions, summary.StrongCount,
		summary.Sectors, summary.StopsUpdated, summary.DeepDives, len(summary.SymbolErrors))

	return nil
}

// backfillAction ingests bar history for the whole universe without running
// the analysis stages.
func backfillAction(ctx context.Context, cmd *cli.Command) error {
	runner, cleanup, err := newRunner(cmd.String("config"))
	if err != nil {
		return err
	}
	defer cleanup()

	from := cmd.Timestamp("from")
	to := cmd.Timestamp("to")

	if to.Before(from) {
		return fmt.Errorf("backfill range is inverted: %s is after %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	succeeded, failures := runner.Backfill(ctx, from, to)

	log.Printf("Backfilled %d symbols (%d failed).", succeeded, len(failures))

	for _, failure := range failures {
		log.Printf("  %v", failure)
	}

	return nil
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to the pipeline config file",
		Value:    "config/pipeline.yaml",
		Required: false,
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "analyze",
		Usage: "Run the end-of-day analysis pipeline for one trading date",
		Flags: []cli.Flag{
			configFlag(),
			&cli.TimestampFlag{
				Name:    "date",
				Aliases: []string{"d"},
				Usage:   "Trading date in `YYYY-MM-DD` format. Defaults to today.",
				Value:   time.Now(),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
				Required: false,
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Re-run the date even if a run is already recorded",
			},
		},
		Action: analyzeAction,
		Commands: []*cli.Command{
			{
				Name:  "backfill",
				Usage: "Ingest bar history for every active symbol without analysis",
				Flags: []cli.Flag{
					configFlag(),
					&cli.TimestampFlag{
						Name:  "from",
						Usage: "Start of the backfill range in `YYYY-MM-DD` format",
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
						Required: true,
					},
					&cli.TimestampFlag{
						Name:  "to",
						Usage: "End of the backfill range in `YYYY-MM-DD` format. Defaults to today.",
						Value: time.Now(),
						Config: cli.TimestampConfig{
							Layouts: []string{"2006-01-02"},
						},
						Required: false,
					},
				},
				Action: backfillAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
