package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantlens/eod-engine/internal/api"
	"github.com/quantlens/eod-engine/internal/logger"
	"github.com/quantlens/eod-engine/internal/pipeline"
	"github.com/quantlens/eod-engine/internal/store"
	"github.com/quantlens/eod-engine/pkg/marketdata"
	"github.com/urfave/cli/v3"
)

// serveAction starts the HTTP API and blocks until interrupted.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	addr := cmd.String("addr")

	config, err := pipeline.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer l.Sync()

	s, err := store.NewStore(config.DatabasePath, l)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	provider, err := marketdata.NewProvider(config.MarketData)
	if err != nil {
		return fmt.Errorf("failed to create market data provider: %w", err)
	}

	runner, err := pipeline.NewRunner(config, s, provider, l)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	server := api.NewServer(addr, s, runner, l)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Printf("Serving on %s. Press Ctrl+C to stop.", server.Addr())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Stop(shutdownCtx)
}

func main() {
	cmd := &cli.Command{
		Name:  "server",
		Usage: "Serve analysis results over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the pipeline config file",
				Value:    "config/pipeline.yaml",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "addr",
				Aliases:  []string{"a"},
				Usage:    "Listen address",
				Value:    ":8080",
				Required: false,
			},
		},
		Action: serveAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
