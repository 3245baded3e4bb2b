// Command cluster executes one clustering run: it registers the experiment
// for the given algorithm and parameters, clusters the provider's lightning
// events over the date range, and persists the resulting storms.
//
// Usage:
//
//	cluster -provider Meteocat -algorithm TIME_DISTANCE \
//	  -from 2006-01-01T00:00:00Z -to 2021-01-01T00:00:01Z \
//	  -time 10m -distance 15000 -gap 1h
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meteolab/storm-cluster-service/internal/adapter/sqlite"
	"github.com/meteolab/storm-cluster-service/internal/cluster"
	"github.com/meteolab/storm-cluster-service/internal/config"
	"github.com/meteolab/storm-cluster-service/internal/domain"
	"github.com/meteolab/storm-cluster-service/internal/geo"
	"github.com/meteolab/storm-cluster-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, domain.ErrDuplicateExperiment) {
			// Already reported by the runner; nothing new was written.
			os.Exit(0)
		}
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	provider := flag.String("provider", "", "data provider name")
	algorithm := flag.String("algorithm", "", "clustering algorithm (TIME or TIME_DISTANCE)")
	from := flag.String("from", "2006-01-01T00:00:00Z", "start of the clustering range (RFC 3339)")
	to := flag.String("to", "2021-01-01T00:00:01Z", "end of the clustering range (RFC 3339, exclusive)")
	algTime := flag.Duration("time", 0, "time threshold / matching window")
	algDistance := flag.Float64("distance", 0, "matching radius in meters (TIME_DISTANCE)")
	gap := flag.Duration("gap", 0, "maximum gap between lightnings in one window (TIME_DISTANCE)")
	flag.Parse()

	if *provider == "" || *algorithm == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -provider, -algorithm")
	}

	fromDate, err := time.Parse(time.RFC3339, *from)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	toDate, err := time.Parse(time.RFC3339, *to)
	if err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	store, err := sqlite.Open(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // exiting

	calc := domain.NewFeatureCalculator(geo.NewTransformer(), geo.Hull{})
	runner := cluster.NewRunner(store, calc, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runner.Run(ctx, cluster.RunConfig{
		Algorithm:         domain.Algorithm(*algorithm),
		Provider:          *provider,
		From:              fromDate,
		To:                toDate,
		AlgorithmTime:     *algTime,
		AlgorithmDistance: *algDistance,
		Gap:               *gap,
	})
}
