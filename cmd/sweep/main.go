// Command sweep runs a TIME_DISTANCE sensitivity analysis: the full
// clustering pipeline once per (distance, time) grid point, distributed over
// a worker pool. Progress is reported on the terminal and exposed as
// Prometheus metrics over HTTP for long sweeps.
//
// Usage:
//
//	sweep -provider Meteocat -gap 1h \
//	  -from 2006-01-01T00:00:00Z -to 2021-01-01T00:00:01Z \
//	  -distances 5000,10000,15000 -times 10m,20m,30m
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	httpadapter "github.com/meteolab/storm-cluster-service/internal/adapter/http"
	"github.com/meteolab/storm-cluster-service/internal/adapter/sqlite"
	"github.com/meteolab/storm-cluster-service/internal/cluster"
	"github.com/meteolab/storm-cluster-service/internal/config"
	"github.com/meteolab/storm-cluster-service/internal/domain"
	"github.com/meteolab/storm-cluster-service/internal/geo"
	"github.com/meteolab/storm-cluster-service/internal/observability"
	"github.com/meteolab/storm-cluster-service/internal/sweep"
)

func main() {
	if err := run(); err != nil {
		slog.Error("sweep failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	provider := flag.String("provider", "", "data provider name")
	from := flag.String("from", "2006-01-01T00:00:00Z", "start of the clustering range (RFC 3339)")
	to := flag.String("to", "2021-01-01T00:00:01Z", "end of the clustering range (RFC 3339, exclusive)")
	gap := flag.Duration("gap", time.Hour, "maximum gap between lightnings in one window")
	distancesFlag := flag.String("distances", "", "comma-separated matching radii in meters (default 5-25 km)")
	timesFlag := flag.String("times", "", "comma-separated matching windows, e.g. 10m,20m (default 10-30 min)")
	flag.Parse()

	if *provider == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -provider")
	}

	fromDate, err := time.Parse(time.RFC3339, *from)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	toDate, err := time.Parse(time.RFC3339, *to)
	if err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}

	distances, times, err := parseGrid(*distancesFlag, *timesFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	calc := domain.NewFeatureCalculator(geo.NewTransformer(), geo.Hull{})

	// Each worker opens its own database connection pool.
	factory := func() (sweep.Runner, func() error, error) {
		store, err := sqlite.Open(cfg.DatabasePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return cluster.NewRunner(store, calc, logger, metrics), store.Close, nil
	}

	driver := sweep.NewDriver(factory, logger, metrics)

	bar := progressbar.Default(int64(len(distances)*len(times)), "sweeping")
	driver.OnResult = func(_ sweep.GridPoint, _ error) {
		_ = bar.Add(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, driver, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepErr := driver.Run(ctx, sweep.Config{
		Provider:  *provider,
		From:      fromDate,
		To:        toDate,
		Gap:       *gap,
		Distances: distances,
		Times:     times,
		Workers:   cfg.Workers,
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return sweepErr
}

func parseGrid(distancesFlag, timesFlag string) ([]float64, []time.Duration, error) {
	distances, times := sweep.DefaultGrid()

	if distancesFlag != "" {
		distances = distances[:0]
		for _, part := range strings.Split(distancesFlag, ",") {
			d, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil || d <= 0 {
				return nil, nil, fmt.Errorf("invalid -distances entry %q", part)
			}
			distances = append(distances, d)
		}
	}

	if timesFlag != "" {
		times = times[:0]
		for _, part := range strings.Split(timesFlag, ",") {
			t, err := time.ParseDuration(strings.TrimSpace(part))
			if err != nil || t <= 0 {
				return nil, nil, fmt.Errorf("invalid -times entry %q", part)
			}
			times = append(times, t)
		}
	}

	return distances, times, nil
}
