// Package sweep runs the clustering pipeline across a cartesian grid of
// TIME_DISTANCE parameters, one independent run per grid point, on a fixed
// worker pool.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meteolab/storm-cluster-service/internal/cluster"
	"github.com/meteolab/storm-cluster-service/internal/domain"
	"github.com/meteolab/storm-cluster-service/internal/observability"
)

// GridPoint is one (distance, time) parameter combination.
type GridPoint struct {
	Distance float64 // meters
	Time     time.Duration
}

// Config describes a sensitivity sweep.
type Config struct {
	Provider  string
	From      time.Time
	To        time.Time
	Gap       time.Duration
	Distances []float64       // meters
	Times     []time.Duration // matching windows
	Workers   int             // <= 0 selects available parallelism minus two
}

// DefaultGrid returns the standard sensitivity grid: 5–25 km matching radii
// crossed with 10–30 minute windows.
func DefaultGrid() ([]float64, []time.Duration) {
	distances := make([]float64, 0, 5)
	for _, km := range []float64{5, 10, 15, 20, 25} {
		distances = append(distances, km*1000)
	}
	times := make([]time.Duration, 0, 11)
	for minutes := 10; minutes <= 30; minutes += 2 {
		times = append(times, time.Duration(minutes)*time.Minute)
	}
	return distances, times
}

// Runner executes one clustering run; satisfied by *cluster.Runner.
type Runner interface {
	Run(ctx context.Context, cfg cluster.RunConfig) error
}

// RunnerFactory builds a runner owning its own storage connection, plus a
// close function. Called once per worker so no connection is shared across
// workers.
type RunnerFactory func() (Runner, func() error, error)

// Driver fans grid points out to a fixed-size worker pool. Grid points are
// isolated from each other: a duplicate experiment or storage failure in one
// leaves the siblings running.
type Driver struct {
	factory RunnerFactory
	logger  *slog.Logger
	metrics *observability.Metrics

	// OnResult, when set, is invoked after each grid point with its error
	// (nil on success). Used by the CLI for progress reporting.
	OnResult func(GridPoint, error)

	completed atomic.Int64
}

// NewDriver builds a sweep driver.
func NewDriver(factory RunnerFactory, logger *slog.Logger, metrics *observability.Metrics) *Driver {
	return &Driver{factory: factory, logger: logger, metrics: metrics}
}

// CheckReadiness reports ready once at least one grid point has finished.
func (d *Driver) CheckReadiness(_ context.Context) error {
	if d.completed.Load() == 0 {
		return errors.New("no grid point has completed yet")
	}
	return nil
}

// Run executes every grid point and returns once all workers drain. Only a
// cancelled context stops the sweep early; individual failures are logged
// and counted, never propagated to siblings.
func (d *Driver) Run(ctx context.Context, cfg Config) error {
	if len(cfg.Distances) == 0 || len(cfg.Times) == 0 {
		return errors.New("sweep: empty parameter grid")
	}

	grid := make([]GridPoint, 0, len(cfg.Distances)*len(cfg.Times))
	for _, distance := range cfg.Distances {
		for _, window := range cfg.Times {
			grid = append(grid, GridPoint{Distance: distance, Time: window})
		}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 2
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(grid) {
		workers = len(grid)
	}

	d.logger.Info("sweep started", "grid_points", len(grid), "workers", workers)

	jobs := make(chan GridPoint)
	var wg sync.WaitGroup
	// Shared run counter, used only to label worker log lines.
	var runID atomic.Int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx, cfg, jobs, &runID)
		}()
	}

feed:
	for _, point := range grid {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- point:
		}
	}
	close(jobs)
	wg.Wait()

	d.logger.Info("sweep finished", "completed", d.completed.Load())
	return ctx.Err()
}

// work owns one storage connection and executes grid points serially until
// the job channel closes.
func (d *Driver) work(ctx context.Context, cfg Config, jobs <-chan GridPoint, runID *atomic.Int64) {
	runner, closeRunner, err := d.factory()
	if err != nil {
		d.logger.Error("worker setup failed, abandoning its grid points", "error", err)
		for point := range jobs {
			d.finish(point, fmt.Errorf("worker setup failed: %w", err))
		}
		return
	}
	defer func() {
		if err := closeRunner(); err != nil {
			d.logger.Error("worker close failed", "error", err)
		}
	}()

	for point := range jobs {
		id := runID.Add(1)
		logger := d.logger.With("run", id, "distance", point.Distance, "time", point.Time)

		d.metrics.ActiveWorkers.Inc()
		start := time.Now()
		err := runner.Run(ctx, cluster.RunConfig{
			Algorithm:         domain.AlgorithmTimeDistance,
			Provider:          cfg.Provider,
			From:              cfg.From,
			To:                cfg.To,
			AlgorithmTime:     point.Time,
			AlgorithmDistance: point.Distance,
			Gap:               cfg.Gap,
		})
		d.metrics.ActiveWorkers.Dec()

		switch {
		case errors.Is(err, domain.ErrDuplicateExperiment):
			d.metrics.RunsSkipped.Inc()
			logger.Warn("grid point skipped", "reason", "experiment already exists")
		case err != nil:
			logger.Error("grid point failed", "error", err, "elapsed", time.Since(start))
		default:
			logger.Info("grid point finished", "elapsed", time.Since(start))
		}
		d.finish(point, err)
	}
}

func (d *Driver) finish(point GridPoint, err error) {
	d.completed.Add(1)
	if d.OnResult != nil {
		d.OnResult(point, err)
	}
}
