package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/meteolab/storm-cluster-service/internal/domain"
	"github.com/meteolab/storm-cluster-service/internal/observability"
)

// RunConfig describes one clustering run.
type RunConfig struct {
	Algorithm domain.Algorithm
	Provider  string
	From      time.Time
	To        time.Time

	// AlgorithmTime is the storm-switching threshold for TIME and the
	// tail-matching window for TIME_DISTANCE.
	AlgorithmTime time.Duration
	// AlgorithmDistance is the TIME_DISTANCE matching radius in meters.
	AlgorithmDistance float64
	// Gap bounds candidate windows for TIME_DISTANCE.
	Gap time.Duration
}

func (cfg RunConfig) validate() error {
	if cfg.Provider == "" {
		return errors.New("run config: provider is required")
	}
	if !cfg.From.Before(cfg.To) {
		return errors.New("run config: from must precede to")
	}
	switch cfg.Algorithm {
	case domain.AlgorithmTime:
		if cfg.AlgorithmTime <= 0 {
			return errors.New("run config: TIME requires a positive time parameter")
		}
	case domain.AlgorithmTimeDistance:
		if cfg.AlgorithmTime <= 0 || cfg.AlgorithmDistance <= 0 {
			return errors.New("run config: TIME_DISTANCE requires positive time and distance parameters")
		}
		if cfg.Gap <= 0 {
			return errors.New("run config: TIME_DISTANCE requires a positive window gap")
		}
	default:
		if !cfg.Algorithm.Valid() {
			return fmt.Errorf("run config: unknown algorithm %q", cfg.Algorithm)
		}
		return fmt.Errorf("run config: algorithm %s is not implemented", cfg.Algorithm)
	}
	return nil
}

// Runner executes one complete clustering run: register the experiment,
// extract, build, compute features, persist. Runs are strictly sequential
// inside — correctness depends on chronological processing order.
type Runner struct {
	store    Store
	registry *Registry
	calc     *domain.FeatureCalculator
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewRunner wires a run pipeline over the given collaborators.
func NewRunner(store Store, calc *domain.FeatureCalculator, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		store:    store,
		registry: NewRegistry(store),
		calc:     calc,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes cfg to completion. It returns an error wrapping
// domain.ErrDuplicateExperiment when an identical experiment already exists;
// callers treat that as a skip, not a failure. Storms written before a
// mid-run failure are not rolled back; a rerun restarts from cfg.From and is
// guarded only by experiment identity.
func (r *Runner) Run(ctx context.Context, cfg RunConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	var params map[string]string
	switch cfg.Algorithm {
	case domain.AlgorithmTime:
		params = domain.TimeParams(cfg.AlgorithmTime.Seconds())
	case domain.AlgorithmTimeDistance:
		params = domain.TimeDistanceParams(cfg.AlgorithmTime.Seconds(), cfg.AlgorithmDistance)
	}

	experimentID, created, err := r.registry.CreateOrGet(ctx, cfg.Algorithm, params, cfg.Provider)
	if err != nil {
		r.metrics.RunsFailed.Inc()
		return err
	}
	if !created {
		r.metrics.DuplicateExperiments.Inc()
		r.logger.Warn("experiment already exists, skipping run",
			"algorithm", cfg.Algorithm, "parameters", domain.CanonicalKey(params), "provider", cfg.Provider)
		return fmt.Errorf("%s %s for %s: %w", cfg.Algorithm, domain.CanonicalKey(params), cfg.Provider, domain.ErrDuplicateExperiment)
	}
	r.metrics.ExperimentsCreated.Inc()

	r.logger.Info("run started",
		"experiment", experimentID,
		"algorithm", cfg.Algorithm,
		"parameters", domain.CanonicalKey(params),
		"from", cfg.From,
		"to", cfg.To,
	)

	start := time.Now()
	switch cfg.Algorithm {
	case domain.AlgorithmTime:
		err = r.runTime(ctx, cfg, experimentID)
	case domain.AlgorithmTimeDistance:
		err = r.runTimeDistance(ctx, cfg, experimentID)
	}
	if err != nil {
		r.metrics.RunsFailed.Inc()
		return err
	}

	r.metrics.RunsCompleted.Inc()
	r.metrics.RunDuration.Observe(time.Since(start).Seconds())
	r.logger.Info("run finished", "experiment", experimentID, "elapsed", time.Since(start))
	return nil
}

// runTime streams the whole range once; no windowing.
func (r *Runner) runTime(ctx context.Context, cfg RunConfig, experimentID int64) error {
	cur, err := r.store.EventRange(ctx, cfg.Provider, cfg.From, cfg.To)
	if err != nil {
		return fmt.Errorf("open event range: %w", err)
	}
	defer cur.Close() //nolint:errcheck // read-only cursor

	builder := NewTimeBuilder(cfg.AlgorithmTime)
	return builder.Build(cur, experimentID, func(storm *domain.Storm) error {
		return r.finalize(ctx, storm)
	})
}

// runTimeDistance processes one gap-bounded window at a time, each window
// independent of the others.
func (r *Runner) runTimeDistance(ctx context.Context, cfg RunConfig, experimentID int64) error {
	extractor := NewExtractor(r.store, cfg.Provider, cfg.From, cfg.To, cfg.Gap)
	builder := NewTimeDistanceBuilder(cfg.AlgorithmTime, cfg.AlgorithmDistance)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		window, err := extractor.NextWindow(ctx)
		if err != nil {
			return err
		}
		if window == nil {
			return nil
		}

		r.metrics.WindowSize.Observe(float64(len(window)))
		r.logger.Info("window extracted",
			"events", len(window),
			"from", window[0].Time,
			"to", window[len(window)-1].Time,
		)

		storms := builder.Assign(window, experimentID)
		for _, storm := range storms {
			if err := r.finalize(ctx, storm); err != nil {
				return err
			}
		}
		r.logger.Info("window processed", "events", len(window), "storms", len(storms))
	}
}

// finalize computes derived features and persists the storm as a unit.
func (r *Runner) finalize(ctx context.Context, storm *domain.Storm) error {
	if err := r.calc.Compute(storm); err != nil {
		return err
	}
	if err := r.store.WriteStorm(ctx, storm); err != nil {
		return fmt.Errorf("write storm: %w", err)
	}
	r.metrics.EventsProcessed.Add(float64(len(storm.Events)))
	r.metrics.StormsWritten.Inc()
	r.metrics.StormSize.Observe(float64(len(storm.Events)))
	return nil
}
