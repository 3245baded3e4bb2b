package sweep_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteolab/storm-cluster-service/internal/cluster"
	"github.com/meteolab/storm-cluster-service/internal/domain"
	"github.com/meteolab/storm-cluster-service/internal/observability"
	"github.com/meteolab/storm-cluster-service/internal/sweep"
)

// fakeRunner records the configs it ran and answers from errByKey.
type fakeRunner struct {
	mu       sync.Mutex
	configs  []cluster.RunConfig
	errByKey map[string]error
	block    chan struct{} // when set, Run waits for ctx or the channel
}

func key(cfg cluster.RunConfig) string {
	return domain.CanonicalKey(domain.TimeDistanceParams(cfg.AlgorithmTime.Seconds(), cfg.AlgorithmDistance))
}

func (r *fakeRunner) Run(ctx context.Context, cfg cluster.RunConfig) error {
	if r.block != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.block:
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
	return r.errByKey[key(cfg)]
}

func (r *fakeRunner) ran() []cluster.RunConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]cluster.RunConfig(nil), r.configs...)
}

func newTestDriver(runner *fakeRunner) *sweep.Driver {
	factory := func() (sweep.Runner, func() error, error) {
		return runner, func() error { return nil }, nil
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return sweep.NewDriver(factory, logger, observability.NewMetricsForTesting())
}

func sweepConfig() sweep.Config {
	from := time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC)
	return sweep.Config{
		Provider:  "TestProvider",
		From:      from,
		To:        from.AddDate(1, 0, 0),
		Gap:       time.Hour,
		Distances: []float64{5000, 10000},
		Times:     []time.Duration{10 * time.Minute, 20 * time.Minute},
		Workers:   2,
	}
}

func TestDriver_RunsEveryGridPoint(t *testing.T) {
	runner := &fakeRunner{}
	driver := newTestDriver(runner)
	cfg := sweepConfig()

	require.NoError(t, driver.Run(context.Background(), cfg))

	ran := runner.ran()
	require.Len(t, ran, 4)

	seen := make(map[string]bool)
	for _, rc := range ran {
		assert.Equal(t, domain.AlgorithmTimeDistance, rc.Algorithm)
		assert.Equal(t, cfg.Provider, rc.Provider)
		assert.Equal(t, cfg.From, rc.From)
		assert.Equal(t, cfg.To, rc.To)
		assert.Equal(t, cfg.Gap, rc.Gap)
		seen[key(rc)] = true
	}
	assert.Len(t, seen, 4) // every combination exactly once
}

func TestDriver_OnResultPerGridPoint(t *testing.T) {
	runner := &fakeRunner{}
	driver := newTestDriver(runner)

	var mu sync.Mutex
	var results []sweep.GridPoint
	driver.OnResult = func(p sweep.GridPoint, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		results = append(results, p)
	}

	require.NoError(t, driver.Run(context.Background(), sweepConfig()))
	assert.Len(t, results, 4)
}

func TestDriver_DuplicateDoesNotStopSiblings(t *testing.T) {
	dupKey := domain.CanonicalKey(domain.TimeDistanceParams((10 * time.Minute).Seconds(), 5000))
	runner := &fakeRunner{errByKey: map[string]error{
		dupKey: domain.ErrDuplicateExperiment,
	}}
	driver := newTestDriver(runner)

	var mu sync.Mutex
	var failed, skipped, ok int
	driver.OnResult = func(_ sweep.GridPoint, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case errors.Is(err, domain.ErrDuplicateExperiment):
			skipped++
		case err != nil:
			failed++
		default:
			ok++
		}
	}

	require.NoError(t, driver.Run(context.Background(), sweepConfig()))
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 3, ok)
}

func TestDriver_RunErrorDoesNotStopSiblings(t *testing.T) {
	badKey := domain.CanonicalKey(domain.TimeDistanceParams((20 * time.Minute).Seconds(), 10000))
	runner := &fakeRunner{errByKey: map[string]error{
		badKey: errors.New("disk full"),
	}}
	driver := newTestDriver(runner)

	require.NoError(t, driver.Run(context.Background(), sweepConfig()))
	assert.Len(t, runner.ran(), 4)
}

func TestDriver_FactoryFailureFailsItsPoints(t *testing.T) {
	factory := func() (sweep.Runner, func() error, error) {
		return nil, nil, errors.New("cannot open database")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	driver := sweep.NewDriver(factory, logger, observability.NewMetricsForTesting())

	var mu sync.Mutex
	var failures int
	driver.OnResult = func(_ sweep.GridPoint, err error) {
		mu.Lock()
		defer mu.Unlock()
		require.Error(t, err)
		failures++
	}

	require.NoError(t, driver.Run(context.Background(), sweepConfig()))
	assert.Equal(t, 4, failures)
}

func TestDriver_EmptyGridRejected(t *testing.T) {
	driver := newTestDriver(&fakeRunner{})
	cfg := sweepConfig()
	cfg.Distances = nil
	assert.Error(t, driver.Run(context.Background(), cfg))
}

func TestDriver_Readiness(t *testing.T) {
	driver := newTestDriver(&fakeRunner{})
	ctx := context.Background()

	assert.Error(t, driver.CheckReadiness(ctx))
	require.NoError(t, driver.Run(ctx, sweepConfig()))
	assert.NoError(t, driver.CheckReadiness(ctx))
}

func TestDriver_CancelStopsSweep(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	driver := newTestDriver(runner)
	cfg := sweepConfig()
	cfg.Workers = 1

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- driver.Run(ctx, cfg) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not stop after cancellation")
	}
}

func TestDefaultGrid(t *testing.T) {
	distances, times := sweep.DefaultGrid()
	assert.Equal(t, []float64{5000, 10000, 15000, 20000, 25000}, distances)
	require.Len(t, times, 11)
	assert.Equal(t, 10*time.Minute, times[0])
	assert.Equal(t, 30*time.Minute, times[10])
}
