// Command genevents seeds a database with synthetic lightning events so the
// clustering pipeline can be exercised without a live provider feed. Events
// are generated as drifting bursts over Catalonia: each burst picks a seed
// location and wanders while emitting strikes at short random intervals, so
// the output actually clusters.
//
// Usage:
//
//	genevents -provider Meteocat -start 2020-06-01T00:00:00Z -bursts 40 -seed 7
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"time"

	"github.com/meteolab/storm-cluster-service/internal/adapter/sqlite"
	"github.com/meteolab/storm-cluster-service/internal/config"
	"github.com/meteolab/storm-cluster-service/internal/domain"
	"github.com/meteolab/storm-cluster-service/internal/geo"
	"github.com/meteolab/storm-cluster-service/internal/observability"
)

// Rough bounding box of Catalonia in ETRS89 lon/lat.
const (
	minLon = 0.2
	maxLon = 3.3
	minLat = 40.5
	maxLat = 42.9
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	provider := flag.String("provider", domain.MeteocatProvider, "data provider name to register and tag events with")
	start := flag.String("start", "2020-06-01T00:00:00Z", "timestamp of the first burst (RFC 3339)")
	bursts := flag.Int("bursts", 40, "number of storm bursts to generate")
	seed := flag.Int64("seed", 1, "random seed, for reproducible datasets")
	flag.Parse()

	startTime, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	store, err := sqlite.Open(cfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck // exiting

	ctx := context.Background()
	if err := store.EnsureProvider(ctx, *provider, "synthetic data"); err != nil {
		return err
	}

	events, err := generate(*provider, startTime, *bursts, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}
	if err := store.InsertEvents(ctx, events); err != nil {
		return err
	}

	log.Printf("inserted %d events in %d bursts starting %s", len(events), *bursts, startTime)
	return nil
}

func generate(provider string, start time.Time, bursts int, rng *rand.Rand) ([]*domain.Event, error) {
	transformer := geo.NewTransformer()

	var events []*domain.Event
	burstStart := start
	for b := 0; b < bursts; b++ {
		lon := minLon + rng.Float64()*(maxLon-minLon)
		lat := minLat + rng.Float64()*(maxLat-minLat)
		count := 5 + rng.Intn(200)

		t := burstStart
		for i := 0; i < count; i++ {
			x, y, err := transformer.Transform(lon, lat, domain.EPSGGeographic, domain.EPSGProjected)
			if err != nil {
				return nil, err
			}
			multiplicity := 1 + rng.Intn(4)
			events = append(events, &domain.Event{
				Time:     t,
				X4258:    lon,
				Y4258:    lat,
				X25831:   x,
				Y25831:   y,
				Provider: provider,
				Payload: domain.MeteocatPayload{
					MeteocatID:       rng.Int63n(1 << 40),
					PeakCurrent:      -80 + rng.Float64()*160,
					ChiSquared:       rng.Float64() * 10,
					EllipseMajorAxis: 200 + rng.Float64()*3000,
					EllipseMinorAxis: 100 + rng.Float64()*1000,
					EllipseAngle:     rng.Float64() * 360,
					NumberOfSensors:  2 + rng.Intn(10),
					HitGround:        rng.Float64() < 0.7,
					Multiplicity:     &multiplicity,
				},
			})

			// Drift the burst and advance time a few seconds per strike.
			lon += (rng.Float64() - 0.5) * 0.02
			lat += (rng.Float64() - 0.5) * 0.02
			t = t.Add(time.Duration(1+rng.Intn(30)) * time.Second)
		}

		// Separate bursts by well over typical window gaps.
		burstStart = t.Add(time.Duration(2+rng.Intn(10)) * time.Hour)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
	return events, nil
}
