package cluster_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteolab/storm-cluster-service/internal/cluster"
	"github.com/meteolab/storm-cluster-service/internal/domain"
)

func buildTime(t *testing.T, threshold time.Duration, events ...*domain.Event) []*domain.Storm {
	t.Helper()
	var storms []*domain.Storm
	err := cluster.NewTimeBuilder(threshold).Build(
		&sliceCursor{events: events}, 1,
		func(s *domain.Storm) error {
			storms = append(storms, s)
			return nil
		})
	require.NoError(t, err)
	return storms
}

func TestTimeBuilder_PartitionsEvents(t *testing.T) {
	threshold := 300 * time.Second
	events := []*domain.Event{
		ev(1, 0, 0, 0),
		ev(2, 10*time.Second, 0, 0),
		ev(3, 20*time.Second, 0, 0),
		ev(4, 400*time.Second, 0, 0),
		ev(5, 410*time.Second, 0, 0),
		ev(6, 900*time.Second, 0, 0),
	}

	storms := buildTime(t, threshold, events...)
	require.Equal(t, [][]int64{{1, 2, 3}, {4, 5}, {6}}, memberIDs(storms))

	// Partition invariants: no internal gap above the threshold, every
	// boundary gap above it.
	for _, s := range storms {
		for i := 1; i < len(s.Events); i++ {
			assert.LessOrEqual(t, s.Events[i].Time.Sub(s.Events[i-1].Time), threshold)
		}
	}
	for i := 1; i < len(storms); i++ {
		last := storms[i-1].Events[len(storms[i-1].Events)-1]
		first := storms[i].Events[0]
		assert.Greater(t, first.Time.Sub(last.Time), threshold)
	}
}

func TestTimeBuilder_SingleStorm(t *testing.T) {
	storms := buildTime(t, time.Minute,
		ev(1, 0, 0, 0),
		ev(2, 30*time.Second, 0, 0),
	)
	assert.Equal(t, [][]int64{{1, 2}}, memberIDs(storms))
}

func TestTimeBuilder_EmptyStream(t *testing.T) {
	storms := buildTime(t, time.Minute)
	assert.Empty(t, storms)
}

func TestTimeBuilder_EmitErrorAborts(t *testing.T) {
	err := cluster.NewTimeBuilder(time.Minute).Build(
		&sliceCursor{events: []*domain.Event{
			ev(1, 0, 0, 0),
			ev(2, 10*time.Minute, 0, 0),
		}}, 1,
		func(*domain.Storm) error { return errTestStorage })
	require.ErrorIs(t, err, errTestStorage)
}

func TestTimeBuilder_CursorErrorPropagates(t *testing.T) {
	cur := &sliceCursor{
		events: []*domain.Event{ev(1, 0, 0, 0), ev(2, time.Second, 0, 0)},
		failAt: 1,
	}
	err := cluster.NewTimeBuilder(time.Minute).Build(cur, 1,
		func(*domain.Storm) error { return nil })
	require.ErrorIs(t, err, errTestStorage)
}

func TestTimeDistanceBuilder_MergesWithinTimeAndDistance(t *testing.T) {
	b := cluster.NewTimeDistanceBuilder(300*time.Second, 10000)

	// Two strikes 5 km and 100 s apart merge; a third 100 s later but
	// 20 km from both starts a new storm.
	events := []*domain.Event{
		ev(1, 0, 0, 0),
		ev(2, 100*time.Second, 5000, 0),
		ev(3, 200*time.Second, 25000, 0),
	}
	storms := b.Assign(events, 1)
	assert.Equal(t, [][]int64{{1, 2}, {3}}, memberIDs(storms))
}

func TestTimeDistanceBuilder_DistanceBoundaryInclusive(t *testing.T) {
	b := cluster.NewTimeDistanceBuilder(300*time.Second, 10000)

	events := []*domain.Event{
		ev(1, 0, 0, 0),
		ev(2, 10*time.Second, 10000, 0), // exactly at the radius
		ev(3, 20*time.Second, 20001, 0), // 10001 m past the previous tail
	}
	storms := b.Assign(events, 1)
	assert.Equal(t, [][]int64{{1, 2}, {3}}, memberIDs(storms))
}

func TestTimeDistanceBuilder_TailScanStopsOnTime(t *testing.T) {
	b := cluster.NewTimeDistanceBuilder(300*time.Second, 10000)

	// Event 3 sits exactly on event 1, but the storm's newest member is
	// already out of the time window, so the backward scan stops there and
	// never reaches event 1.
	events := []*domain.Event{
		ev(1, 0, 0, 0),
		ev(2, 290*time.Second, 9000, 0),
		ev(3, 600*time.Second, 0, 0),
	}
	storms := b.Assign(events, 1)
	assert.Equal(t, [][]int64{{1, 2}, {3}}, memberIDs(storms))
}

func TestTimeDistanceBuilder_FirstFitWins(t *testing.T) {
	b := cluster.NewTimeDistanceBuilder(300*time.Second, 10000)

	// Event 4 is within reach of both storms; the older storm claims it.
	events := []*domain.Event{
		ev(1, 0, 0, 0),
		ev(2, 10*time.Second, 50000, 0),
		ev(3, 20*time.Second, 25000, 0),
		ev(4, 30*time.Second, 8000, 0),
	}
	storms := b.Assign(events, 1)
	require.Len(t, storms, 3)
	assert.Equal(t, [][]int64{{1, 4}, {2}, {3}}, memberIDs(storms))
}

func TestTimeDistanceBuilder_Deterministic(t *testing.T) {
	b := cluster.NewTimeDistanceBuilder(600*time.Second, 15000)

	makeEvents := func() []*domain.Event {
		rng := rand.New(rand.NewSource(42))
		events := make([]*domain.Event, 0, 300)
		offset := time.Duration(0)
		for i := 0; i < 300; i++ {
			offset += time.Duration(rng.Intn(120)) * time.Second
			events = append(events, ev(int64(i+1), offset,
				rng.Float64()*100000, rng.Float64()*100000))
		}
		return events
	}

	first := memberIDs(b.Assign(makeEvents(), 1))
	second := memberIDs(b.Assign(makeEvents(), 1))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("membership differs between identical runs (-first +second):\n%s", diff)
	}
}

func TestTimeDistanceBuilder_EmptyWindow(t *testing.T) {
	b := cluster.NewTimeDistanceBuilder(time.Minute, 1000)
	assert.Empty(t, b.Assign(nil, 1))
}
