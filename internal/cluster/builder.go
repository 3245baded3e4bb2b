package cluster

import (
	"fmt"
	"time"

	"github.com/meteolab/storm-cluster-service/internal/domain"
)

// TimeBuilder assigns events to storms on temporal proximity alone. It
// consumes the full range in one pass and produces a strict partition: every
// event lands in exactly one storm, no storm contains a consecutive gap
// above the threshold, and consecutive storms are separated by a gap above
// the threshold.
type TimeBuilder struct {
	threshold time.Duration
}

// NewTimeBuilder returns a builder that starts a new storm whenever the gap
// since the previous event exceeds threshold.
func NewTimeBuilder(threshold time.Duration) *TimeBuilder {
	return &TimeBuilder{threshold: threshold}
}

// Build streams the cursor in time order and calls emit for each finalized
// storm, including the last partial one at stream end. emit errors abort the
// pass.
func (b *TimeBuilder) Build(cur EventCursor, experimentID int64, emit func(*domain.Storm) error) error {
	var storm *domain.Storm
	var prev *domain.Event

	for cur.Next() {
		ev := cur.Event()
		if storm != nil && ev.Time.Sub(prev.Time) > b.threshold {
			if err := emit(storm); err != nil {
				return err
			}
			storm = nil
		}
		if storm == nil {
			storm = &domain.Storm{ExperimentID: experimentID}
		}
		storm.Events = append(storm.Events, ev)
		prev = ev
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("build time storms: %w", err)
	}

	if storm != nil {
		return emit(storm)
	}
	return nil
}

// TimeDistanceBuilder assigns the events of one candidate window to storms
// using greedy, first-fit time+distance matching.
type TimeDistanceBuilder struct {
	window   time.Duration
	distance float64 // meters
}

// NewTimeDistanceBuilder returns a builder that joins an event to a storm
// when some recent member is within window seconds and distance meters.
func NewTimeDistanceBuilder(window time.Duration, distance float64) *TimeDistanceBuilder {
	return &TimeDistanceBuilder{window: window, distance: distance}
}

// Assign processes events (time-ascending) in order. For each event it scans
// the active storms in creation order; within a storm it walks the member
// list backward and stops as soon as the time delta exceeds the window —
// members are time-ascending, so everything earlier is out of reach too.
// Any future change that inserts members out of order breaks that bound.
// Within the reachable tail a squared planar distance at or below distance²
// claims the event. An unclaimed event starts a new storm. No reassignment
// or merging happens afterwards, which makes the outcome deterministic for
// identical input.
func (b *TimeDistanceBuilder) Assign(events []*domain.Event, experimentID int64) []*domain.Storm {
	distanceSq := b.distance * b.distance
	var storms []*domain.Storm

	for _, ev := range events {
		assigned := false
		for _, storm := range storms {
			for i := len(storm.Events) - 1; i >= 0; i-- {
				member := storm.Events[i]
				if ev.Time.Sub(member.Time) > b.window {
					break
				}
				dx := member.X25831 - ev.X25831
				dy := member.Y25831 - ev.Y25831
				if dx*dx+dy*dy <= distanceSq {
					storm.Events = append(storm.Events, ev)
					assigned = true
					break
				}
			}
			if assigned {
				break
			}
		}
		if !assigned {
			storms = append(storms, &domain.Storm{
				ExperimentID: experimentID,
				Events:       []*domain.Event{ev},
			})
		}
	}
	return storms
}
