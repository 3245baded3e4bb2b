// Package cluster contains the clustering engine: the gap-bounded window
// extractor, the TIME and TIME_DISTANCE storm builders, the experiment
// registry, and the run orchestration that ties them to the storage and
// geodesy collaborators.
package cluster

import (
	"context"
	"time"

	"github.com/meteolab/storm-cluster-service/internal/domain"
)

// EventCursor streams events from an open range query, one at a time, in
// ascending time order. Shaped like sql.Rows so storage adapters wrap their
// cursors directly.
type EventCursor interface {
	Next() bool
	Event() *domain.Event
	Err() error
	Close() error
}

// EventSource opens a streamed query over a provider's events with
// timestamps in [from, to). The full range is never materialized.
type EventSource interface {
	EventRange(ctx context.Context, provider string, from, to time.Time) (EventCursor, error)
}

// ExperimentStore looks up and creates experiments. InsertExperiment must
// enforce identity uniqueness at the storage layer and return
// domain.ErrDuplicateExperiment on violation.
type ExperimentStore interface {
	FindExperiment(ctx context.Context, algorithm domain.Algorithm, params map[string]string, provider string) (int64, bool, error)
	InsertExperiment(ctx context.Context, algorithm domain.Algorithm, params map[string]string, provider string) (int64, error)
}

// StormSink persists one storm — derived attributes plus ordered member
// associations — as a unit.
type StormSink interface {
	WriteStorm(ctx context.Context, storm *domain.Storm) error
}

// Store is the full storage collaborator a clustering run needs.
type Store interface {
	EventSource
	ExperimentStore
	StormSink
}
