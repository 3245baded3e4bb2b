package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/meteolab/storm-cluster-service/internal/domain"
)

// Extractor segments a chronological event stream into maximal candidate
// windows separated by gaps larger than maxGap. Windows are produced lazily,
// one fresh range query each, so peak memory is bounded by one window.
// The sequence is finite and non-restartable.
type Extractor struct {
	source   EventSource
	provider string
	cursor   time.Time
	to       time.Time
	maxGap   time.Duration
	done     bool
}

// NewExtractor prepares extraction over [from, to).
func NewExtractor(source EventSource, provider string, from, to time.Time, maxGap time.Duration) *Extractor {
	return &Extractor{
		source:   source,
		provider: provider,
		cursor:   from,
		to:       to,
		maxGap:   maxGap,
	}
}

// NextWindow returns the next candidate window, or (nil, nil) once the range
// is exhausted. A window closes at the first inter-event gap above maxGap;
// the scan cursor then advances to one second past the window's last member,
// so the event that broke the window opens the next one and the scan always
// moves forward. A single-event window is valid.
func (e *Extractor) NextWindow(ctx context.Context) ([]*domain.Event, error) {
	if e.done || !e.cursor.Before(e.to) {
		return nil, nil
	}

	cur, err := e.source.EventRange(ctx, e.provider, e.cursor, e.to)
	if err != nil {
		return nil, fmt.Errorf("extract window: %w", err)
	}
	defer cur.Close() //nolint:errcheck // read-only cursor

	var window []*domain.Event
	var prev *domain.Event
	for cur.Next() {
		ev := cur.Event()
		if prev != nil && ev.Time.Sub(prev.Time) > e.maxGap {
			e.cursor = prev.Time.Add(time.Second)
			return window, nil
		}
		window = append(window, ev)
		prev = ev
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("extract window: %w", err)
	}

	// Stream exhausted: emit the partial window, if any, and stop.
	e.done = true
	if len(window) == 0 {
		return nil, nil
	}
	return window, nil
}
