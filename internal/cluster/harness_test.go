package cluster_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/meteolab/storm-cluster-service/internal/cluster"
	"github.com/meteolab/storm-cluster-service/internal/domain"
)

var (
	base           = time.Date(2020, time.June, 12, 14, 0, 0, 0, time.UTC)
	errTestStorage = errors.New("storage unavailable")
)

// ev builds an event at base+offset with the given projected coordinates.
// Geographic coordinates are scaled down so they stay plausible lon/lats.
func ev(id int64, offset time.Duration, x, y float64) *domain.Event {
	return &domain.Event{
		ID:       id,
		Time:     base.Add(offset),
		X4258:    x / 1e6,
		Y4258:    41 + y/1e6,
		X25831:   x,
		Y25831:   y,
		Provider: "TestProvider",
	}
}

// sliceCursor walks a pre-built event slice, optionally failing mid-stream.
type sliceCursor struct {
	events  []*domain.Event
	i       int
	current *domain.Event
	failAt  int // 0 = never
	err     error
	closed  bool
}

func (c *sliceCursor) Next() bool {
	if c.failAt > 0 && c.i >= c.failAt {
		c.err = errTestStorage
		return false
	}
	if c.i >= len(c.events) {
		return false
	}
	c.current = c.events[c.i]
	c.i++
	return true
}

func (c *sliceCursor) Event() *domain.Event { return c.current }
func (c *sliceCursor) Err() error           { return c.err }
func (c *sliceCursor) Close() error         { c.closed = true; return nil }

// fakeStore is an in-memory cluster.Store. Events must be time-ascending.
type fakeStore struct {
	mu sync.Mutex

	events []*domain.Event

	experiments map[string]int64
	nextExpID   int64

	storms []*domain.Storm

	rangeErr  error
	insertErr error
	writeErr  error
}

func newFakeStore(events ...*domain.Event) *fakeStore {
	return &fakeStore{
		events:      events,
		experiments: make(map[string]int64),
	}
}

func identityKey(algorithm domain.Algorithm, params map[string]string, provider string) string {
	return string(algorithm) + "|" + domain.CanonicalKey(params) + "|" + provider
}

func (s *fakeStore) EventRange(_ context.Context, provider string, from, to time.Time) (cluster.EventCursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rangeErr != nil {
		return nil, s.rangeErr
	}

	var filtered []*domain.Event
	for _, e := range s.events {
		if e.Provider == provider && !e.Time.Before(from) && e.Time.Before(to) {
			filtered = append(filtered, e)
		}
	}
	return &sliceCursor{events: filtered}, nil
}

func (s *fakeStore) FindExperiment(_ context.Context, algorithm domain.Algorithm, params map[string]string, provider string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.experiments[identityKey(algorithm, params, provider)]
	return id, ok, nil
}

func (s *fakeStore) InsertExperiment(_ context.Context, algorithm domain.Algorithm, params map[string]string, provider string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return 0, s.insertErr
	}

	key := identityKey(algorithm, params, provider)
	if _, ok := s.experiments[key]; ok {
		return 0, domain.ErrDuplicateExperiment
	}
	s.nextExpID++
	s.experiments[key] = s.nextExpID
	return s.nextExpID, nil
}

func (s *fakeStore) WriteStorm(_ context.Context, storm *domain.Storm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.storms = append(s.storms, storm)
	return nil
}

func (s *fakeStore) writtenStorms() []*domain.Storm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Storm(nil), s.storms...)
}

func eventIDs(events []*domain.Event) []int64 {
	if events == nil {
		return nil
	}
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	return ids
}

// memberIDs flattens a storm list into per-storm event ID sequences.
func memberIDs(storms []*domain.Storm) [][]int64 {
	out := make([][]int64, len(storms))
	for i, s := range storms {
		ids := make([]int64, len(s.Events))
		for j, e := range s.Events {
			ids[j] = e.ID
		}
		out[i] = ids
	}
	return out
}
