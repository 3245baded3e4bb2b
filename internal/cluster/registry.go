package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/meteolab/storm-cluster-service/internal/domain"
)

// Registry creates or looks up experiment identities. Its own lookup is a
// fast path; the storage uniqueness constraint is the authoritative guard,
// so losing an insert race still resolves to the surviving row.
type Registry struct {
	store ExperimentStore
}

// NewRegistry wraps an experiment store.
func NewRegistry(store ExperimentStore) *Registry {
	return &Registry{store: store}
}

// CreateOrGet returns the identity for (algorithm, params, provider),
// creating the experiment when none exists. created reports whether this
// call inserted the row. The call is idempotent: repeated invocations with
// equal canonical parameters return the same identity and write nothing.
func (r *Registry) CreateOrGet(ctx context.Context, algorithm domain.Algorithm, params map[string]string, provider string) (int64, bool, error) {
	id, found, err := r.store.FindExperiment(ctx, algorithm, params, provider)
	if err != nil {
		return 0, false, fmt.Errorf("registry lookup: %w", err)
	}
	if found {
		return id, false, nil
	}

	id, err = r.store.InsertExperiment(ctx, algorithm, params, provider)
	if errors.Is(err, domain.ErrDuplicateExperiment) {
		// Lost a concurrent race; the constraint kept a single row.
		id, found, err = r.store.FindExperiment(ctx, algorithm, params, provider)
		if err != nil {
			return 0, false, fmt.Errorf("registry re-lookup: %w", err)
		}
		if !found {
			return 0, false, errors.New("registry: duplicate reported but experiment not found")
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("registry insert: %w", err)
	}
	return id, true, nil
}
