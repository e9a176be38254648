package engine

import (
	"context"
	"sync"

	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
)

// Strategy is the common surface of a running monitor. Snapshot must be safe
// to call concurrently with the owning task; Stop must be idempotent.
type Strategy interface {
	ID() string
	Kind() types.StrategyKind
	Snapshot() types.StrategySnapshot
	Stop(ctx context.Context) error
}

// Registry is the in-memory table of active strategies. Critical sections
// only swap references; exchange I/O never happens under the lock.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Add registers a strategy under its id.
func (r *Registry) Add(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID()] = s
}

// Get returns the strategy with the given id.
func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "strategy not found: %s", id)
	}

	return s, nil
}

// Remove drops a strategy from the table. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.strategies, id)
}

// List returns snapshots of all strategies of the given kind; an empty kind
// matches everything. Snapshots are taken outside the registry lock.
func (r *Registry) List(kind types.StrategyKind) []types.StrategySnapshot {
	r.mu.RLock()
	selected := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		if kind == "" || s.Kind() == kind {
			selected = append(selected, s)
		}
	}
	r.mu.RUnlock()

	snapshots := make([]types.StrategySnapshot, 0, len(selected))
	for _, s := range selected {
		snapshots = append(snapshots, s.Snapshot())
	}

	return snapshots
}

// Len returns the number of registered strategies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.strategies)
}
