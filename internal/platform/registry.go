package platform

import (
	"fmt"
	"sort"
	"sync"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
)

// Registry resolves adapters by platform id. Adapters are selected at
// configuration time; lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[transaction.PlatformID]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[transaction.PlatformID]Adapter)}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its platform.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

func (r *Registry) Get(id transaction.PlatformID) (Adapter, error) {
	if r == nil {
		return nil, domainerrors.ErrPlatformNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[id]
	if !ok {
		if id.IsValid() {
			return nil, fmt.Errorf("%s: %w", id, domainerrors.ErrPlatformNotConfigured)
		}
		return nil, fmt.Errorf("unknown platform %q: %w", id, domainerrors.ErrPlatformNotFound)
	}
	return a, nil
}

// Platforms returns the registered platform ids in a stable order.
func (r *Registry) Platforms() []transaction.PlatformID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]transaction.PlatformID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) All() []Adapter {
	ids := r.Platforms()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.adapters[id])
	}
	return out
}
