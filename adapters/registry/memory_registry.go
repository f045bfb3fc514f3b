package registry

import (
	"context"
	"sync"

	"github.com/layer-3/rangda/core"
)

// MemoryRegistry is an in-memory ProfileRegistry for testing.
type MemoryRegistry struct {
	docs map[string][]core.SmartAccountProfile
	mu   sync.RWMutex
}

// NewMemoryRegistry creates a new MemoryRegistry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		docs: make(map[string][]core.SmartAccountProfile),
	}
}

// Get returns the profiles for a controller.
func (r *MemoryRegistry) Get(ctx context.Context, owner string) ([]core.SmartAccountProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]core.SmartAccountProfile, len(r.docs[owner]))
	copy(profiles, r.docs[owner])
	return profiles, nil
}

// Put replaces the document for a controller.
func (r *MemoryRegistry) Put(ctx context.Context, owner string, profiles []core.SmartAccountProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[owner] = profiles
	return nil
}
