package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// MemoryStore is an in-memory implementation of the CredentialStore
// interface, primarily intended for testing. It keeps the same flat
// key-to-string layout as the durable stores so decode behavior matches.
type MemoryStore struct {
	data map[string]string
	mu   sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]string),
	}
}

var _ ports.CredentialStore = (*MemoryStore)(nil)

// List returns the provider kinds with a stored token.
func (s *MemoryStore) List(ctx context.Context) ([]core.ProviderKind, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return decodeMethodsList(s.data[methodsKey]), nil
}

// Load returns the stored token for a provider. Malformed entries are
// treated as absent.
func (s *MemoryStore) Load(ctx context.Context, kind core.ProviderKind) (*core.AuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.data[methodKey(kind)]
	if !ok {
		return nil, nil
	}
	return decodeToken(raw), nil
}

// Save stores the token for a provider.
func (s *MemoryStore) Save(ctx context.Context, kind core.ProviderKind, token core.AuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}

	s.data[methodKey(kind)] = string(raw)
	s.data[methodsKey] = encodeMethodsList(appendKind(decodeMethodsList(s.data[methodsKey]), kind))
	return nil
}

// Remove drops the stored token for a provider.
func (s *MemoryStore) Remove(ctx context.Context, kind core.ProviderKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, methodKey(kind))
	s.data[methodsKey] = encodeMethodsList(removeKind(decodeMethodsList(s.data[methodsKey]), kind))
	return nil
}

// Put writes a raw entry directly, bypassing encoding. Test hook for
// exercising malformed-data tolerance.
func (s *MemoryStore) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
}

// Clear removes all data from the store.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string]string)
}
