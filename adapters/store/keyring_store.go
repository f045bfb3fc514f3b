package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// KeyringStore keeps credentials in the OS keychain for desktop
// deployments, using the same flat key layout as the other stores.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore opens the OS keychain under the rangda service name.
func NewKeyringStore() (ports.CredentialStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: "rangda",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return &KeyringStore{ring: ring}, nil
}

// List returns the provider kinds with a stored token.
func (s *KeyringStore) List(ctx context.Context) ([]core.ProviderKind, error) {
	item, err := s.ring.Get(methodsKey)
	if err != nil {
		// Absent or unreadable entries read as "no methods registered".
		return nil, nil
	}
	return decodeMethodsList(string(item.Data)), nil
}

// Load returns the stored token for a provider, or nil when absent or
// malformed.
func (s *KeyringStore) Load(ctx context.Context, kind core.ProviderKind) (*core.AuthToken, error) {
	item, err := s.ring.Get(methodKey(kind))
	if err != nil {
		return nil, nil
	}
	return decodeToken(string(item.Data)), nil
}

// Save stores the token for a provider and registers its kind.
func (s *KeyringStore) Save(ctx context.Context, kind core.ProviderKind, token core.AuthToken) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := s.ring.Set(keyring.Item{Key: methodKey(kind), Data: raw}); err != nil {
		return fmt.Errorf("failed to store auth method %s: %w", kind, err)
	}

	kinds, _ := s.List(ctx)
	list := encodeMethodsList(appendKind(kinds, kind))
	if err := s.ring.Set(keyring.Item{Key: methodsKey, Data: []byte(list)}); err != nil {
		return fmt.Errorf("failed to store auth methods list: %w", err)
	}
	return nil
}

// Remove drops the stored token for a provider.
func (s *KeyringStore) Remove(ctx context.Context, kind core.ProviderKind) error {
	if err := s.ring.Remove(methodKey(kind)); err != nil && err != keyring.ErrKeyNotFound {
		return fmt.Errorf("failed to remove auth method %s: %w", kind, err)
	}

	kinds, _ := s.List(ctx)
	list := encodeMethodsList(removeKind(kinds, kind))
	if err := s.ring.Set(keyring.Item{Key: methodsKey, Data: []byte(list)}); err != nil {
		return fmt.Errorf("failed to store auth methods list: %w", err)
	}
	return nil
}
