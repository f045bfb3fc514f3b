package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// RedisStore is a Redis implementation of the CredentialStore interface.
// Entries never expire; tokens are replaced on re-authentication.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis credential store
func NewRedisStore(client *redis.Client) ports.CredentialStore {
	return &RedisStore{
		client: client,
		prefix: "rangda:credentials:",
	}
}

// List returns the provider kinds with a stored token.
func (s *RedisStore) List(ctx context.Context) ([]core.ProviderKind, error) {
	raw, err := s.client.Get(ctx, s.prefix+methodsKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read auth methods: %w", err)
	}
	return decodeMethodsList(raw), nil
}

// Load returns the stored token for a provider. Absent or malformed entries
// yield nil without an error.
func (s *RedisStore) Load(ctx context.Context, kind core.ProviderKind) (*core.AuthToken, error) {
	raw, err := s.client.Get(ctx, s.prefix+methodKey(kind)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read auth method %s: %w", kind, err)
	}
	return decodeToken(raw), nil
}

// Save stores the token for a provider and registers its kind.
func (s *RedisStore) Save(ctx context.Context, kind core.ProviderKind, token core.AuthToken) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	kinds, err := s.List(ctx)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, s.prefix+methodKey(kind), string(raw), 0).Err(); err != nil {
		return fmt.Errorf("failed to store auth method %s: %w", kind, err)
	}
	if err := s.client.Set(ctx, s.prefix+methodsKey, encodeMethodsList(appendKind(kinds, kind)), 0).Err(); err != nil {
		return fmt.Errorf("failed to store auth methods list: %w", err)
	}
	return nil
}

// Remove drops the stored token for a provider.
func (s *RedisStore) Remove(ctx context.Context, kind core.ProviderKind) error {
	kinds, err := s.List(ctx)
	if err != nil {
		return err
	}

	if err := s.client.Del(ctx, s.prefix+methodKey(kind)).Err(); err != nil {
		return fmt.Errorf("failed to remove auth method %s: %w", kind, err)
	}
	if err := s.client.Set(ctx, s.prefix+methodsKey, encodeMethodsList(removeKind(kinds, kind)), 0).Err(); err != nil {
		return fmt.Errorf("failed to store auth methods list: %w", err)
	}
	return nil
}
