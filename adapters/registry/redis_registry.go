// Package registry adapts document stores to the ProfileRegistry port. One
// document per controller address, newest profile first, last-writer-wins:
// two sessions of the same owner writing concurrently can drop a record.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// RedisRegistry is a Redis implementation of the ProfileRegistry interface.
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisRegistry creates a new Redis profile registry
func NewRedisRegistry(client *redis.Client) ports.ProfileRegistry {
	return &RedisRegistry{
		client: client,
		prefix: "rangda:profiles:",
	}
}

type profileDocument struct {
	Profiles []core.SmartAccountProfile `json:"profiles"`
}

// Get returns the profiles for a controller, newest first. An absent or
// unreadable document reads as empty.
func (r *RedisRegistry) Get(ctx context.Context, owner string) ([]core.SmartAccountProfile, error) {
	raw, err := r.client.Get(ctx, r.prefix+owner).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles for %s: %w", owner, err)
	}

	var doc profileDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, nil
	}
	return doc.Profiles, nil
}

// Put replaces the document for a controller.
func (r *RedisRegistry) Put(ctx context.Context, owner string, profiles []core.SmartAccountProfile) error {
	raw, err := json.Marshal(profileDocument{Profiles: profiles})
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+owner, string(raw), 0).Err(); err != nil {
		return fmt.Errorf("failed to store profiles for %s: %w", owner, err)
	}
	return nil
}
