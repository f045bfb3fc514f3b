package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/rangda/core"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	token := core.AuthToken{
		Provider:  core.ProviderGoogle,
		RawToken:  "id-token",
		Subject:   "user-1",
		ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second),
	}
	require.NoError(t, s.Save(ctx, core.ProviderGoogle, token))

	kinds, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.ProviderKind{core.ProviderGoogle}, kinds)

	loaded, err := s.Load(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, token.RawToken, loaded.RawToken)
	assert.Equal(t, token.Subject, loaded.Subject)
	assert.True(t, token.ExpiresAt.Equal(loaded.ExpiresAt))
}

func TestLoadAbsentProvider(t *testing.T) {
	s := NewMemoryStore()

	loaded, err := s.Load(context.Background(), core.ProviderDiscord)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveIsIdempotentInList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	token := core.AuthToken{Provider: core.ProviderGoogle, RawToken: "a"}
	require.NoError(t, s.Save(ctx, core.ProviderGoogle, token))
	token.RawToken = "b"
	require.NoError(t, s.Save(ctx, core.ProviderGoogle, token))

	kinds, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, kinds, 1, "re-saving a provider does not duplicate it")

	loaded, err := s.Load(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "b", loaded.RawToken, "latest write wins")
}

func TestRemove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, core.ProviderGoogle, core.AuthToken{Provider: core.ProviderGoogle, RawToken: "a"}))
	require.NoError(t, s.Save(ctx, core.ProviderDiscord, core.AuthToken{Provider: core.ProviderDiscord, RawToken: "b"}))
	require.NoError(t, s.Remove(ctx, core.ProviderGoogle))

	kinds, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.ProviderKind{core.ProviderDiscord}, kinds)

	loaded, err := s.Load(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMalformedEntriesTreatedAsAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Put(methodsKey, "{not json")
	kinds, err := s.List(ctx)
	require.NoError(t, err)
	assert.Nil(t, kinds, "unreadable method list reads as empty")

	s.Put(methodKey(core.ProviderGoogle), "][")
	loaded, err := s.Load(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	assert.Nil(t, loaded, "unreadable token reads as absent")

	s.Put(methodKey(core.ProviderGoogle), "{}")
	loaded, err = s.Load(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	assert.Nil(t, loaded, "empty token object reads as absent")
}

func TestRemoveToleratesMalformedList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Put(methodsKey, "not a list")
	require.NoError(t, s.Remove(ctx, core.ProviderGoogle))

	kinds, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, kinds)
}
