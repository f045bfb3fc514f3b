package ports

import (
	"context"

	"github.com/layer-3/rangda/core"
)

// CredentialStore durably persists which authentication methods are
// registered and their opaque tokens. Implementations must treat malformed
// stored data as absent rather than returning an error.
type CredentialStore interface {
	// List returns the provider kinds that have a stored token.
	List(ctx context.Context) ([]core.ProviderKind, error)

	// Load returns the stored token for a provider, or nil when none is
	// stored or the stored entry cannot be decoded.
	Load(ctx context.Context, kind core.ProviderKind) (*core.AuthToken, error)

	// Save stores the token for a provider, replacing any previous one.
	Save(ctx context.Context, kind core.ProviderKind, token core.AuthToken) error

	// Remove drops the stored token for a provider.
	Remove(ctx context.Context, kind core.ProviderKind) error
}
