package ports

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/rangda/core"
)

// SigningNetwork abstracts the remote threshold-signing network.
type SigningNetwork interface {
	// Connect establishes a session with the network. Idempotent; blocks
	// until the network is reachable or ctx expires.
	Connect(ctx context.Context) error

	// MintKey asks the network to generate a new distributed key bound to
	// the token, pre-authorized for the given grants. It returns once the
	// mint transaction underlying the key is observably complete.
	MintKey(ctx context.Context, token core.AuthToken, grants []core.Capability) (*core.MintJob, error)

	// ListKeys enumerates keys already minted for the token. An empty
	// result is valid and is the trigger for MintKey.
	ListKeys(ctx context.Context, token core.AuthToken) ([]core.DistributedKey, error)

	// SessionCredential requests capability-scoped, time-bounded
	// authorization for a key the token owns.
	SessionCredential(ctx context.Context, token core.AuthToken, key core.DistributedKey, grants []core.Capability, ttl time.Duration) (*core.SessionCredential, error)

	// SignDigest runs the remote signing routine over a 32-byte digest.
	// Requires the session to grant signing and to be unexpired.
	SignDigest(ctx context.Context, session core.SessionCredential, key core.DistributedKey, digest common.Hash) (*core.RelaySignature, error)
}

// AuthProvider completes a redirect-based federated login. One
// implementation exists per provider kind, selected at construction time.
type AuthProvider interface {
	// Kind identifies the provider.
	Kind() core.ProviderKind

	// BeginRedirect returns the URL the user agent must visit to start the
	// login flow.
	BeginRedirect() (string, error)

	// CompleteRedirect inspects a callback URL and, when it carries a
	// completed login, returns the resulting token. A nil token with a nil
	// error means the URL is not a login callback.
	CompleteRedirect(ctx context.Context, callbackURL string) (*core.AuthToken, error)
}
