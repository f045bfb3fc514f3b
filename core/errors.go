package core

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderAuthFailed is returned when the redirect-based login could
	// not be completed.
	ErrProviderAuthFailed = errors.New("provider authentication failed")

	// ErrNoCredential is returned when an operation needs an authenticated
	// principal but none is stored.
	ErrNoCredential = errors.New("no stored credential")

	// ErrNoKeysAndMintFailed is returned when a token owns no keys and the
	// mint to create the first one failed.
	ErrNoKeysAndMintFailed = errors.New("no keys minted and mint failed")

	// ErrSessionExpired is returned when a session credential is used at or
	// past its expiry.
	ErrSessionExpired = errors.New("session credential expired")

	// ErrCapabilityDenied is returned when a session credential does not
	// cover the requested capability.
	ErrCapabilityDenied = errors.New("capability not granted")

	// ErrNonceStale is returned when the envelope nonce no longer matches
	// the on-chain channel nonce. Retryable: refetch the nonce and rebuild.
	ErrNonceStale = errors.New("relay nonce is stale")

	// ErrBadSignature is returned when a signature does not recover to the
	// controller address. Fatal for the current key material.
	ErrBadSignature = errors.New("signature does not recover to controller")

	// ErrEstimationFailed is returned when gas estimation rejects the
	// envelope. Submission is aborted and no relay funds are spent.
	ErrEstimationFailed = errors.New("relay call estimation failed")

	// ErrNetworkUnavailable is a transport-level failure, retryable with
	// backoff.
	ErrNetworkUnavailable = errors.New("signing network unavailable")

	// ErrUnknownKey is returned when a key is selected that the manager has
	// never seen.
	ErrUnknownKey = errors.New("unknown distributed key")

	// ErrNotReady is returned when signing is requested before the session
	// machine reached the ready phase with an active account.
	ErrNotReady = errors.New("session not ready")
)

// RelayRevertError carries a decoded on-chain rejection of a relay call.
// Raw always holds the revert payload; Name and Args are filled only when the
// selector matched a known error definition.
type RelayRevertError struct {
	Selector [4]byte
	Name     string
	Args     []any
	Raw      []byte
}

func (e *RelayRevertError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("relay call reverted: %s%v", e.Name, e.Args)
	}
	return fmt.Sprintf("relay call reverted: selector 0x%x", e.Selector)
}
