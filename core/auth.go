package core

import (
	"time"
)

// ProviderKind identifies a federated identity provider.
type ProviderKind string

const (
	ProviderGoogle  ProviderKind = "google"
	ProviderDiscord ProviderKind = "discord"
)

// Capability is a grant that a session credential can be scoped to.
type Capability string

const (
	// CapabilitySign allows signing arbitrary digests with the bound key.
	CapabilitySign Capability = "sign-any-digest"

	// CapabilityExecute allows running remote routines on the signing network.
	CapabilityExecute Capability = "execute-routine"

	// CapabilityDecrypt allows decryption under access-control conditions.
	CapabilityDecrypt Capability = "decrypt-condition"
)

// DefaultSessionTTL bounds the lifetime of a session credential.
const DefaultSessionTTL = 10 * time.Minute

// AuthToken is the opaque proof of identity issued by an external provider.
// It is immutable once issued and replaced wholesale on re-authentication.
type AuthToken struct {
	Provider  ProviderKind `json:"provider"`   // which provider issued the token
	RawToken  string       `json:"raw_token"`  // opaque provider material
	Subject   string       `json:"subject"`    // provider-side principal id, if known
	ExpiresAt time.Time    `json:"expires_at"` // zero when the provider set no expiry
}

// Expired reports whether the token carries an expiry that has passed.
func (t AuthToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// DistributedKey is a public key jointly custodied by the signing network.
// Exactly one on-chain controller address derives from it.
type DistributedKey struct {
	PublicKey      string       `json:"public_key"`      // uncompressed hex public key
	AccountAddress string       `json:"account_address"` // derived controller address
	OwnerProvider  ProviderKind `json:"owner_provider"`  // provider whose token minted it
}

// SessionCredential is a time-bounded, capability-scoped authorization for a
// single distributed key. It lives in process memory only.
type SessionCredential struct {
	Grants   []Capability
	NotAfter time.Time
	BoundKey DistributedKey
	Material string // opaque session material handed back by the network
}

// Expired uses a strict comparison: a credential whose NotAfter equals the
// current instant is already unusable.
func (c SessionCredential) Expired(now time.Time) bool {
	return !now.Before(c.NotAfter)
}

// Allows reports whether the credential covers every requested capability.
func (c SessionCredential) Allows(wanted ...Capability) bool {
	for _, w := range wanted {
		found := false
		for _, g := range c.Grants {
			if g == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SessionPhase names a position in the auth session state machine.
type SessionPhase string

const (
	PhaseNoCredential       SessionPhase = "no_credential"
	PhaseIdle               SessionPhase = "idle"
	PhaseRedirectPending    SessionPhase = "redirect_pending"
	PhaseTokenObtained      SessionPhase = "token_obtained"
	PhaseKeyResolving       SessionPhase = "key_resolving"
	PhaseKeyActive          SessionPhase = "key_active"
	PhaseSessionEstablished SessionPhase = "session_established"
	PhaseReady              SessionPhase = "ready"
)

// SessionSnapshot is the read-only view of the auth session handed to
// consumers. Only the session manager mutates the underlying state.
type SessionSnapshot struct {
	Phase         SessionPhase
	Ready         bool
	Accounts      []string // controller addresses of every known key
	ActiveAccount string   // empty until a key is active
	Session       *SessionCredential
}

// SmartAccountProfile records one deployed smart account for a controller.
type SmartAccountProfile struct {
	Address          string `json:"address"`
	DeploymentTxHash string `json:"txnHash"`
}

// MintJob tracks an asynchronous key mint on the signing network.
type MintJob struct {
	RequestID string
	TxHash    string
}
