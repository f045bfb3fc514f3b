package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// mintGrants pre-authorize a freshly minted key for everything a session
// will later request.
var mintGrants = []core.Capability{
	core.CapabilitySign,
	core.CapabilityExecute,
	core.CapabilityDecrypt,
}

// sessionGrants are requested for every session credential.
var sessionGrants = []core.Capability{
	core.CapabilitySign,
	core.CapabilityExecute,
	core.CapabilityDecrypt,
}

// authMethod is one registered provider: its token and the keys it owns.
type authMethod struct {
	token core.AuthToken
	keys  []core.DistributedKey
}

// SessionManager owns the auth session state machine: it turns stored or
// freshly obtained provider tokens into a ready signing capability for a
// chosen account. All state lives here; consumers only ever see snapshots.
type SessionManager struct {
	creds     ports.CredentialStore
	network   ports.SigningNetwork
	providers map[core.ProviderKind]ports.AuthProvider
	events    ports.EventPublisher
	log       *logrus.Entry

	sessionTTL time.Duration
	now        func() time.Time

	// mu serializes every transition. Concurrent triggers could otherwise
	// establish two session credentials for the same key.
	mu        sync.Mutex
	phase     core.SessionPhase
	ready     bool
	connected bool
	methods   map[core.ProviderKind]*authMethod
	order     []core.ProviderKind
	activeKey *core.DistributedKey
	session   *core.SessionCredential
}

// NewSessionManager creates a session manager. Providers are keyed by kind
// at construction; no runtime provider lookup happens anywhere else.
func NewSessionManager(
	creds ports.CredentialStore,
	network ports.SigningNetwork,
	providers []ports.AuthProvider,
	events ports.EventPublisher,
	log *logrus.Logger,
) *SessionManager {
	byKind := make(map[core.ProviderKind]ports.AuthProvider, len(providers))
	for _, p := range providers {
		byKind[p.Kind()] = p
	}
	return &SessionManager{
		creds:      creds,
		network:    network,
		providers:  byKind,
		events:     events,
		log:        log.WithField("component", "session"),
		sessionTTL: core.DefaultSessionTTL,
		now:        time.Now,
		phase:      core.PhaseIdle,
		methods:    make(map[core.ProviderKind]*authMethod),
	}
}

// Start loads stored credentials and drives the machine as far as they
// allow. With nothing stored the manager lands in NoCredential and still
// reports ready: ready means the boot-time decision is made, not that an
// account is selected.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kinds, err := m.creds.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list stored credentials: %w", err)
	}

	for _, kind := range kinds {
		token, err := m.creds.Load(ctx, kind)
		if err != nil {
			return fmt.Errorf("failed to load credential %s: %w", kind, err)
		}
		if token == nil || token.Expired(m.now()) {
			continue
		}
		m.phase = core.PhaseTokenObtained
		if err := m.addMethod(ctx, *token); err != nil {
			m.log.WithError(err).WithField("provider", kind).Warn("stored credential unusable")
		}
	}

	if len(m.methods) == 0 {
		m.phase = core.PhaseNoCredential
		m.ready = true
		m.log.Info("no stored credentials, awaiting explicit authentication")
		return nil
	}

	return m.reconcile(ctx)
}

// BeginAuthentication returns the provider redirect URL for an explicit
// login.
func (m *SessionManager) BeginAuthentication(kind core.ProviderKind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	provider, ok := m.providers[kind]
	if !ok {
		return "", fmt.Errorf("%w: no provider for %s", core.ErrProviderAuthFailed, kind)
	}

	url, err := provider.BeginRedirect()
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrProviderAuthFailed, err)
	}
	m.phase = core.PhaseRedirectPending
	return url, nil
}

// Authenticate completes a redirect-based login from a callback URL. A
// failed completion leaves the machine where it was; with no registered
// methods that is NoCredential.
func (m *SessionManager) Authenticate(ctx context.Context, kind core.ProviderKind, callbackURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	provider, ok := m.providers[kind]
	if !ok {
		return fmt.Errorf("%w: no provider for %s", core.ErrProviderAuthFailed, kind)
	}

	token, err := provider.CompleteRedirect(ctx, callbackURL)
	if err == nil && token == nil {
		err = fmt.Errorf("%w: callback carries no login", core.ErrProviderAuthFailed)
	}
	if err != nil {
		if len(m.methods) == 0 {
			m.phase = core.PhaseNoCredential
		}
		return err
	}

	m.phase = core.PhaseTokenObtained
	if err := m.addMethod(ctx, *token); err != nil {
		if len(m.methods) == 0 {
			m.phase = core.PhaseNoCredential
		}
		return err
	}

	// Persist only after the token proved usable against the network.
	if err := m.creds.Save(ctx, kind, *token); err != nil {
		m.log.WithError(err).Warn("failed to persist credential")
	}

	return m.reconcile(ctx)
}

// addMethod resolves the keys a token owns, minting the first one when none
// exist, and registers the method. Caller holds mu. The mint is issued at
// most once per trigger; serialization under mu guarantees no concurrent
// mints for the same token.
func (m *SessionManager) addMethod(ctx context.Context, token core.AuthToken) error {
	m.phase = core.PhaseKeyResolving

	keys, err := m.network.ListKeys(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(keys) == 0 {
		m.log.WithField("provider", token.Provider).Info("no keys found, minting")
		job, err := m.network.MintKey(ctx, token, mintGrants)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrNoKeysAndMintFailed, err)
		}
		m.log.WithField("tx", job.TxHash).Info("key minted")

		keys, err = m.network.ListKeys(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to list keys after mint: %w", err)
		}
		if len(keys) == 0 {
			return core.ErrNoKeysAndMintFailed
		}
	}

	if _, exists := m.methods[token.Provider]; !exists {
		m.order = append(m.order, token.Provider)
	}
	m.methods[token.Provider] = &authMethod{token: token, keys: keys}

	// Index 0 of the network's enumeration becomes active. Arbitrary but
	// consistent; no recency ordering is implied.
	if m.activeKey == nil || m.activeKey.OwnerProvider == token.Provider {
		key := keys[0]
		m.activeKey = &key
		m.session = nil
		m.phase = core.PhaseKeyActive
	}

	return nil
}

// SetActiveKey selects a different known key by account address. The
// previous session credential is invalidated and a new one established for
// the chosen key only.
func (m *SessionManager) SetActiveKey(ctx context.Context, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target := common.HexToAddress(account)
	for _, kind := range m.order {
		for _, key := range m.methods[kind].keys {
			if common.HexToAddress(key.AccountAddress) == target {
				selected := key
				m.activeKey = &selected
				m.session = nil
				m.phase = core.PhaseKeyActive
				return m.reconcile(ctx)
			}
		}
	}
	return fmt.Errorf("%w: %s", core.ErrUnknownKey, account)
}

// SignDigest runs the remote signing routine for the active key. An expired
// session credential is re-established first. Caller must not issue two
// concurrent calls for the same intended nonce; mu serializes the calls so a
// second caller blocks rather than racing.
func (m *SessionManager) SignDigest(ctx context.Context, digest common.Hash) (*core.RelaySignature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeKey == nil {
		return nil, core.ErrNotReady
	}
	if err := m.reconcile(ctx); err != nil {
		return nil, err
	}
	return m.network.SignDigest(ctx, *m.session, *m.activeKey, digest)
}

// Methods returns the registered provider kinds in registration order.
func (m *SessionManager) Methods() []core.ProviderKind {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]core.ProviderKind, len(m.order))
	copy(out, m.order)
	return out
}

// Snapshot returns a read-only view of the session state.
func (m *SessionManager) Snapshot() core.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := core.SessionSnapshot{
		Phase: m.phase,
		Ready: m.ready,
	}
	for _, kind := range m.order {
		for _, key := range m.methods[kind].keys {
			snap.Accounts = append(snap.Accounts, key.AccountAddress)
		}
	}
	if m.activeKey != nil {
		snap.ActiveAccount = m.activeKey.AccountAddress
	}
	if m.session != nil {
		session := *m.session
		snap.Session = &session
	}
	return snap
}

// ActiveToken returns the token owning the active key. Used by callers that
// need to pair the signing capability with its provider material.
func (m *SessionManager) ActiveToken() (core.AuthToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeKey == nil {
		return core.AuthToken{}, false
	}
	method, ok := m.methods[m.activeKey.OwnerProvider]
	if !ok {
		return core.AuthToken{}, false
	}
	return method.token, true
}

// reconcile drives the minimum transitions from the current state to ready:
// establish a session credential when missing or expired, connect the
// network when not yet connected. Caller holds mu. Transient connect
// failures do not regress earlier state; the session is re-requested only
// when actually expired.
func (m *SessionManager) reconcile(ctx context.Context) error {
	if m.activeKey == nil {
		return core.ErrNotReady
	}

	method, ok := m.methods[m.activeKey.OwnerProvider]
	if !ok {
		return core.ErrNotReady
	}

	if m.session == nil || m.session.Expired(m.now()) {
		session, err := m.network.SessionCredential(ctx, method.token, *m.activeKey, sessionGrants, m.sessionTTL)
		if err != nil {
			return fmt.Errorf("failed to establish session: %w", err)
		}
		m.session = session
		m.phase = core.PhaseSessionEstablished
		m.log.WithFields(logrus.Fields{
			"account":   m.activeKey.AccountAddress,
			"not_after": session.NotAfter,
		}).Info("session credential established")
	}

	if !m.connected {
		if err := m.network.Connect(ctx); err != nil {
			// The credential stays; only the transport step is retried on
			// the next trigger.
			return fmt.Errorf("failed to connect signing network: %w", err)
		}
		m.connected = true
	}

	if m.phase != core.PhaseReady {
		m.phase = core.PhaseReady
		m.ready = true
		if m.events != nil {
			if err := m.events.PublishSessionReady(ctx, m.activeKey.AccountAddress); err != nil {
				m.log.WithError(err).Warn("failed to publish session ready event")
			}
		}
	}
	return nil
}
