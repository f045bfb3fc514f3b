package service

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/rangda/adapters/store"
	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func googleToken() *core.AuthToken {
	return &core.AuthToken{
		Provider: core.ProviderGoogle,
		RawToken: "id-token",
		Subject:  "user-1",
	}
}

func newManager(network *fakeNetwork, provider ports.AuthProvider) (*SessionManager, *store.MemoryStore) {
	creds := store.NewMemoryStore()
	providers := []ports.AuthProvider{provider}
	return NewSessionManager(creds, network, providers, nil, testLogger()), creds
}

func TestStartWithoutCredentials(t *testing.T) {
	network := newFakeNetwork()
	mgr, _ := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})

	require.NoError(t, mgr.Start(context.Background()))

	snap := mgr.Snapshot()
	assert.True(t, snap.Ready, "boot decision made means ready")
	assert.Equal(t, core.PhaseNoCredential, snap.Phase)
	assert.Empty(t, snap.Accounts)
	assert.Empty(t, snap.ActiveAccount)
}

func TestFreshUserEndToEnd(t *testing.T) {
	network := newFakeNetwork()
	mgr, creds := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})
	ctx := context.Background()

	require.NoError(t, mgr.Start(ctx))
	require.NoError(t, mgr.Authenticate(ctx, core.ProviderGoogle, "http://localhost/callback?id_token=x"))

	snap := mgr.Snapshot()
	assert.True(t, snap.Ready)
	assert.Equal(t, core.PhaseReady, snap.Phase)
	assert.Len(t, snap.Accounts, 1, "exactly one account after first login")
	assert.Equal(t, snap.Accounts[0], snap.ActiveAccount)

	assert.Equal(t, 1, network.mintCalls, "empty key list triggers exactly one mint")
	assert.Equal(t, 1, network.sessionCalls, "one session credential obtained")
	assert.Equal(t, 1, network.connectCalls)

	stored, err := creds.Load(ctx, core.ProviderGoogle)
	require.NoError(t, err)
	require.NotNil(t, stored, "token persisted after successful key resolution")
	assert.Equal(t, "id-token", stored.RawToken)
}

func TestFailedRedirectStaysNoCredential(t *testing.T) {
	network := newFakeNetwork()
	mgr, _ := newManager(network, &fakeProvider{kind: core.ProviderGoogle, err: core.ErrProviderAuthFailed})
	ctx := context.Background()

	require.NoError(t, mgr.Start(ctx))

	err := mgr.Authenticate(ctx, core.ProviderGoogle, "http://localhost/callback")
	assert.ErrorIs(t, err, core.ErrProviderAuthFailed)

	snap := mgr.Snapshot()
	assert.Equal(t, core.PhaseNoCredential, snap.Phase)
	assert.Empty(t, snap.Accounts)
	assert.Equal(t, 0, network.mintCalls)
}

func TestMintFailureDoesNotGrowAccounts(t *testing.T) {
	network := newFakeNetwork()
	network.mintErr = core.ErrNetworkUnavailable
	mgr, creds := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})
	ctx := context.Background()

	require.NoError(t, mgr.Start(ctx))

	err := mgr.Authenticate(ctx, core.ProviderGoogle, "http://localhost/callback?id_token=x")
	assert.ErrorIs(t, err, core.ErrNoKeysAndMintFailed)

	snap := mgr.Snapshot()
	assert.Empty(t, snap.Accounts)
	assert.Equal(t, 1, network.mintCalls)

	stored, loadErr := creds.Load(ctx, core.ProviderGoogle)
	require.NoError(t, loadErr)
	assert.Nil(t, stored, "unusable token is not persisted")
}

func TestExistingKeysNoMint(t *testing.T) {
	network := newFakeNetwork()
	key := network.addKey(t, core.ProviderGoogle)
	network.addKey(t, core.ProviderGoogle)

	mgr, creds := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})
	ctx := context.Background()
	require.NoError(t, creds.Save(ctx, core.ProviderGoogle, *googleToken()))

	require.NoError(t, mgr.Start(ctx))

	snap := mgr.Snapshot()
	assert.True(t, snap.Ready)
	assert.Len(t, snap.Accounts, 2)
	assert.Equal(t, key.AccountAddress, snap.ActiveAccount, "index 0 becomes active")
	assert.Equal(t, 0, network.mintCalls)
}

func TestListKeysIdempotent(t *testing.T) {
	network := newFakeNetwork()
	network.addKey(t, core.ProviderGoogle)
	token := *googleToken()
	ctx := context.Background()

	first, err := network.ListKeys(ctx, token)
	require.NoError(t, err)
	second, err := network.ListKeys(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSetActiveKeyReestablishesSession(t *testing.T) {
	network := newFakeNetwork()
	network.addKey(t, core.ProviderGoogle)
	second := network.addKey(t, core.ProviderGoogle)

	mgr, creds := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})
	ctx := context.Background()
	require.NoError(t, creds.Save(ctx, core.ProviderGoogle, *googleToken()))
	require.NoError(t, mgr.Start(ctx))

	firstSession := mgr.Snapshot().Session
	require.NotNil(t, firstSession)

	require.NoError(t, mgr.SetActiveKey(ctx, second.AccountAddress))

	snap := mgr.Snapshot()
	assert.Equal(t, second.AccountAddress, snap.ActiveAccount)
	assert.Equal(t, 2, network.sessionCalls, "prior session invalidated, new one established")
	assert.Equal(t, second.PublicKey, network.lastSessionKey.PublicKey, "new session scoped to the chosen key")
	require.NotNil(t, snap.Session)
	assert.NotEqual(t, firstSession.Material, snap.Session.Material)
}

func TestSetActiveKeyUnknownAccount(t *testing.T) {
	network := newFakeNetwork()
	network.addKey(t, core.ProviderGoogle)

	mgr, creds := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})
	ctx := context.Background()
	require.NoError(t, creds.Save(ctx, core.ProviderGoogle, *googleToken()))
	require.NoError(t, mgr.Start(ctx))

	err := mgr.SetActiveKey(ctx, "0x000000000000000000000000000000000000dEaD")
	assert.ErrorIs(t, err, core.ErrUnknownKey)
}

func TestSignDigestRefreshesExpiredSession(t *testing.T) {
	network := newFakeNetwork()
	key := network.addKey(t, core.ProviderGoogle)

	mgr, creds := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})
	ctx := context.Background()
	require.NoError(t, creds.Save(ctx, core.ProviderGoogle, *googleToken()))
	require.NoError(t, mgr.Start(ctx))
	require.Equal(t, 1, network.sessionCalls)

	// Jump the manager clock past the credential expiry.
	mgr.now = func() time.Time { return time.Now().Add(core.DefaultSessionTTL + time.Minute) }

	digest := crypto.Keccak256Hash([]byte("payload"))
	sig, err := mgr.SignDigest(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, 2, network.sessionCalls, "expired credential re-established before signing")

	recovered, err := sig.RecoverAddress()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(key.AccountAddress), recovered)
}

func TestSignDigestWithoutActiveKey(t *testing.T) {
	network := newFakeNetwork()
	mgr, _ := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})
	require.NoError(t, mgr.Start(context.Background()))

	_, err := mgr.SignDigest(context.Background(), crypto.Keccak256Hash([]byte("x")))
	assert.ErrorIs(t, err, core.ErrNotReady)
}

func TestConnectFailureDoesNotRegress(t *testing.T) {
	network := newFakeNetwork()
	network.addKey(t, core.ProviderGoogle)
	network.connectErr = core.ErrNetworkUnavailable

	mgr, creds := newManager(network, &fakeProvider{kind: core.ProviderGoogle, token: googleToken()})
	ctx := context.Background()
	require.NoError(t, creds.Save(ctx, core.ProviderGoogle, *googleToken()))

	err := mgr.Start(ctx)
	assert.ErrorIs(t, err, core.ErrNetworkUnavailable)

	snap := mgr.Snapshot()
	assert.Equal(t, core.PhaseSessionEstablished, snap.Phase, "no regression past the established session")
	require.NotNil(t, snap.Session)

	// The next trigger retries only the transport step.
	network.connectErr = nil
	_, err = mgr.SignDigest(ctx, crypto.Keccak256Hash([]byte("x")))
	require.NoError(t, err)
	assert.Equal(t, 1, network.sessionCalls, "unexpired credential is not re-requested")
	assert.Equal(t, core.PhaseReady, mgr.Snapshot().Phase)
}
