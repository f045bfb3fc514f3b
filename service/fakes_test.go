package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// fakeNetwork implements ports.SigningNetwork with real secp256k1 keys so
// signatures recover to the accounts it reports.
type fakeNetwork struct {
	mu      sync.Mutex
	signers map[string]*ecdsa.PrivateKey // public key hex -> private key
	keys    map[core.ProviderKind][]core.DistributedKey

	connectCalls int
	listCalls    int
	mintCalls    int
	sessionCalls int
	signCalls    int

	connectErr error
	mintErr    error
	sessionErr error

	lastSessionKey core.DistributedKey
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		signers: make(map[string]*ecdsa.PrivateKey),
		keys:    make(map[core.ProviderKind][]core.DistributedKey),
	}
}

// addKey mints a real key pair for a provider and returns the key record.
func (n *fakeNetwork) addKey(t *testing.T, kind core.ProviderKind) core.DistributedKey {
	t.Helper()

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	pubHex := hexutil.Encode(crypto.FromECDSAPub(&priv.PublicKey))
	key := core.DistributedKey{
		PublicKey:      pubHex,
		AccountAddress: crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		OwnerProvider:  kind,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.signers[pubHex] = priv
	n.keys[kind] = append(n.keys[kind], key)
	return key
}

func (n *fakeNetwork) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectCalls++
	return n.connectErr
}

func (n *fakeNetwork) MintKey(ctx context.Context, token core.AuthToken, grants []core.Capability) (*core.MintJob, error) {
	n.mu.Lock()
	n.mintCalls++
	err := n.mintErr
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}

	priv, genErr := crypto.GenerateKey()
	if genErr != nil {
		return nil, genErr
	}
	pubHex := hexutil.Encode(crypto.FromECDSAPub(&priv.PublicKey))

	n.mu.Lock()
	defer n.mu.Unlock()
	n.signers[pubHex] = priv
	n.keys[token.Provider] = append(n.keys[token.Provider], core.DistributedKey{
		PublicKey:      pubHex,
		AccountAddress: crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		OwnerProvider:  token.Provider,
	})
	return &core.MintJob{RequestID: "req-1", TxHash: "0x01"}, nil
}

func (n *fakeNetwork) ListKeys(ctx context.Context, token core.AuthToken) ([]core.DistributedKey, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listCalls++
	out := make([]core.DistributedKey, len(n.keys[token.Provider]))
	copy(out, n.keys[token.Provider])
	return out, nil
}

func (n *fakeNetwork) SessionCredential(ctx context.Context, token core.AuthToken, key core.DistributedKey, grants []core.Capability, ttl time.Duration) (*core.SessionCredential, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessionCalls++
	if n.sessionErr != nil {
		return nil, n.sessionErr
	}
	n.lastSessionKey = key
	return &core.SessionCredential{
		Grants:   grants,
		NotAfter: time.Now().Add(ttl),
		BoundKey: key,
		Material: fmt.Sprintf("session-%d", n.sessionCalls),
	}, nil
}

func (n *fakeNetwork) SignDigest(ctx context.Context, session core.SessionCredential, key core.DistributedKey, digest common.Hash) (*core.RelaySignature, error) {
	n.mu.Lock()
	n.signCalls++
	priv := n.signers[key.PublicKey]
	n.mu.Unlock()

	if priv == nil {
		return nil, core.ErrUnknownKey
	}
	if !session.Allows(core.CapabilitySign) {
		return nil, core.ErrCapabilityDenied
	}

	raw, err := crypto.Sign(digest.Bytes(), priv)
	if err != nil {
		return nil, err
	}
	recid := raw[64]
	raw[64] += 27

	return &core.RelaySignature{
		Digest:     digest,
		PublicKey:  key.PublicKey,
		R:          raw[:32],
		S:          raw[32:64],
		RecoveryID: recid,
		Raw:        raw,
	}, nil
}

// fakeProvider completes every redirect with a fixed token or error.
type fakeProvider struct {
	kind  core.ProviderKind
	token *core.AuthToken
	err   error
}

func (p *fakeProvider) Kind() core.ProviderKind { return p.kind }

func (p *fakeProvider) BeginRedirect() (string, error) {
	return "https://login.test/?provider=" + string(p.kind), nil
}

func (p *fakeProvider) CompleteRedirect(ctx context.Context, callbackURL string) (*core.AuthToken, error) {
	return p.token, p.err
}

// fakeChain implements ports.ChainClient in memory. Estimation errors are
// consumed from a queue; a stale-nonce rejection also advances the chain
// nonce the way a competing transaction would.
type fakeChain struct {
	mu sync.Mutex

	chainID    *big.Int
	nonce      *big.Int
	keyManager common.Address
	balance    *big.Int
	greeting   []byte

	estimateErrs []error
	submitErr    error

	estimateCalls int
	submitCalls   int

	lastSubmittedNonce   *big.Int
	lastSubmittedPayload []byte
}

func newFakeChain(keyManager common.Address) *fakeChain {
	return &fakeChain{
		chainID:    big.NewInt(4201),
		nonce:      big.NewInt(0),
		keyManager: keyManager,
		balance:    big.NewInt(1_000_000_000_000_000_000),
	}
}

func (c *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *fakeChain) RelayNonce(ctx context.Context, keyManager, controller common.Address, channel *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.nonce), nil
}

func (c *fakeChain) Owner(ctx context.Context, account common.Address) (common.Address, error) {
	return c.keyManager, nil
}

func (c *fakeChain) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeChain) GetData(ctx context.Context, account common.Address, key common.Hash) ([]byte, error) {
	return c.greeting, nil
}

func (c *fakeChain) EstimateRelayCall(ctx context.Context, keyManager common.Address, signature []byte, nonce, validity *big.Int, payload []byte) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.estimateCalls++
	if len(c.estimateErrs) > 0 {
		err := c.estimateErrs[0]
		c.estimateErrs = c.estimateErrs[1:]
		if err != nil {
			if errors.Is(err, core.ErrNonceStale) {
				c.nonce.Add(c.nonce, big.NewInt(1))
			}
			return 0, err
		}
	}
	return 100_000, nil
}

func (c *fakeChain) SubmitRelayCall(ctx context.Context, keyManager common.Address, signature []byte, nonce, validity *big.Int, payload []byte, gasLimit uint64) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.submitCalls++
	if c.submitErr != nil {
		return common.Hash{}, c.submitErr
	}
	c.lastSubmittedNonce = new(big.Int).Set(nonce)
	c.lastSubmittedPayload = append([]byte(nil), payload...)
	c.nonce.Add(c.nonce, big.NewInt(1))
	return common.HexToHash("0xf00d"), nil
}

func (c *fakeChain) WaitMined(ctx context.Context, tx common.Hash) (*ports.Receipt, error) {
	return &ports.Receipt{
		TxHash:      tx,
		BlockNumber: big.NewInt(10),
		GasUsed:     90_000,
		Status:      1,
	}, nil
}

// fakeDeployer returns sequential profile records.
type fakeDeployer struct {
	mu     sync.Mutex
	serial int
	err    error
}

func (d *fakeDeployer) Deploy(ctx context.Context, controller string) (*core.SmartAccountProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.serial++
	return &core.SmartAccountProfile{
		Address:          fmt.Sprintf("0x%040d", d.serial),
		DeploymentTxHash: fmt.Sprintf("0x%064d", d.serial),
	}, nil
}
