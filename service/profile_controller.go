package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/rangda/contracts"
	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// GreetingKey is the data key the greeting message lives under on a smart
// account.
var GreetingKey = crypto.Keccak256Hash([]byte("profile-greeting-message"))

const (
	// signingChannel is the nonce channel used for all relay calls.
	signingChannel = 0

	// nonceAttempts bounds retries when a submitted nonce turns out stale.
	nonceAttempts = 3

	nativeDecimals = 18
)

// ProfileDetails is the read-only view of a deployed smart account.
type ProfileDetails struct {
	Address    string `json:"address"`
	KeyManager string `json:"key_manager"`
	Balance    string `json:"balance"` // native tokens, decimal-formatted
	Greeting   string `json:"greeting"`
}

// ProfileController ties an account's signing capability to the envelope
// builder and relay submitter to perform state-changing operations against
// that account's smart contracts.
type ProfileController struct {
	sessions  *SessionManager
	chain     ports.ChainClient
	registry  ports.ProfileRegistry
	deployer  ports.Deployer
	submitter *RelaySubmitter
	events    ports.EventPublisher
	log       *logrus.Entry
}

// NewProfileController creates a profile controller.
func NewProfileController(
	sessions *SessionManager,
	chain ports.ChainClient,
	registry ports.ProfileRegistry,
	deployer ports.Deployer,
	submitter *RelaySubmitter,
	events ports.EventPublisher,
	log *logrus.Logger,
) *ProfileController {
	return &ProfileController{
		sessions:  sessions,
		chain:     chain,
		registry:  registry,
		deployer:  deployer,
		submitter: submitter,
		events:    events,
		log:       log.WithField("component", "profiles"),
	}
}

// activeController returns the controller address of the active key.
func (c *ProfileController) activeController() (common.Address, error) {
	snap := c.sessions.Snapshot()
	if !snap.Ready || snap.ActiveAccount == "" {
		return common.Address{}, core.ErrNotReady
	}
	return common.HexToAddress(snap.ActiveAccount), nil
}

// SetGreeting stores a greeting message on a smart account through a relayed
// call: build the setData payload, read a fresh nonce, encode and sign the
// envelope, verify the signature recovers to the controller, then submit. A
// stale nonce rebuilds the envelope with the refreshed nonce and retries.
func (c *ProfileController) SetGreeting(ctx context.Context, profile common.Address, message string) (*ports.Receipt, error) {
	controller, err := c.activeController()
	if err != nil {
		return nil, err
	}

	keyManager, err := c.chain.Owner(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key manager: %w", err)
	}

	chainID, err := c.chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := contracts.PackSetData(GreetingKey, []byte(message))
	if err != nil {
		return nil, fmt.Errorf("failed to encode setData payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < nonceAttempts; attempt++ {
		// The nonce must be read fresh immediately before signing; a stale
		// value is rejected on-chain.
		nonce, err := c.chain.RelayNonce(ctx, keyManager, controller, big.NewInt(signingChannel))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch relay nonce: %w", err)
		}

		env := core.NewRelayEnvelope(chainID, nonce, core.ValidityWindow{}, nil, payload)
		digest := env.Digest(keyManager)

		sig, err := c.sessions.SignDigest(ctx, digest)
		if err != nil {
			return nil, fmt.Errorf("signing failed: %w", err)
		}

		// Verify locally before spending any relay funds.
		if err := sig.VerifyController(controller); err != nil {
			return nil, err
		}

		receipt, err := c.submitter.Submit(ctx, keyManager, env, *sig)
		if err == nil {
			c.log.WithFields(logrus.Fields{
				"profile": profile.Hex(),
				"tx":      receipt.TxHash.Hex(),
			}).Info("greeting updated")
			return receipt, nil
		}
		if !errors.Is(err, core.ErrNonceStale) {
			return receipt, err
		}

		lastErr = err
		c.log.WithField("attempt", attempt+1).Warn("relay nonce stale, rebuilding envelope")
	}
	return nil, lastErr
}

// CreateProfile deploys a new smart account controlled by the active key and
// prepends it to the controller's registry document. Registry writes are
// last-writer-wins; concurrent sessions of the same owner can race.
func (c *ProfileController) CreateProfile(ctx context.Context) (*core.SmartAccountProfile, error) {
	controller, err := c.activeController()
	if err != nil {
		return nil, err
	}

	profile, err := c.deployer.Deploy(ctx, controller.Hex())
	if err != nil {
		return nil, fmt.Errorf("deployment failed: %w", err)
	}

	existing, err := c.registry.Get(ctx, controller.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to read profile registry: %w", err)
	}

	updated := append([]core.SmartAccountProfile{*profile}, existing...)
	if err := c.registry.Put(ctx, controller.Hex(), updated); err != nil {
		return nil, fmt.Errorf("failed to record profile: %w", err)
	}

	if c.events != nil {
		if err := c.events.PublishProfileCreated(ctx, controller.Hex(), profile.Address, profile.DeploymentTxHash); err != nil {
			c.log.WithError(err).Warn("failed to publish profile event")
		}
	}

	c.log.WithFields(logrus.Fields{
		"controller": controller.Hex(),
		"profile":    profile.Address,
	}).Info("profile created")

	return profile, nil
}

// ListProfiles returns the registry document for the active controller,
// newest first.
func (c *ProfileController) ListProfiles(ctx context.Context) ([]core.SmartAccountProfile, error) {
	controller, err := c.activeController()
	if err != nil {
		return nil, err
	}
	return c.registry.Get(ctx, controller.Hex())
}

// ProfileDetails reads the on-chain view of one smart account.
func (c *ProfileController) ProfileDetails(ctx context.Context, profile common.Address) (*ProfileDetails, error) {
	keyManager, err := c.chain.Owner(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key manager: %w", err)
	}

	balance, err := c.chain.Balance(ctx, profile)
	if err != nil {
		return nil, err
	}

	details := &ProfileDetails{
		Address:    profile.Hex(),
		KeyManager: keyManager.Hex(),
		Balance:    decimal.NewFromBigInt(balance, -nativeDecimals).String(),
	}

	greeting, err := c.chain.GetData(ctx, profile, GreetingKey)
	if err != nil {
		c.log.WithError(err).Debug("greeting not readable")
	} else {
		details.Greeting = string(greeting)
	}

	return details, nil
}
