package service

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// RelaySubmitter takes a signed envelope, estimates its execution cost,
// submits it through the fee-paying relay identity and awaits one
// confirmation. At-most-once is not guaranteed end-to-end: a receipt lost to
// a process restart after submission is not reconciled.
type RelaySubmitter struct {
	chain  ports.ChainClient
	events ports.EventPublisher
	log    *logrus.Entry
}

// NewRelaySubmitter creates a relay submitter.
func NewRelaySubmitter(chain ports.ChainClient, events ports.EventPublisher, log *logrus.Logger) *RelaySubmitter {
	return &RelaySubmitter{
		chain:  chain,
		events: events,
		log:    log.WithField("component", "relay"),
	}
}

// Submit runs estimate, submit, await for a signed envelope against the key
// manager. Estimation failure aborts before any relay funds are spent; a
// revert surfaces the decoded on-chain failure alongside the receipt.
func (s *RelaySubmitter) Submit(ctx context.Context, keyManager common.Address, env core.RelayEnvelope, sig core.RelaySignature) (*ports.Receipt, error) {
	validity := env.Validity.Word()

	gasLimit, err := s.chain.EstimateRelayCall(ctx, keyManager, sig.Raw, env.Nonce, validity, env.Payload)
	if err != nil {
		// ErrNonceStale passes through for the caller to rebuild; anything
		// else means the envelope or signature would revert.
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"key_manager": keyManager.Hex(),
		"nonce":       env.Nonce.String(),
		"gas_limit":   gasLimit,
	}).Info("submitting relay call")

	txHash, err := s.chain.SubmitRelayCall(ctx, keyManager, sig.Raw, env.Nonce, validity, env.Payload, gasLimit)
	if err != nil {
		return nil, fmt.Errorf("relay submission failed: %w", err)
	}

	receipt, err := s.chain.WaitMined(ctx, txHash)
	if err != nil {
		return receipt, err
	}

	if s.events != nil {
		controller, recoverErr := sig.RecoverAddress()
		if recoverErr == nil {
			if pubErr := s.events.PublishRelaySubmitted(ctx, controller.Hex(), txHash.Hex()); pubErr != nil {
				s.log.WithError(pubErr).Warn("failed to publish relay event")
			}
		}
	}

	return receipt, nil
}
