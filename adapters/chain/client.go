// Package chain adapts a JSON-RPC node to the narrow ChainClient port and
// carries the relayer identity that pays fees for relay calls. The relayer
// EOA has no authority over any smart account; authority comes entirely from
// the envelope signature.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/layer-3/rangda/contracts"
	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

const receiptPollInterval = 2 * time.Second

// Client implements ports.ChainClient over an RPC node.
type Client struct {
	rpc        *ethclient.Client
	relayerKey *ecdsa.PrivateKey
	relayer    common.Address
	log        *logrus.Entry
}

// Dial connects to the RPC node and loads the relayer key from hex.
func Dial(ctx context.Context, rpcURL, relayerKeyHex string, log *logrus.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC node: %w", err)
	}

	key, err := crypto.HexToECDSA(relayerKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid relayer key: %w", err)
	}

	return &Client{
		rpc:        rpc,
		relayerKey: key,
		relayer:    crypto.PubkeyToAddress(key.PublicKey),
		log:        log.WithField("component", "chain"),
	}, nil
}

var _ ports.ChainClient = (*Client)(nil)

// Relayer returns the fee-paying identity address.
func (c *Client) Relayer() common.Address {
	return c.relayer
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the network id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %v", core.ErrNetworkUnavailable, err)
	}
	return id, nil
}

// RelayNonce reads the current channel nonce for the controller on the key
// manager.
func (c *Client) RelayNonce(ctx context.Context, keyManager, controller common.Address, channel *big.Int) (*big.Int, error) {
	data, err := contracts.PackGetNonce(controller, channel)
	if err != nil {
		return nil, err
	}
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &keyManager, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: getNonce: %v", core.ErrNetworkUnavailable, err)
	}
	return contracts.UnpackGetNonce(result)
}

// Owner returns the owner of a smart account.
func (c *Client) Owner(ctx context.Context, account common.Address) (common.Address, error) {
	data, err := contracts.PackOwner()
	if err != nil {
		return common.Address{}, err
	}
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &account, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: owner: %v", core.ErrNetworkUnavailable, err)
	}
	return contracts.UnpackOwner(result)
}

// Balance returns the native-token balance of an address.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	balance, err := c.rpc.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balance: %v", core.ErrNetworkUnavailable, err)
	}
	return balance, nil
}

// GetData reads a stored data value from a smart account.
func (c *Client) GetData(ctx context.Context, account common.Address, key common.Hash) ([]byte, error) {
	data, err := contracts.PackGetData(key)
	if err != nil {
		return nil, err
	}
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &account, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: getData: %v", core.ErrNetworkUnavailable, err)
	}
	return contracts.UnpackGetData(result)
}

// EstimateRelayCall estimates gas for executeRelayCall from the relayer. A
// rejection is classified: a stale nonce stays retryable, everything else is
// ErrEstimationFailed with the decoded revert attached when available.
func (c *Client) EstimateRelayCall(ctx context.Context, keyManager common.Address, signature []byte, nonce, validity *big.Int, payload []byte) (uint64, error) {
	data, err := contracts.PackExecuteRelayCall(signature, nonce, validity, payload)
	if err != nil {
		return 0, err
	}

	gas, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From: c.relayer,
		To:   &keyManager,
		Data: data,
	})
	if err != nil {
		if raw := revertData(err); raw != nil {
			decoded := contracts.DecodeRevert(raw)
			if errors.Is(decoded, core.ErrNonceStale) {
				return 0, decoded
			}
			return 0, fmt.Errorf("%w: %v", core.ErrEstimationFailed, decoded)
		}
		return 0, fmt.Errorf("%w: %v", core.ErrEstimationFailed, err)
	}
	return gas, nil
}

// SubmitRelayCall signs and broadcasts executeRelayCall with the relayer
// paying fees.
func (c *Client) SubmitRelayCall(ctx context.Context, keyManager common.Address, signature []byte, nonce, validity *big.Int, payload []byte, gasLimit uint64) (common.Hash, error) {
	data, err := contracts.PackExecuteRelayCall(signature, nonce, validity, payload)
	if err != nil {
		return common.Hash{}, err
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	accountNonce, err := c.rpc.PendingNonceAt(ctx, c.relayer)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: relayer nonce: %v", core.ErrNetworkUnavailable, err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: gas price: %v", core.ErrNetworkUnavailable, err)
	}

	tx := types.NewTransaction(accountNonce, keyManager, new(big.Int), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.relayerKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign relay transaction: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: send transaction: %v", core.ErrNetworkUnavailable, err)
	}

	c.log.WithFields(logrus.Fields{
		"tx":          signed.Hash().Hex(),
		"key_manager": keyManager.Hex(),
		"gas_limit":   gasLimit,
	}).Info("relay call submitted")

	return signed.Hash(), nil
}

// WaitMined polls for one confirmation. A reverted transaction returns both
// the receipt and the decoded on-chain failure.
func (c *Client) WaitMined(ctx context.Context, tx common.Hash) (*ports.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, tx)
		if err == nil && receipt != nil {
			out := &ports.Receipt{
				TxHash:      receipt.TxHash,
				BlockNumber: receipt.BlockNumber,
				GasUsed:     receipt.GasUsed,
				Status:      receipt.Status,
			}
			if receipt.Status == types.ReceiptStatusFailed {
				return out, c.replayForRevert(ctx, tx, receipt.BlockNumber)
			}
			return out, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.WithError(err).Debug("receipt poll failed")
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// replayForRevert re-executes a failed transaction as a call at its block to
// recover the revert payload.
func (c *Client) replayForRevert(ctx context.Context, hash common.Hash, block *big.Int) error {
	tx, _, err := c.rpc.TransactionByHash(ctx, hash)
	if err != nil {
		return &core.RelayRevertError{}
	}

	msg := ethereum.CallMsg{
		From:  c.relayer,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err = c.rpc.CallContract(ctx, msg, block)
	if err == nil {
		// The state moved since the failing block; surface an undecoded
		// revert rather than pretending success.
		return &core.RelayRevertError{}
	}
	if raw := revertData(err); raw != nil {
		return contracts.DecodeRevert(raw)
	}
	return &core.RelayRevertError{}
}

// revertData extracts the raw revert payload a node attaches to call and
// estimate errors.
func revertData(err error) []byte {
	var de interface{ ErrorData() interface{} }
	if !errors.As(err, &de) {
		return nil
	}
	if hexStr, ok := de.ErrorData().(string); ok {
		return common.FromHex(hexStr)
	}
	return nil
}
