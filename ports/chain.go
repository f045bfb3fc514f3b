package ports

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt is the confirmation of a submitted relay call.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	GasUsed     uint64
	Status      uint64
}

// ChainClient is the narrow view of an RPC node this system needs.
type ChainClient interface {
	// ChainID returns the network id transactions are bound to.
	ChainID(ctx context.Context) (*big.Int, error)

	// RelayNonce reads the current nonce for a signing channel of the
	// controller on the given key manager. Must be fetched fresh
	// immediately before signing.
	RelayNonce(ctx context.Context, keyManager, controller common.Address, channel *big.Int) (*big.Int, error)

	// Owner returns the owner of a smart account (its key manager).
	Owner(ctx context.Context, account common.Address) (common.Address, error)

	// Balance returns the native-token balance of an address.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)

	// GetData reads a data value stored under a key on a smart account.
	GetData(ctx context.Context, account common.Address, key common.Hash) ([]byte, error)

	// EstimateRelayCall estimates gas for executeRelayCall against the key
	// manager from the relayer identity. A failed estimation indicates the
	// envelope or signature would revert.
	EstimateRelayCall(ctx context.Context, keyManager common.Address, signature []byte, nonce, validity *big.Int, payload []byte) (uint64, error)

	// SubmitRelayCall signs and broadcasts executeRelayCall with the
	// relayer identity paying fees, then returns the transaction hash.
	SubmitRelayCall(ctx context.Context, keyManager common.Address, signature []byte, nonce, validity *big.Int, payload []byte, gasLimit uint64) (common.Hash, error)

	// WaitMined blocks until the transaction has one confirmation. When
	// the transaction reverted, the returned error carries the decoded
	// on-chain failure and the receipt is still returned.
	WaitMined(ctx context.Context, tx common.Hash) (*Receipt, error)
}
