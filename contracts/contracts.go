// Package contracts holds the ABI surface of the on-chain collaborators: the
// smart account (ERC725-style profile) and the key manager verifying relay
// calls. Pure encoding helpers, no I/O.
package contracts

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/rangda/core"
)

const accountABIJSON = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getData","stateMutability":"view","inputs":[{"name":"dataKey","type":"bytes32"}],"outputs":[{"name":"dataValue","type":"bytes"}]},
	{"type":"function","name":"setData","stateMutability":"payable","inputs":[{"name":"dataKey","type":"bytes32"},{"name":"dataValue","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"execute","stateMutability":"payable","inputs":[{"name":"operationType","type":"uint256"},{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[{"name":"","type":"bytes"}]}
]`

const keyManagerABIJSON = `[
	{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"from","type":"address"},{"name":"channelId","type":"uint128"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"executeRelayCall","stateMutability":"payable","inputs":[{"name":"signature","type":"bytes"},{"name":"nonce","type":"uint256"},{"name":"validityTimestamps","type":"uint256"},{"name":"payload","type":"bytes"}],"outputs":[{"name":"","type":"bytes"}]},
	{"type":"error","name":"InvalidRelayNonce","inputs":[{"name":"signer","type":"address"},{"name":"invalidNonce","type":"uint256"},{"name":"signature","type":"bytes"}]},
	{"type":"error","name":"RelayCallBeforeStartTime","inputs":[]},
	{"type":"error","name":"RelayCallExpired","inputs":[]},
	{"type":"error","name":"NoPermissionsSet","inputs":[{"name":"from","type":"address"}]},
	{"type":"error","name":"NotAuthorised","inputs":[{"name":"from","type":"address"},{"name":"permission","type":"string"}]},
	{"type":"error","name":"InvalidERC725Function","inputs":[{"name":"invalidFunction","type":"bytes4"}]}
]`

var (
	// AccountABI is the smart account profile interface.
	AccountABI = mustParseABI(accountABIJSON)

	// KeyManagerABI is the relay-verifying key manager interface.
	KeyManagerABI = mustParseABI(keyManagerABIJSON)
)

// revertSelector prefixes a standard Error(string) revert payload.
var revertSelector = common.Hex2Bytes("08c379a0")

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contracts: bad ABI definition: %v", err))
	}
	return parsed
}

// PackSetData encodes setData(bytes32,bytes) on the smart account.
func PackSetData(key common.Hash, value []byte) ([]byte, error) {
	return AccountABI.Pack("setData", [32]byte(key), value)
}

// PackGetData encodes getData(bytes32) on the smart account.
func PackGetData(key common.Hash) ([]byte, error) {
	return AccountABI.Pack("getData", [32]byte(key))
}

// UnpackGetData decodes the bytes result of getData.
func UnpackGetData(result []byte) ([]byte, error) {
	out, err := AccountABI.Unpack("getData", result)
	if err != nil {
		return nil, err
	}
	value, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected getData result type %T", out[0])
	}
	return value, nil
}

// PackOwner encodes owner() on the smart account.
func PackOwner() ([]byte, error) {
	return AccountABI.Pack("owner")
}

// UnpackOwner decodes the address result of owner().
func UnpackOwner(result []byte) (common.Address, error) {
	out, err := AccountABI.Unpack("owner", result)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected owner result type %T", out[0])
	}
	return addr, nil
}

// PackGetNonce encodes getNonce(address,uint128) on the key manager.
func PackGetNonce(controller common.Address, channel *big.Int) ([]byte, error) {
	return KeyManagerABI.Pack("getNonce", controller, channel)
}

// UnpackGetNonce decodes the uint256 result of getNonce.
func UnpackGetNonce(result []byte) (*big.Int, error) {
	out, err := KeyManagerABI.Unpack("getNonce", result)
	if err != nil {
		return nil, err
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result type %T", out[0])
	}
	return nonce, nil
}

// PackExecuteRelayCall encodes executeRelayCall(bytes,uint256,uint256,bytes)
// on the key manager.
func PackExecuteRelayCall(signature []byte, nonce, validity *big.Int, payload []byte) ([]byte, error) {
	return KeyManagerABI.Pack("executeRelayCall", signature, nonce, validity, payload)
}

// DecodeRevert turns a raw revert payload into the error taxonomy: a stale
// relay nonce maps to core.ErrNonceStale, known key manager errors decode to
// a RelayRevertError with name and arguments, and anything else surfaces the
// raw payload.
func DecodeRevert(data []byte) error {
	if len(data) < 4 {
		return &core.RelayRevertError{Raw: data}
	}

	if bytes.Equal(data[:4], revertSelector) {
		reason, err := abi.UnpackRevert(data)
		if err == nil {
			return &core.RelayRevertError{
				Selector: [4]byte(data[:4]),
				Name:     "Error",
				Args:     []any{reason},
				Raw:      data,
			}
		}
	}

	for name, def := range KeyManagerABI.Errors {
		if !bytes.Equal(def.ID.Bytes()[:4], data[:4]) {
			continue
		}
		if name == "InvalidRelayNonce" {
			return fmt.Errorf("%w: %s", core.ErrNonceStale, def.String())
		}
		decoded := &core.RelayRevertError{Selector: [4]byte(data[:4]), Name: name, Raw: data}
		if unpacked, err := def.Unpack(data); err == nil {
			if args, ok := unpacked.([]any); ok {
				decoded.Args = args
			} else {
				decoded.Args = []any{unpacked}
			}
		}
		return decoded
	}

	return &core.RelayRevertError{Selector: [4]byte(data[:4]), Raw: data}
}
