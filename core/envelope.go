package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RelayProtocolVersion is the constant version word every envelope starts
// with. On-chain verifiers reject any other value.
const RelayProtocolVersion = 25

// ValidityWindow bounds when an envelope may execute. Unix seconds; a zero
// bound means "no bound", so the zero value is unconditionally valid.
type ValidityWindow struct {
	NotBefore uint64
	NotAfter  uint64
}

// Word packs the window into the single uint256 the verifier expects: the
// starting timestamp occupies the upper 128 bits, the ending timestamp the
// lower 128.
func (w ValidityWindow) Word() *big.Int {
	word := new(big.Int).SetUint64(w.NotBefore)
	word.Lsh(word, 128)
	return word.Or(word, new(big.Int).SetUint64(w.NotAfter))
}

// RelayEnvelope is the canonical encoding of an intended contract call plus
// its replay-protection fields. Immutable once built; the digest derived from
// it is what gets signed.
type RelayEnvelope struct {
	ProtocolVersion uint64
	ChainID         *big.Int
	Nonce           *big.Int
	Validity        ValidityWindow
	NativeValue     *big.Int
	Payload         []byte
}

// NewRelayEnvelope builds an envelope for a call payload. Nil big integers
// are treated as zero so callers submitting no value need not allocate.
func NewRelayEnvelope(chainID, nonce *big.Int, validity ValidityWindow, nativeValue *big.Int, payload []byte) RelayEnvelope {
	if chainID == nil {
		chainID = new(big.Int)
	}
	if nonce == nil {
		nonce = new(big.Int)
	}
	if nativeValue == nil {
		nativeValue = new(big.Int)
	}
	return RelayEnvelope{
		ProtocolVersion: RelayProtocolVersion,
		ChainID:         chainID,
		Nonce:           nonce,
		Validity:        validity,
		NativeValue:     nativeValue,
		Payload:         payload,
	}
}

// Encode produces the tightly packed message the verifier hashes: five
// 32-byte big-endian words (version, chain id, nonce, validity, value)
// followed by the raw call payload. Field order and widths are a wire
// compatibility contract.
func (e RelayEnvelope) Encode() []byte {
	out := make([]byte, 0, 5*32+len(e.Payload))
	out = append(out, leftPad32(new(big.Int).SetUint64(e.ProtocolVersion))...)
	out = append(out, leftPad32(e.ChainID)...)
	out = append(out, leftPad32(e.Nonce)...)
	out = append(out, leftPad32(e.Validity.Word())...)
	out = append(out, leftPad32(e.NativeValue)...)
	out = append(out, e.Payload...)
	return out
}

// Digest hashes the encoded envelope bound to the verifying contract under
// EIP-191 version 0x00 (intended validator), preventing a signature minted
// for one key manager from replaying against another.
func (e RelayEnvelope) Digest(validator common.Address) common.Hash {
	data := e.Encode()
	buf := make([]byte, 0, 2+common.AddressLength+len(data))
	buf = append(buf, 0x19, 0x00)
	buf = append(buf, validator.Bytes()...)
	buf = append(buf, data...)
	return crypto.Keccak256Hash(buf)
}

func leftPad32(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) > 32 {
		// A field overflowing uint256 can only come from a caller bug;
		// truncate to the low-order bytes like the EVM would.
		b = b[len(b)-32:]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// RelaySignature is the output of the remote signing routine over an
// envelope digest.
type RelaySignature struct {
	Digest     common.Hash
	PublicKey  string // uncompressed hex public key of the signing key
	R          []byte
	S          []byte
	RecoveryID byte
	Raw        []byte // 65-byte r || s || v, v in {27, 28}
}

// RecoverAddress recovers the signer address from the digest and the raw
// signature. The raw form carries v as 27/28; go-ethereum expects 0/1.
func (s RelaySignature) RecoverAddress() (common.Address, error) {
	if len(s.Raw) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature length %d", ErrBadSignature, len(s.Raw))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, s.Raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(s.Digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyController checks that the signature recovers to the expected
// controller address. Run before any relay funds are spent.
func (s RelaySignature) VerifyController(controller common.Address) error {
	recovered, err := s.RecoverAddress()
	if err != nil {
		return err
	}
	if recovered != controller {
		return fmt.Errorf("%w: recovered %s, want %s", ErrBadSignature, recovered.Hex(), controller.Hex())
	}
	return nil
}
