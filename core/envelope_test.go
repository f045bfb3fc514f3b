package core

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeEncodeLayout(t *testing.T) {
	payload := common.FromHex("0x7f23690c")
	env := NewRelayEnvelope(
		big.NewInt(4201),
		big.NewInt(5),
		ValidityWindow{},
		big.NewInt(0),
		payload,
	)

	encoded := env.Encode()
	require.Len(t, encoded, 5*32+len(payload))

	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(encoded[i*32 : (i+1)*32])
	}

	assert.Equal(t, int64(25), word(0).Int64(), "version word")
	assert.Equal(t, int64(4201), word(1).Int64(), "chain id word")
	assert.Equal(t, int64(5), word(2).Int64(), "nonce word")
	assert.Equal(t, int64(0), word(3).Int64(), "validity word")
	assert.Equal(t, int64(0), word(4).Int64(), "value word")
	assert.True(t, bytes.Equal(payload, encoded[5*32:]), "payload appended raw")
}

func TestEnvelopeDeterministic(t *testing.T) {
	build := func() RelayEnvelope {
		return NewRelayEnvelope(
			big.NewInt(4201),
			big.NewInt(42),
			ValidityWindow{NotBefore: 100, NotAfter: 200},
			big.NewInt(7),
			[]byte{0xde, 0xad, 0xbe, 0xef},
		)
	}

	validator := common.HexToAddress("0x000000000000000000000000000000000000cafe")

	first, second := build(), build()
	assert.Equal(t, first.Encode(), second.Encode())
	assert.Equal(t, first.Digest(validator), second.Digest(validator))
}

func TestValidityWindowWord(t *testing.T) {
	assert.Zero(t, ValidityWindow{}.Word().Sign(), "zero window is the zero word")

	w := ValidityWindow{NotBefore: 1, NotAfter: 1735689600}
	word := w.Word()

	upper := new(big.Int).Rsh(word, 128)
	lower := new(big.Int).And(word, new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))
	assert.Equal(t, uint64(1), upper.Uint64())
	assert.Equal(t, uint64(1735689600), lower.Uint64())
}

func TestDigestBindsIntendedValidator(t *testing.T) {
	env := NewRelayEnvelope(big.NewInt(1), big.NewInt(0), ValidityWindow{}, nil, []byte{0x01})
	validator := common.HexToAddress("0x1111111111111111111111111111111111111111")

	expected := crypto.Keccak256Hash(append(append([]byte{0x19, 0x00}, validator.Bytes()...), env.Encode()...))
	assert.Equal(t, expected, env.Digest(validator))

	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	assert.NotEqual(t, env.Digest(validator), env.Digest(other), "different validators yield different digests")
}

func TestSignatureRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	controller := crypto.PubkeyToAddress(key.PublicKey)

	env := NewRelayEnvelope(big.NewInt(4201), big.NewInt(3), ValidityWindow{}, nil, []byte{0xaa})
	digest := env.Digest(common.HexToAddress("0xcafe000000000000000000000000000000000000"))

	raw, err := crypto.Sign(digest.Bytes(), key)
	require.NoError(t, err)

	// The signing network hands back v as 27/28.
	raw[64] += 27

	sig := RelaySignature{Digest: digest, Raw: raw}
	recovered, err := sig.RecoverAddress()
	require.NoError(t, err)
	assert.Equal(t, controller, recovered)
	assert.NoError(t, sig.VerifyController(controller))

	assert.ErrorIs(t, sig.VerifyController(common.HexToAddress("0xbadbadbadbadbadbadbadbadbadbadbadbadbad0")), ErrBadSignature)
}

func TestSignatureBadLength(t *testing.T) {
	sig := RelaySignature{Raw: []byte{0x01, 0x02}}
	_, err := sig.RecoverAddress()
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSessionCredentialExpiryBoundary(t *testing.T) {
	now := time.Now()
	cred := SessionCredential{NotAfter: now}

	assert.True(t, cred.Expired(now), "notAfter == now is expired")
	assert.True(t, cred.Expired(now.Add(time.Second)))
	assert.False(t, cred.Expired(now.Add(-time.Second)))
}

func TestSessionCredentialAllows(t *testing.T) {
	cred := SessionCredential{Grants: []Capability{CapabilitySign, CapabilityExecute}}

	assert.True(t, cred.Allows(CapabilitySign))
	assert.True(t, cred.Allows(CapabilitySign, CapabilityExecute))
	assert.False(t, cred.Allows(CapabilityDecrypt))
	assert.False(t, cred.Allows(CapabilitySign, CapabilityDecrypt))
}
