package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// well known hardhat account #0
const testKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestParsePrivateKey(t *testing.T) {
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", crypto.PubkeyToAddress(key.PublicKey).Hex())

	_, err = ParsePrivateKey("not-a-key")
	assert.Error(t, err)
}

func TestSignMessageRecoversSigner(t *testing.T) {
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	opHash := crypto.Keccak256([]byte("user operation"))
	sig, err := SignMessage(key, opHash)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	assert.True(t, VerifySignature(owner, opHash, sig))

	other := crypto.Keccak256([]byte("another operation"))
	assert.False(t, VerifySignature(owner, other, sig))
}

func TestSignMessageIsDeterministic(t *testing.T) {
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)

	a, err := SignMessage(key, []byte("hello"))
	require.NoError(t, err)
	b, err := SignMessage(key, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRecoverSignerRejectsGarbage(t *testing.T) {
	_, err := RecoverSigner([]byte("x"), []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = SignMessage(nil, []byte("x"))
	assert.Error(t, err)
}
