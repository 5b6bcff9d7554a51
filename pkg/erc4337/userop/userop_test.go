package userop

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x77Fe14A710E33De68855b0eA93Ed8128025328a9"),
		Nonce:                ComposeNonce(big.NewInt(1003), 7),
		InitCode:             []byte{},
		CallData:             common.FromHex("0xb61d27f6000000000000000000000000000000000000000000000000000000000000beef"),
		CallGasLimit:         big.NewInt(120000),
		VerificationGasLimit: big.NewInt(80000),
		PreVerificationGas:   big.NewInt(45000),
		MaxFeePerGas:         big.NewInt(2_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		PaymasterAndData:     []byte{},
		Signature:            DummySignature,
	}
}

func testHasher() *LocalHasher {
	return &LocalHasher{
		EntryPoint: common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"),
		ChainID:    big.NewInt(901),
	}
}

func TestDummySignatureShape(t *testing.T) {
	require.Len(t, DummySignature, SignatureLength)
	// v must be 27 or 28 so the signature decodes
	assert.Equal(t, byte(0x1c), DummySignature[64])
}

func TestPackCoversSignature(t *testing.T) {
	op := sampleOp()

	packed, err := Pack(op)
	require.NoError(t, err)
	// tuple head is word aligned and the sender is the first static word
	assert.Zero(t, len(packed)%32)
	assert.Contains(t, string(packed), string(common.LeftPadBytes(op.Sender.Bytes(), 32)))

	other := op.Clone()
	other.Signature = []byte{0x01}
	packedOther, err := Pack(other)
	require.NoError(t, err)
	assert.NotEqual(t, packed, packedOther)
}

func TestPackTreatsNilAsZero(t *testing.T) {
	op := &UserOperation{Sender: common.HexToAddress("0x01")}

	packed, err := Pack(op)
	require.NoError(t, err)

	zero := op.Clone()
	packedZero, err := Pack(zero)
	require.NoError(t, err)
	assert.Equal(t, packedZero, packed)
}

func TestLocalHashDeterministic(t *testing.T) {
	h := testHasher()

	a, err := h.GetUserOpHash(context.Background(), sampleOp())
	require.NoError(t, err)
	b, err := h.GetUserOpHash(context.Background(), sampleOp())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalHashChangesWithEveryHashedField(t *testing.T) {
	h := testHasher()
	base, err := h.GetUserOpHash(context.Background(), sampleOp())
	require.NoError(t, err)

	mutations := map[string]func(op *UserOperation){
		"sender":               func(op *UserOperation) { op.Sender = common.HexToAddress("0x02") },
		"nonce":                func(op *UserOperation) { op.Nonce.Add(op.Nonce, big.NewInt(1)) },
		"initCode":             func(op *UserOperation) { op.InitCode = []byte{0x01} },
		"callData":             func(op *UserOperation) { op.CallData = append(op.CallData, 0x00) },
		"callGasLimit":         func(op *UserOperation) { op.CallGasLimit.Add(op.CallGasLimit, big.NewInt(1)) },
		"verificationGasLimit": func(op *UserOperation) { op.VerificationGasLimit.Add(op.VerificationGasLimit, big.NewInt(1)) },
		"preVerificationGas":   func(op *UserOperation) { op.PreVerificationGas.Add(op.PreVerificationGas, big.NewInt(1)) },
		"maxFeePerGas":         func(op *UserOperation) { op.MaxFeePerGas.Add(op.MaxFeePerGas, big.NewInt(1)) },
		"maxPriorityFeePerGas": func(op *UserOperation) { op.MaxPriorityFeePerGas.Add(op.MaxPriorityFeePerGas, big.NewInt(1)) },
		"paymasterAndData":     func(op *UserOperation) { op.PaymasterAndData = []byte{0x01} },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			op := sampleOp()
			mutate(op)
			got, err := h.GetUserOpHash(context.Background(), op)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestLocalHashIgnoresSignature(t *testing.T) {
	h := testHasher()
	op := sampleOp()
	a, err := h.GetUserOpHash(context.Background(), op)
	require.NoError(t, err)

	op.Signature = make([]byte, SignatureLength)
	b, err := h.GetUserOpHash(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLocalHashDependsOnChainAndEntryPoint(t *testing.T) {
	op := sampleOp()
	a, err := testHasher().GetUserOpHash(context.Background(), op)
	require.NoError(t, err)

	other := testHasher()
	other.ChainID = big.NewInt(1)
	b, err := other.GetUserOpHash(context.Background(), op)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = (&LocalHasher{}).GetUserOpHash(context.Background(), op)
	assert.Error(t, err)
}

func TestNonceComposition(t *testing.T) {
	key := big.NewInt(1005)
	nonce := ComposeNonce(key, 42)

	assert.Equal(t, 0, key.Cmp(NonceKey(nonce)))
	assert.Equal(t, uint64(42), NonceSequence(nonce))
	assert.Equal(t, uint64(0), NonceSequence(nil))

	assert.True(t, ValidNonceKey(MaxNonceKey))
	assert.False(t, ValidNonceKey(new(big.Int).Add(MaxNonceKey, big.NewInt(1))))
	assert.False(t, ValidNonceKey(big.NewInt(-1)))
	assert.False(t, ValidNonceKey(nil))
}

func TestTotalGasLimit(t *testing.T) {
	assert.Equal(t, int64(245000), sampleOp().TotalGasLimit().Int64())
	assert.Equal(t, int64(0), (&UserOperation{}).TotalGasLimit().Int64())
}
