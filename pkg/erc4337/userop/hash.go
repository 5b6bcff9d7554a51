package userop

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	addressType = mustType("address", nil)
	uint256Type = mustType("uint256", nil)
	bytes32Type = mustType("bytes32", nil)

	hashDomainArgs = abi.Arguments{
		{Name: "sender", Type: addressType},
		{Name: "nonce", Type: uint256Type},
		{Name: "initCode", Type: bytes32Type},
		{Name: "callData", Type: bytes32Type},
		{Name: "callGasLimit", Type: uint256Type},
		{Name: "verificationGasLimit", Type: uint256Type},
		{Name: "preVerificationGas", Type: uint256Type},
		{Name: "maxFeePerGas", Type: uint256Type},
		{Name: "maxPriorityFeePerGas", Type: uint256Type},
		{Name: "paymasterAndData", Type: bytes32Type},
	}

	envelopeArgs = abi.Arguments{
		{Name: "opHash", Type: bytes32Type},
		{Name: "entryPoint", Type: addressType},
		{Name: "chainId", Type: uint256Type},
	}
)

// LocalHasher recomputes the entry point v0.6 getUserOpHash off-chain. The
// lifecycle asks the entry point itself for the hash; this one is for offline
// tests and for checking a signature after the fact.
type LocalHasher struct {
	EntryPoint common.Address
	ChainID    *big.Int
}

// GetUserOpHash implements the same contract as the entry point's getUserOpHash.
func (h *LocalHasher) GetUserOpHash(_ context.Context, op *UserOperation) (common.Hash, error) {
	if h.ChainID == nil {
		return common.Hash{}, fmt.Errorf("local hasher needs a chain id")
	}

	o := op.Clone()
	inner, err := hashDomainArgs.Pack(
		o.Sender,
		o.Nonce,
		crypto.Keccak256Hash(o.InitCode),
		crypto.Keccak256Hash(o.CallData),
		o.CallGasLimit,
		o.VerificationGasLimit,
		o.PreVerificationGas,
		o.MaxFeePerGas,
		o.MaxPriorityFeePerGas,
		crypto.Keccak256Hash(o.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack hash domain: %w", err)
	}

	outer, err := envelopeArgs.Pack(crypto.Keccak256Hash(inner), h.EntryPoint, h.ChainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack hash envelope: %w", err)
	}

	return crypto.Keccak256Hash(outer), nil
}
