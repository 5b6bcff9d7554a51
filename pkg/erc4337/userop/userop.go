// Package userop holds the ERC-4337 (entry point v0.6) UserOperation model and
// the exact ABI layout the entry point uses for it.
package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// SignatureLength is the size of an (r,s,v) secp256k1 signature
const SignatureLength = 65

// DummySignature is a syntactically valid but non-binding signature used while
// the operation still carries zero gas limits. It decodes as r,s,v so the
// account's validation path can run during gas estimation.
var DummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// UserOperation represents an EIP-4337 style transaction for a smart contract account.
// Field order matches the entry point tuple
// (address,uint256,bytes,bytes,uint256,uint256,uint256,uint256,uint256,bytes,bytes).
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                *big.Int       `json:"nonce"`
	InitCode             []byte         `json:"initCode"`
	CallData             []byte         `json:"callData"`
	CallGasLimit         *big.Int       `json:"callGasLimit"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas"`
	PaymasterAndData     []byte         `json:"paymasterAndData"`
	Signature            []byte         `json:"signature"`
}

var (
	// UserOperationType is the ABI tuple type of a v0.6 UserOperation
	UserOperationType = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "sender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "initCode", Type: "bytes"},
		{Name: "callData", Type: "bytes"},
		{Name: "callGasLimit", Type: "uint256"},
		{Name: "verificationGasLimit", Type: "uint256"},
		{Name: "preVerificationGas", Type: "uint256"},
		{Name: "maxFeePerGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint256"},
		{Name: "paymasterAndData", Type: "bytes"},
		{Name: "signature", Type: "bytes"},
	})

	userOpArgs = abi.Arguments{{Name: "userOp", Type: UserOperationType}}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Errorf("invalid abi type %s: %w", t, err))
	}
	return typ
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte{}, b...)
}

// Clone returns a deep copy where every nil number is replaced with zero and
// every nil byte slice with an empty one, so the copy is always packable.
func (op *UserOperation) Clone() *UserOperation {
	return &UserOperation{
		Sender:               op.Sender,
		Nonce:                orZero(op.Nonce),
		InitCode:             cloneBytes(op.InitCode),
		CallData:             cloneBytes(op.CallData),
		CallGasLimit:         orZero(op.CallGasLimit),
		VerificationGasLimit: orZero(op.VerificationGasLimit),
		PreVerificationGas:   orZero(op.PreVerificationGas),
		MaxFeePerGas:         orZero(op.MaxFeePerGas),
		MaxPriorityFeePerGas: orZero(op.MaxPriorityFeePerGas),
		PaymasterAndData:     cloneBytes(op.PaymasterAndData),
		Signature:            cloneBytes(op.Signature),
	}
}

// TotalGasLimit is callGasLimit + verificationGasLimit + preVerificationGas
func (op *UserOperation) TotalGasLimit() *big.Int {
	total := orZero(op.CallGasLimit)
	total.Add(total, orZero(op.VerificationGasLimit))
	return total.Add(total, orZero(op.PreVerificationGas))
}

// Pack serializes the operation as the single tuple argument the entry point
// receives in getUserOpHash/handleOps. The signature is part of the tuple even
// though the entry point excludes it from the hash domain.
func Pack(op *UserOperation) ([]byte, error) {
	packed, err := userOpArgs.Pack(op.Clone())
	if err != nil {
		return nil, fmt.Errorf("failed to pack user operation: %w", err)
	}
	return packed, nil
}
