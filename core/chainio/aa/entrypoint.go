package aa

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
)

// EntryPointABI is the read-only surface of the v0.6 entry point this module uses.
const EntryPointABI = `[
	{"inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"components":[
		{"name":"sender","type":"address"},
		{"name":"nonce","type":"uint256"},
		{"name":"initCode","type":"bytes"},
		{"name":"callData","type":"bytes"},
		{"name":"callGasLimit","type":"uint256"},
		{"name":"verificationGasLimit","type":"uint256"},
		{"name":"preVerificationGas","type":"uint256"},
		{"name":"maxFeePerGas","type":"uint256"},
		{"name":"maxPriorityFeePerGas","type":"uint256"},
		{"name":"paymasterAndData","type":"bytes"},
		{"name":"signature","type":"bytes"}],"name":"userOp","type":"tuple"}],
	 "name":"getUserOpHash","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// EntryPoint is a call-only binding of the entry point contract.
type EntryPoint struct {
	address  common.Address
	contract *bind.BoundContract
}

func NewEntryPoint(address common.Address, caller bind.ContractCaller) (*EntryPoint, error) {
	parsed, err := abi.JSON(strings.NewReader(EntryPointABI))
	if err != nil {
		return nil, fmt.Errorf("invalid entry point abi: %w", err)
	}

	return &EntryPoint{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, caller, nil, nil),
	}, nil
}

func (ep *EntryPoint) Address() common.Address {
	return ep.address
}

// GetNonce returns the next nonce of sender for the given 192-bit key.
func (ep *EntryPoint) GetNonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error) {
	var out []interface{}
	err := ep.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getNonce", sender, key)
	if err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// GetUserOpHash asks the entry point for the hash the account will verify
// the signature against. The signature field does not influence it.
func (ep *EntryPoint) GetUserOpHash(ctx context.Context, op *userop.UserOperation) (common.Hash, error) {
	var out []interface{}
	err := ep.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getUserOpHash", *op.Clone())
	if err != nil {
		return common.Hash{}, err
	}

	return common.Hash(*abi.ConvertType(out[0], new([32]byte)).(*[32]byte)), nil
}

// BalanceOf is the account's deposit held by the entry point, which pays for its operations
func (ep *EntryPoint) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []interface{}
	err := ep.contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", account)
	if err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}
