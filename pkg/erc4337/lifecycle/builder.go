package lifecycle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

type Builder struct {
	EntryPoint NonceReader
	// Nonces, when set, keeps operations that are still pending in the
	// bundler from being assigned the same nonce
	Nonces *bundler.NonceManager
	Logger logger.Logger
}

// Build reads the nonce of (account, nonceKey) and assembles an operation with
// every gas limit and fee zeroed and the placeholder signature. Zero limits
// mean the operation authorizes nothing even if it leaks.
func (b *Builder) Build(ctx context.Context, account common.Address, nonceKey *big.Int, callData []byte) (*Built, error) {
	if !userop.ValidNonceKey(nonceKey) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNonceKey, nonceKey)
	}

	fetch := func(ctx context.Context) (*big.Int, error) {
		return b.EntryPoint.GetNonce(ctx, account, nonceKey)
	}

	var (
		nonce *big.Int
		err   error
	)
	if b.Nonces != nil {
		nonce, err = b.Nonces.GetNextNonce(ctx, account, nonceKey, fetch)
	} else {
		nonce, err = fetch(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce for %s key %s: %w", account.Hex(), nonceKey, err)
	}

	op := &userop.UserOperation{
		Sender:               account,
		Nonce:                nonce,
		InitCode:             []byte{},
		CallData:             append([]byte{}, callData...),
		CallGasLimit:         new(big.Int),
		VerificationGasLimit: new(big.Int),
		PreVerificationGas:   new(big.Int),
		MaxFeePerGas:         new(big.Int),
		MaxPriorityFeePerGas: new(big.Int),
		PaymasterAndData:     []byte{},
		Signature:            append([]byte{}, userop.DummySignature...),
	}

	logger.EnsureLogger(b.Logger).Debug("built user operation",
		"sender", account.Hex(),
		"nonceKey", nonceKey.String(),
		"sequence", userop.NonceSequence(nonce))

	return &Built{op: op, key: new(big.Int).Set(nonceKey)}, nil
}
