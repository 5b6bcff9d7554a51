// Package lifecycle drives a user operation from construction to a reconciled
// receipt: build, estimate, sign, submit, await. Every step consumes the
// previous step's state type, so an operation cannot be submitted unsigned or
// changed after it was signed.
package lifecycle

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
)

var (
	ErrEstimationFailed   = errors.New("gas estimation failed")
	ErrNonceConflict      = errors.New("nonce conflict")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrReceiptTimeout     = errors.New("receipt timeout")
	ErrOperationFailed    = errors.New("operation failed")
	ErrHashUnavailable    = errors.New("operation hash unavailable")
	ErrSigningFailed      = errors.New("signing failed")
	ErrInvalidNonceKey    = errors.New("invalid nonce key")
)

// NonceReader reads the next nonce of (sender, key) from the entry point
type NonceReader interface {
	GetNonce(ctx context.Context, sender common.Address, key *big.Int) (*big.Int, error)
}

// OpHasher computes the hash the account verifies signatures against
type OpHasher interface {
	GetUserOpHash(ctx context.Context, op *userop.UserOperation) (common.Hash, error)
}

type GasEstimator interface {
	EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation, entrypoint common.Address) (*bundler.GasEstimation, error)
}

type OperationSender interface {
	SendUserOperation(ctx context.Context, op *userop.UserOperation, entrypoint common.Address) (common.Hash, error)
}

// ReceiptFetcher returns a nil receipt and nil error while the operation is pending
type ReceiptFetcher interface {
	GetUserOperationReceipt(ctx context.Context, opHash common.Hash) (*bundler.UserOperationReceipt, error)
}

// Bundler is the full bundler surface; *bundler.BundlerClient implements it
type Bundler interface {
	GasEstimator
	OperationSender
	ReceiptFetcher
}

type FeeSuggester interface {
	SuggestFee(ctx context.Context) (maxFeePerGas *big.Int, maxPriorityFeePerGas *big.Int, err error)
}

// Metrics receives one call per state transition and per receipt poll
type Metrics interface {
	IncTransition(state string)
	IncReceiptPoll(status string)
}

type noopMetrics struct{}

func (noopMetrics) IncTransition(string)  {}
func (noopMetrics) IncReceiptPoll(string) {}

func ensureMetrics(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// DemoNonceKey spreads consecutive runs over seven nonce keys starting at
// 1000, so a stuck operation on one key does not block the next run.
func DemoNonceKey(txCount uint64) *big.Int {
	return new(big.Int).SetUint64(1000 + txCount%7)
}
