package lifecycle

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
)

type State int

const (
	StateBuilt State = iota
	StateEstimated
	StateSigned
	StateSubmitted
	StateIncluded
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateEstimated:
		return "estimated"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	case StateIncluded:
		return "included"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Built is an operation with zero gas limits and fees and the placeholder signature
type Built struct {
	op  *userop.UserOperation
	key *big.Int
}

func (b *Built) Operation() *userop.UserOperation { return b.op.Clone() }
func (b *Built) NonceKey() *big.Int               { return new(big.Int).Set(b.key) }

// Estimated carries limits from the bundler (or the fallback) and fees. Its
// signature is stale and is replaced by Finalize.
type Estimated struct {
	op       *userop.UserOperation
	key      *big.Int
	gas      *bundler.GasEstimation
	verified bool
}

func (e *Estimated) Operation() *userop.UserOperation { return e.op.Clone() }

// Gas is the estimate before the margin was applied
func (e *Estimated) Gas() *bundler.GasEstimation {
	return &bundler.GasEstimation{
		PreVerificationGas:   new(big.Int).Set(e.gas.PreVerificationGas),
		VerificationGasLimit: new(big.Int).Set(e.gas.VerificationGasLimit),
		CallGasLimit:         new(big.Int).Set(e.gas.CallGasLimit),
	}
}

// Verified is false when the limits came from the test-only fallback
func (e *Estimated) Verified() bool { return e.verified }

// Signed is final. Nothing hands out its operation except as a copy.
type Signed struct {
	op       *userop.UserOperation
	key      *big.Int
	hash     common.Hash
	gas      *bundler.GasEstimation
	verified bool
}

func (s *Signed) Operation() *userop.UserOperation { return s.op.Clone() }
func (s *Signed) Hash() common.Hash                { return s.hash }

type Submitted struct {
	signed      *Signed
	opHash      common.Hash
	submittedAt time.Time
}

// OpHash is the hash the bundler acknowledged
func (s *Submitted) OpHash() common.Hash              { return s.opHash }
func (s *Submitted) Operation() *userop.UserOperation { return s.signed.Operation() }
func (s *Submitted) SubmittedAt() time.Time           { return s.submittedAt }

// Included holds the receipt of a submitted operation. Its state is
// StateFailed when the bundle reverted or the operation itself failed.
type Included struct {
	submitted *Submitted
	receipt   *bundler.UserOperationReceipt
	attempts  int
	state     State
}

func (i *Included) State() State                           { return i.state }
func (i *Included) Receipt() *bundler.UserOperationReceipt { return i.receipt }
func (i *Included) OpHash() common.Hash                    { return i.submitted.opHash }

// Attempts is how many polls it took to see the receipt
func (i *Included) Attempts() int { return i.attempts }
