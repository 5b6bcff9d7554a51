package lifecycle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

const DefaultMarginPercent = 10

// FallbackGas is used in place of a failed estimate when AllowFallback is set
var FallbackGas = bundler.GasEstimation{
	PreVerificationGas:   big.NewInt(0xffff),
	VerificationGasLimit: big.NewInt(0xffff),
	CallGasLimit:         big.NewInt(0x40000),
}

// Refiner runs the first phase of the two-phase estimation: it signs the
// zero-limit operation with a throwaway signature, asks the bundler for
// limits and folds them (plus a margin) and current fees into the operation.
type Refiner struct {
	EntryPoint common.Address
	Estimator  GasEstimator
	Signer     *Signer
	Fees       FeeSuggester

	// MarginPercent is added on top of every estimated limit
	MarginPercent int64

	// AllowFallback replaces a failed estimate with FallbackGas. Test setups only.
	AllowFallback bool

	Logger logger.Logger
}

func withMargin(v *big.Int, percent int64) *big.Int {
	out := new(big.Int).Set(v)
	if percent <= 0 {
		return out
	}
	margin := new(big.Int).Mul(v, big.NewInt(percent))
	return out.Add(out, margin.Div(margin, big.NewInt(100)))
}

func copyEstimation(g *bundler.GasEstimation) *bundler.GasEstimation {
	return &bundler.GasEstimation{
		PreVerificationGas:   new(big.Int).Set(g.PreVerificationGas),
		VerificationGasLimit: new(big.Int).Set(g.VerificationGasLimit),
		CallGasLimit:         new(big.Int).Set(g.CallGasLimit),
	}
}

func (r *Refiner) Estimate(ctx context.Context, built *Built) (*Estimated, error) {
	log := logger.EnsureLogger(r.Logger)
	op := built.op.Clone()

	// limits are still zero, so this signature cannot authorize any spend
	_, sig, err := r.Signer.sign(ctx, op)
	if err != nil {
		return nil, err
	}
	op.Signature = sig

	verified := true
	gas, err := r.Estimator.EstimateUserOperationGas(ctx, op, r.EntryPoint)
	if err != nil {
		switch {
		case bundler.IsNonceConflict(err):
			return nil, fmt.Errorf("%w: %w", ErrNonceConflict, err)
		case !r.AllowFallback:
			return nil, fmt.Errorf("%w: %w", ErrEstimationFailed, err)
		}

		log.Warn("gas estimation failed, continuing with unverified fallback limits",
			"sender", op.Sender.Hex(),
			"error", err)
		gas = copyEstimation(&FallbackGas)
		verified = false
	}

	op.PreVerificationGas = withMargin(gas.PreVerificationGas, r.MarginPercent)
	op.VerificationGasLimit = withMargin(gas.VerificationGasLimit, r.MarginPercent)
	op.CallGasLimit = withMargin(gas.CallGasLimit, r.MarginPercent)

	if r.Fees != nil {
		maxFee, tip, err := r.Fees.SuggestFee(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest fees: %w", err)
		}
		op.MaxFeePerGas = maxFee
		op.MaxPriorityFeePerGas = tip
	}

	log.Info("gas estimated",
		"sender", op.Sender.Hex(),
		"estimateTotal", gas.Total().String(),
		"callGasLimit", op.CallGasLimit.String(),
		"verificationGasLimit", op.VerificationGasLimit.String(),
		"preVerificationGas", op.PreVerificationGas.String(),
		"maxFeePerGas", op.MaxFeePerGas.String(),
		"verified", verified)

	return &Estimated{
		op:       op,
		key:      new(big.Int).Set(built.key),
		gas:      copyEstimation(gas),
		verified: verified,
	}, nil
}
