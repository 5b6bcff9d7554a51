package eip1559

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// Ensure minimum tip of 2 gwei for bundler profitability
	minTip = big.NewInt(2_000_000_000)
	// Ensure minimum maxFeePerGas of 20 gwei for high-basefee chains
	minMaxFee = big.NewInt(20_000_000_000)
)

// FeeSource is the subset of ethclient.Client the fee suggestion reads from
type FeeSource interface {
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Suggester fills the fee fields of an operation. It's a thin wrapper so the
// lifecycle can depend on an interface.
type Suggester struct {
	Client FeeSource
}

func (s *Suggester) SuggestFee(ctx context.Context) (*big.Int, *big.Int, error) {
	return SuggestFee(ctx, s.Client)
}

// SuggestFee returns (maxFeePerGas, maxPriorityFeePerGas)
func SuggestFee(ctx context.Context, client FeeSource) (*big.Int, *big.Int, error) {
	// Get suggested gas tip cap (maxPriorityFeePerGas)
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}

	// Estimate base fee for the next block
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}

	// Add 13% buffer to tip for safety
	buffer := new(big.Int).Div(tipCap, big.NewInt(100))
	buffer = new(big.Int).Mul(buffer, big.NewInt(13))
	maxPriorityFeePerGas := new(big.Int).Add(tipCap, buffer)

	if maxPriorityFeePerGas.Cmp(minTip) < 0 {
		maxPriorityFeePerGas = new(big.Int).Set(minTip)
	}

	var maxFeePerGas *big.Int

	baseFee := header.BaseFee
	if baseFee != nil {
		// maxFeePerGas = (2 * baseFee) + maxPriorityFeePerGas, survives a doubling of baseFee
		maxFeePerGas = new(big.Int).Add(
			new(big.Int).Mul(baseFee, big.NewInt(2)),
			maxPriorityFeePerGas,
		)

		if maxFeePerGas.Cmp(minMaxFee) < 0 {
			maxFeePerGas = new(big.Int).Set(minMaxFee)
		}
	} else {
		// Legacy (pre-EIP-1559) chain - use maxPriorityFeePerGas as maxFeePerGas
		maxFeePerGas = new(big.Int).Set(maxPriorityFeePerGas)
	}

	return maxFeePerGas, maxPriorityFeePerGas, nil
}
