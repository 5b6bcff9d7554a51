package bundler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// GasEstimation is the result of eth_estimateUserOperationGas
type GasEstimation struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}

// Total is the sum of the three limits
func (g *GasEstimation) Total() *big.Int {
	total := new(big.Int)
	for _, v := range []*big.Int{g.PreVerificationGas, g.VerificationGasLimit, g.CallGasLimit} {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}

// quantity accepts both a 0x hex string and a plain JSON number. Bundlers
// disagree on which one to return for gas fields.
type quantity big.Int

func (q *quantity) UnmarshalJSON(input []byte) error {
	input = bytes.TrimSpace(input)
	if len(input) > 0 && input[0] == '"' {
		var s string
		if err := json.Unmarshal(input, &s); err != nil {
			return err
		}
		v, err := hexutil.DecodeBig(s)
		if err != nil {
			// some bundlers send decimal strings
			d, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return fmt.Errorf("invalid quantity %q: %w", s, err)
			}
			v = d
		}
		(*big.Int)(q).Set(v)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(input, &n); err != nil {
		return err
	}
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return fmt.Errorf("invalid quantity %s", n)
	}
	(*big.Int)(q).Set(v)
	return nil
}

func (q *quantity) bigInt() *big.Int {
	if q == nil {
		return nil
	}
	return new(big.Int).Set((*big.Int)(q))
}

type gasEstimationResult struct {
	PreVerificationGas   *quantity `json:"preVerificationGas"`
	VerificationGasLimit *quantity `json:"verificationGasLimit"`
	// pre-0.6 bundlers return verificationGas instead of verificationGasLimit
	VerificationGas *quantity `json:"verificationGas"`
	CallGasLimit    *quantity `json:"callGasLimit"`
}

func (r *gasEstimationResult) toEstimation() (*GasEstimation, error) {
	verification := r.VerificationGasLimit
	if verification == nil {
		verification = r.VerificationGas
	}

	if r.PreVerificationGas == nil || verification == nil || r.CallGasLimit == nil {
		return nil, fmt.Errorf("incomplete gas estimation from bundler")
	}

	return &GasEstimation{
		PreVerificationGas:   r.PreVerificationGas.bigInt(),
		VerificationGasLimit: verification.bigInt(),
		CallGasLimit:         r.CallGasLimit.bigInt(),
	}, nil
}
