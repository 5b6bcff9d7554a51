package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/AvaProtocol/hybrid-compute/offchain"
)

const AddSub2Signature = "addsub2(uint32,uint32)"

var (
	ErrUnderflow = errors.New("underflow")
	ErrOverflow  = errors.New("overflow")
)

var addSub2Result = func() abi.Arguments {
	u32, err := abi.NewType("uint32", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Name: "sum", Type: u32}, {Name: "diff", Type: u32}}
}()

// AddSub2 computes (a+b, a-b). a<b is an underflow and a+b past uint32 an
// overflow; both are domain errors reported to the caller.
func AddSub2(a, b uint32) (uint32, uint32, error) {
	if b > a {
		return 0, 0, fmt.Errorf("%w: %d - %d", ErrUnderflow, a, b)
	}
	if uint64(a)+uint64(b) > math.MaxUint32 {
		return 0, 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return a + b, a - b, nil
}

// NewAddSub2 returns the handler for addsub2(uint32,uint32). The result is
// the ABI encoding of (uint32 sum, uint32 diff) as 0x-hex, ready to be
// returned to the calling contract.
func NewAddSub2() offchain.Handler {
	return offchain.HandlerFunc([]string{"a", "b"}, func(ctx context.Context, params []json.RawMessage) (interface{}, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("expected 2 params, got %d", len(params))
		}

		a, err := parseUint32(params[0])
		if err != nil {
			return nil, fmt.Errorf("a: %w", err)
		}
		b, err := parseUint32(params[1])
		if err != nil {
			return nil, fmt.Errorf("b: %w", err)
		}

		sum, diff, err := AddSub2(a, b)
		if err != nil {
			return nil, err
		}

		packed, err := addSub2Result.Pack(sum, diff)
		if err != nil {
			return nil, err
		}
		return hexutil.Encode(packed), nil
	})
}

// UnpackAddSub2 decodes a result produced by the addsub2 handler
func UnpackAddSub2(result string) (uint32, uint32, error) {
	raw, err := hexutil.Decode(result)
	if err != nil {
		return 0, 0, err
	}
	values, err := addSub2Result.Unpack(raw)
	if err != nil {
		return 0, 0, err
	}
	return values[0].(uint32), values[1].(uint32), nil
}
