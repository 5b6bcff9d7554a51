// Package handlers holds the off-chain capabilities served by the dispatch
// server: the arithmetic demo built in, everything else forwarded to a
// remote HTTP service.
package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// parseUint32 accepts a JSON number, a decimal string or a 0x-prefixed hex string
func parseUint32(raw json.RawMessage) (uint32, error) {
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}

	var n *big.Int
	switch x := v.(type) {
	case json.Number:
		i, ok := new(big.Int).SetString(x.String(), 10)
		if !ok {
			return 0, fmt.Errorf("%s is not an integer", x)
		}
		n = i
	case string:
		i, ok := new(big.Int).SetString(x, 0)
		if !ok {
			return 0, fmt.Errorf("%q is not an integer", x)
		}
		n = i
	default:
		return 0, fmt.Errorf("expected an integer, got %s", string(raw))
	}

	if n.Sign() < 0 || n.Cmp(big.NewInt(math.MaxUint32)) > 0 {
		return 0, fmt.Errorf("%s does not fit in uint32", n)
	}
	return uint32(n.Uint64()), nil
}
