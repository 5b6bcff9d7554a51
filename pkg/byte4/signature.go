package byte4

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selector is the 4-byte identifier of a function: the first four bytes of
// the Keccak-256 hash of its canonical signature `name(type1,type2,...)`.
type Selector [4]byte

// Hex renders the selector as lowercase hex without the 0x prefix. This is the
// dispatch key used by the off-chain server.
func (s Selector) Hex() string {
	return hex.EncodeToString(s[:])
}

func (s Selector) String() string {
	return "0x" + s.Hex()
}

// Bytes returns a copy of the selector as a slice, handy for building calldata.
func (s Selector) Bytes() []byte {
	return append([]byte(nil), s[:]...)
}

// Canonicalize removes all whitespace so that "f(uint32, uint32)" and
// "f(uint32,uint32)" hash to the same selector.
func Canonicalize(signature string) string {
	return strings.Join(strings.Fields(signature), "")
}

// ParseSignature validates a canonical signature and splits it into its name
// and argument types.
func ParseSignature(signature string) (string, []string, error) {
	sig := Canonicalize(signature)
	open := strings.IndexByte(sig, '(')
	if open <= 0 || !strings.HasSuffix(sig, ")") {
		return "", nil, fmt.Errorf("malformed function signature %q", signature)
	}

	name := sig[:open]
	inner := sig[open+1 : len(sig)-1]
	if inner == "" {
		return name, []string{}, nil
	}

	return name, strings.Split(inner, ","), nil
}

// SelectorOf computes the selector of a signature with the same hash and
// truncation the EVM ABI uses. Whitespace is ignored.
func SelectorOf(signature string) Selector {
	var s Selector
	copy(s[:], crypto.Keccak256([]byte(Canonicalize(signature)))[:4])
	return s
}

// SelectorHex is a shortcut for SelectorOf(signature).Hex()
func SelectorHex(signature string) string {
	return SelectorOf(signature).Hex()
}

// ParseSelectorHex accepts a dispatch key with or without 0x prefix, in any case.
func ParseSelectorHex(key string) (Selector, error) {
	var s Selector
	key = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(key)), "0x")
	if len(key) != 8 {
		return s, fmt.Errorf("invalid selector length: %d", len(key))
	}

	raw, err := hex.DecodeString(key)
	if err != nil {
		return s, fmt.Errorf("invalid selector %q: %w", key, err)
	}
	copy(s[:], raw)
	return s, nil
}

// GetMethodFromCalldata returns the method name and ABI method for a given 4-byte selector or full calldata
func GetMethodFromCalldata(parsedABI abi.ABI, selector []byte) (*abi.Method, error) {
	if len(selector) < 4 {
		return nil, fmt.Errorf("invalid selector length: %d", len(selector))
	}

	methodID := selector[:4]

	for name, method := range parsedABI.Methods {
		var types []string
		for _, input := range method.Inputs {
			types = append(types, input.Type.String())
		}

		sig := fmt.Sprintf("%v(%v)", name, strings.Join(types, ","))
		hash := SelectorOf(sig)

		if bytes.Equal(hash[:], methodID) {
			return &method, nil
		}
	}

	return nil, fmt.Errorf("no matching method found for selector: 0x%x", methodID)
}
