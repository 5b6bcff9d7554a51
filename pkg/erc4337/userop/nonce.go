package userop

import "math/big"

// An entry point nonce is key(192 bits) << 64 | sequence(64 bits). Each key is
// an independent, strictly increasing counter per sender.
const sequenceBits = 64

var (
	sequenceMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), sequenceBits), big.NewInt(1))
	// MaxNonceKey is the largest valid 192-bit key
	MaxNonceKey = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 192), big.NewInt(1))
)

// NonceKey extracts the 192-bit namespace of a nonce
func NonceKey(nonce *big.Int) *big.Int {
	return new(big.Int).Rsh(orZero(nonce), sequenceBits)
}

// NonceSequence extracts the 64-bit sequence of a nonce
func NonceSequence(nonce *big.Int) uint64 {
	return new(big.Int).And(orZero(nonce), sequenceMask).Uint64()
}

// ComposeNonce builds a nonce from its key and sequence
func ComposeNonce(key *big.Int, sequence uint64) *big.Int {
	n := new(big.Int).Lsh(orZero(key), sequenceBits)
	return n.Or(n, new(big.Int).SetUint64(sequence))
}

// ValidNonceKey reports whether key fits in 192 bits and is not negative
func ValidNonceKey(key *big.Int) bool {
	return key != nil && key.Sign() >= 0 && key.Cmp(MaxNonceKey) <= 0
}
