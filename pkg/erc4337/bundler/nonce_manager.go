package bundler

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

// NonceManager tracks the next nonce per (sender, key) so consecutive
// operations do not reuse a nonce still pending in the bundler's mempool.
// It combines on-chain state with knowledge of submitted-but-not-yet-mined
// operations.
type NonceManager struct {
	// pendingNonces tracks the next nonce to use for each (sender, key)
	pendingNonces map[string]*big.Int
	mu            sync.RWMutex
	logger        logger.Logger
}

// NewNonceManager creates a new NonceManager instance
func NewNonceManager(log logger.Logger) *NonceManager {
	return &NonceManager{
		pendingNonces: make(map[string]*big.Int),
		logger:        logger.Component(log, "nonces"),
	}
}

func cacheKey(sender common.Address, key *big.Int) string {
	if key == nil {
		key = new(big.Int)
	}
	return fmt.Sprintf("%s:%s", sender.Hex(), key.Text(16))
}

// GetNextNonce returns max(on-chain nonce, cached pending nonce), so a nonce
// already pending in the bundler is never reused.
func (nm *NonceManager) GetNextNonce(
	ctx context.Context,
	sender common.Address,
	key *big.Int,
	onChainNonceFetcher func(ctx context.Context) (*big.Int, error),
) (*big.Int, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	onChainNonce, err := onChainNonceFetcher(ctx)
	if err != nil {
		return nil, err
	}

	cachedNonce, hasCached := nm.pendingNonces[cacheKey(sender, key)]
	if !hasCached || onChainNonce.Cmp(cachedNonce) > 0 {
		// first operation for this sender, or pending operations were mined or dropped
		nm.logger.Debug("using on-chain nonce", "sender", sender.Hex(), "nonce", onChainNonce.String())
		return new(big.Int).Set(onChainNonce), nil
	}

	nm.logger.Debug("using cached nonce",
		"sender", sender.Hex(),
		"nonce", cachedNonce.String(),
		"onChain", onChainNonce.String())
	return new(big.Int).Set(cachedNonce), nil
}

// IncrementNonce records that currentNonce has been submitted, so the next
// operation for the same key uses currentNonce+1 even before it is mined.
func (nm *NonceManager) IncrementNonce(sender common.Address, key *big.Int, currentNonce *big.Int) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nextNonce := new(big.Int).Add(currentNonce, big.NewInt(1))
	nm.pendingNonces[cacheKey(sender, key)] = nextNonce

	nm.logger.Debug("incremented cached nonce", "sender", sender.Hex(), "next", nextNonce.String())
}

// ResetNonce clears the cached nonce, forcing the next GetNextNonce to use
// fresh chain state. Use this when nonce conflicts occur.
func (nm *NonceManager) ResetNonce(sender common.Address, key *big.Int) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	delete(nm.pendingNonces, cacheKey(sender, key))
	nm.logger.Debug("reset cached nonce", "sender", sender.Hex())
}

// GetCachedNonce returns the cached nonce without fetching from chain.
func (nm *NonceManager) GetCachedNonce(sender common.Address, key *big.Int) (*big.Int, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()

	nonce, exists := nm.pendingNonces[cacheKey(sender, key)]
	if !exists {
		return nil, false
	}
	return new(big.Int).Set(nonce), true
}
