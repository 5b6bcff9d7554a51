package offchain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/AvaProtocol/hybrid-compute/pkg/byte4"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

// DuplicatePolicy decides what Register does with a selector that is already taken
type DuplicatePolicy int

const (
	// DuplicateError rejects the second registration with ErrSelectorConflict
	DuplicateError DuplicatePolicy = iota
	// DuplicateFirstWins keeps the first handler and logs a warning
	DuplicateFirstWins
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "error":
		return DuplicateError, nil
	case "first_wins":
		return DuplicateFirstWins, nil
	}
	return DuplicateError, fmt.Errorf("unknown duplicate policy %q", s)
}

type Entry struct {
	Selector  byte4.Selector
	Signature string
	Handler   Handler
}

// Registry maps selectors to handlers. It is filled at startup and sealed
// before the server accepts requests; after that it is read-only.
type Registry struct {
	mu      sync.RWMutex
	entries map[byte4.Selector]*Entry
	sealed  bool
	policy  DuplicatePolicy
	logger  logger.Logger
}

func NewRegistry(policy DuplicatePolicy, log logger.Logger) *Registry {
	return &Registry{
		entries: make(map[byte4.Selector]*Entry),
		policy:  policy,
		logger:  logger.EnsureLogger(log),
	}
}

// Register binds signature's selector to h. The same handler may be bound
// under several signatures.
func (r *Registry) Register(signature string, h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler for %s", signature)
	}
	if _, _, err := byte4.ParseSignature(signature); err != nil {
		return err
	}

	sig := byte4.Canonicalize(signature)
	sel := byte4.SelectorOf(sig)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrRegistrySealed, sig)
	}

	if existing, ok := r.entries[sel]; ok {
		if r.policy == DuplicateFirstWins {
			r.logger.Warn("selector already registered, keeping the first handler",
				"selector", sel.Hex(),
				"registered", existing.Signature,
				"ignored", sig)
			return nil
		}
		return fmt.Errorf("%w: %s (%s) is taken by %s", ErrSelectorConflict, sel.Hex(), sig, existing.Signature)
	}

	r.entries[sel] = &Entry{Selector: sel, Signature: sig, Handler: h}
	r.logger.Info("registered off-chain handler", "selector", sel.Hex(), "signature", sig)
	return nil
}

// Seal makes the registry read-only
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup finds the entry for a dispatch key. The key may carry a 0x prefix
// and upper-case digits. Anything that does not parse is a miss.
func (r *Registry) Lookup(key string) (*Entry, bool) {
	sel, err := byte4.ParseSelectorHex(key)
	if err != nil {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sel]
	return e, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// List returns the entries ordered by signature
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	entries := lo.Values(r.entries)
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Signature < entries[j].Signature
	})
	return entries
}
