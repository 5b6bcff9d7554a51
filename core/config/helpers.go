package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/lo"

	"github.com/AvaProtocol/hybrid-compute/core/chainio/signer"
)

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

// parseRoles resolves every role. When both an address and a key are given
// they must agree.
func parseRoles(raw map[string]RoleRaw) (map[string]*Role, error) {
	roles := make(map[string]*Role, len(raw))

	for _, name := range lo.Keys(raw) {
		r := raw[name]
		role := &Role{Name: name}
		if r.Address == "" && r.PrivateKey == "" {
			return nil, fmt.Errorf("role %s needs an address or a private key", name)
		}

		if r.PrivateKey != "" {
			key, err := signer.ParsePrivateKey(r.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", name, err)
			}
			role.PrivateKey = key
			role.Address = crypto.PubkeyToAddress(key.PublicKey)
		}

		if r.Address != "" {
			addr := common.HexToAddress(r.Address)
			if role.PrivateKey != nil && addr != role.Address {
				return nil, fmt.Errorf("role %s: address %s does not match its private key (%s)", name, addr.Hex(), role.Address.Hex())
			}
			role.Address = addr
		}

		roles[name] = role
	}

	return roles, nil
}
