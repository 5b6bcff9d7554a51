package lifecycle

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/core/chainio/signer"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

// Signer hashes an operation through the entry point and signs the hash with
// the EIP-191 personal message prefix.
type Signer struct {
	Hasher OpHasher
	Key    *ecdsa.PrivateKey
	// HashAttempts bounds retries of the hash RPC, which may fail transiently
	HashAttempts int
	Logger       logger.Logger
}

func (s *Signer) hash(ctx context.Context, op *userop.UserOperation) (common.Hash, error) {
	attempts := s.HashAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return common.Hash{}, err
		}

		h, err := s.Hasher.GetUserOpHash(ctx, op)
		if err == nil {
			return h, nil
		}
		lastErr = err
		logger.EnsureLogger(s.Logger).Warn("getUserOpHash failed", "attempt", i+1, "error", err)
	}

	return common.Hash{}, fmt.Errorf("%w: %w", ErrHashUnavailable, lastErr)
}

func (s *Signer) sign(ctx context.Context, op *userop.UserOperation) (common.Hash, []byte, error) {
	h, err := s.hash(ctx, op)
	if err != nil {
		return common.Hash{}, nil, err
	}

	sig, err := signer.SignMessage(s.Key, h.Bytes())
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	return h, sig, nil
}

// Finalize recomputes the hash with the final limits and fees and produces
// the signature that will be submitted.
func (s *Signer) Finalize(ctx context.Context, est *Estimated) (*Signed, error) {
	op := est.op.Clone()

	h, sig, err := s.sign(ctx, op)
	if err != nil {
		return nil, err
	}
	op.Signature = sig

	logger.EnsureLogger(s.Logger).Debug("signed user operation",
		"sender", op.Sender.Hex(),
		"hash", h.Hex(),
		"verifiedGas", est.verified)

	return &Signed{
		op:       op,
		key:      new(big.Int).Set(est.key),
		hash:     h,
		gas:      est.Gas(),
		verified: est.verified,
	}, nil
}
