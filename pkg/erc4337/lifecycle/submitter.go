package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

const (
	DefaultMaxAttempts  = 10
	DefaultPollInterval = time.Second
)

type Submitter struct {
	EntryPoint common.Address
	Sender     OperationSender
	Nonces     *bundler.NonceManager
	Logger     logger.Logger
}

// Submit hands the signed operation to the bundler. A rejection because of the
// nonce is reported as ErrNonceConflict, every other rejection as
// ErrSubmissionRejected carrying the bundler's reason.
func (s *Submitter) Submit(ctx context.Context, signed *Signed) (*Submitted, error) {
	log := logger.EnsureLogger(s.Logger)

	opHash, err := s.Sender.SendUserOperation(ctx, signed.op, s.EntryPoint)
	if err != nil {
		switch {
		case bundler.IsNonceConflict(err):
			return nil, fmt.Errorf("%w: %w", ErrNonceConflict, err)
		case bundler.IsRejection(err):
			return nil, fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
		default:
			return nil, fmt.Errorf("failed to send user operation: %w", err)
		}
	}

	if opHash != signed.hash {
		log.Warn("bundler acknowledged a different operation hash",
			"signed", signed.hash.Hex(),
			"acknowledged", opHash.Hex())
	}

	if s.Nonces != nil {
		s.Nonces.IncrementNonce(signed.op.Sender, signed.key, signed.op.Nonce)
	}

	log.Info("user operation submitted", "sender", signed.op.Sender.Hex(), "opHash", opHash.Hex())

	return &Submitted{signed: signed, opHash: opHash, submittedAt: time.Now()}, nil
}

type Monitor struct {
	Receipts     ReceiptFetcher
	MaxAttempts  int
	PollInterval time.Duration
	Logger       logger.Logger
	Metrics      Metrics
}

// Await polls for the receipt, waiting PollInterval between attempts. Poll
// errors are logged and count against MaxAttempts. A receipt whose bundle
// reverted or whose operation failed is returned together with
// ErrOperationFailed.
func (m *Monitor) Await(ctx context.Context, sub *Submitted) (*Included, error) {
	log := logger.EnsureLogger(m.Logger)
	metrics := ensureMetrics(m.Metrics)

	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	interval := m.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, interval); err != nil {
				return nil, fmt.Errorf("waiting for receipt of %s: %w", sub.opHash.Hex(), err)
			}
		}

		receipt, err := m.Receipts.GetUserOperationReceipt(ctx, sub.opHash)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("waiting for receipt of %s: %w", sub.opHash.Hex(), ctx.Err())
			}
			metrics.IncReceiptPoll("error")
			log.Warn("receipt poll failed", "opHash", sub.opHash.Hex(), "attempt", attempt, "error", err)
			continue
		}

		if receipt == nil {
			metrics.IncReceiptPoll("pending")
			log.Debug("waiting for receipt", "opHash", sub.opHash.Hex(), "attempt", attempt)
			continue
		}

		metrics.IncReceiptPoll("found")
		included := &Included{submitted: sub, receipt: receipt, attempts: attempt, state: StateIncluded}

		if !receipt.Succeeded() {
			included.state = StateFailed
			return included, fmt.Errorf("%w: status=%d success=%t reason=%q",
				ErrOperationFailed, uint64(receipt.Receipt.Status), receipt.Success, receipt.Reason)
		}

		return included, nil
	}

	return nil, fmt.Errorf("%w: no receipt for %s after %d attempts", ErrReceiptTimeout, sub.opHash.Hex(), attempts)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
