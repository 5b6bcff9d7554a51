package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/userop"
	"github.com/AvaProtocol/hybrid-compute/pkg/feeledger"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
)

// FeeRecorder is implemented by *feeledger.Ledger
type FeeRecorder interface {
	Record(receipt *bundler.UserOperationReceipt, estimatedGas *big.Int) (*feeledger.Entry, error)
}

type Request struct {
	Account  common.Address
	NonceKey *big.Int
	CallData []byte
}

// Outcome describes how far an operation got. It is returned alongside the
// error too, so callers can report partial progress. An error before a
// receipt exists leaves State at StateFailed; Path keeps every state reached.
type Outcome struct {
	State        State
	Path         []State
	OpHash       common.Hash
	Operation    *userop.UserOperation
	Estimate     *bundler.GasEstimation
	Verified     bool
	Receipt      *bundler.UserOperationReceipt
	Entry        *feeledger.Entry
	NonceRetries int
}

type Driver struct {
	Builder   *Builder
	Refiner   *Refiner
	Signer    *Signer
	Submitter *Submitter
	Monitor   *Monitor
	Ledger    FeeRecorder

	// MaxNonceRetries is how many times a nonce conflict rebuilds the
	// operation from a fresh nonce. Nothing else is retried.
	MaxNonceRetries int

	Logger  logger.Logger
	Metrics Metrics
}

func (d *Driver) transition(out *Outcome, state State) {
	out.State = state
	out.Path = append(out.Path, state)
	ensureMetrics(d.Metrics).IncTransition(state.String())
}

// Reached is the last state before a terminal failure or timeout. ok is false
// when the operation was never built.
func (o *Outcome) Reached() (state State, ok bool) {
	for i := len(o.Path) - 1; i >= 0; i-- {
		if s := o.Path[i]; s != StateFailed && s != StateTimedOut {
			return s, true
		}
	}
	return 0, false
}

// prepare runs build, estimate, finalize and submit once
func (d *Driver) prepare(ctx context.Context, req Request, out *Outcome) (*Submitted, error) {
	built, err := d.Builder.Build(ctx, req.Account, req.NonceKey, req.CallData)
	if err != nil {
		return nil, err
	}
	d.transition(out, StateBuilt)

	estimated, err := d.Refiner.Estimate(ctx, built)
	if err != nil {
		return nil, err
	}
	out.Estimate = estimated.Gas()
	out.Verified = estimated.Verified()
	d.transition(out, StateEstimated)

	signed, err := d.Signer.Finalize(ctx, estimated)
	if err != nil {
		return nil, err
	}
	out.Operation = signed.Operation()
	d.transition(out, StateSigned)

	submitted, err := d.Submitter.Submit(ctx, signed)
	if err != nil {
		return nil, err
	}
	out.OpHash = submitted.OpHash()
	d.transition(out, StateSubmitted)

	return submitted, nil
}

// Run drives one operation end to end and records its receipt in the ledger.
func (d *Driver) Run(ctx context.Context, req Request) (*Outcome, error) {
	log := logger.EnsureLogger(d.Logger)
	out := &Outcome{}

	var submitted *Submitted
	for {
		var err error
		submitted, err = d.prepare(ctx, req, out)
		if err == nil {
			break
		}

		if !errors.Is(err, ErrNonceConflict) || out.NonceRetries >= d.MaxNonceRetries {
			d.transition(out, StateFailed)
			return out, err
		}

		out.NonceRetries++
		stale := "none"
		if d.Builder.Nonces != nil {
			if cached, ok := d.Builder.Nonces.GetCachedNonce(req.Account, req.NonceKey); ok {
				stale = cached.String()
			}
			d.Builder.Nonces.ResetNonce(req.Account, req.NonceKey)
		}
		log.Warn("nonce conflict, rebuilding from a fresh nonce",
			"sender", req.Account.Hex(),
			"retry", out.NonceRetries,
			"staleNonce", stale,
			"error", err)
	}

	included, err := d.Monitor.Await(ctx, submitted)
	if errors.Is(err, ErrReceiptTimeout) {
		d.transition(out, StateTimedOut)
		log.Error("receipt timeout, the operation may still be included later", "opHash", out.OpHash.Hex())
		return out, err
	}
	if included == nil {
		d.transition(out, StateFailed)
		return out, err
	}

	out.Receipt = included.Receipt()
	d.transition(out, included.State())

	if d.Ledger != nil {
		var estimatedGas *big.Int
		if out.Estimate != nil && out.Verified {
			estimatedGas = out.Estimate.Total()
		}

		entry, recordErr := d.Ledger.Record(out.Receipt, estimatedGas)
		if recordErr != nil {
			return out, errors.Join(err, fmt.Errorf("failed to record receipt: %w", recordErr))
		}
		out.Entry = entry
	}

	return out, err
}

// EntryPointLister is implemented by *bundler.BundlerClient
type EntryPointLister interface {
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}

// CheckEntryPoint fails when the bundler does not serve entryPoint
func CheckEntryPoint(ctx context.Context, lister EntryPointLister, entryPoint common.Address) error {
	supported, err := lister.SupportedEntryPoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to list supported entry points: %w", err)
	}

	for _, ep := range supported {
		if ep == entryPoint {
			return nil
		}
	}
	return fmt.Errorf("bundler does not support entry point %s (supported: %v)", entryPoint.Hex(), supported)
}
