package feeledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceReader reads one balance the session tracks
type BalanceReader interface {
	Balance(ctx context.Context) (*big.Int, error)
}

// DepositSource is the part of the entry point binding DepositBalance needs
type DepositSource interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// DepositBalance is the account's deposit at the entry point, which is what
// pays for its operations.
type DepositBalance struct {
	EntryPoint DepositSource
	Account    common.Address
}

func (d *DepositBalance) Balance(ctx context.Context) (*big.Int, error) {
	deposit, err := d.EntryPoint.BalanceOf(ctx, d.Account)
	if err != nil {
		return nil, err
	}
	if deposit == nil {
		return new(big.Int), nil
	}
	return deposit, nil
}

// BalanceSource is satisfied by ethclient.Client
type BalanceSource interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// NativeBalance is the native coin balance of an EOA, e.g. the bundler's
type NativeBalance struct {
	Client  BalanceSource
	Account common.Address
}

func (n *NativeBalance) Balance(ctx context.Context) (*big.Int, error) {
	return n.Client.BalanceAt(ctx, n.Account, nil)
}

// Session snapshots the payer and submitter balances around a run so the
// ledger can be summarized from real deltas.
type Session struct {
	payer, submitter           BalanceReader
	payerStart, submitterStart *big.Int
}

func StartSession(ctx context.Context, payer, submitter BalanceReader) (*Session, error) {
	payerStart, err := payer.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read payer balance: %w", err)
	}
	submitterStart, err := submitter.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read submitter balance: %w", err)
	}

	return &Session{
		payer:          payer,
		submitter:      submitter,
		payerStart:     new(big.Int).Set(payerStart),
		submitterStart: new(big.Int).Set(submitterStart),
	}, nil
}

// Deltas reads the balances again and returns end - start for both
func (s *Session) Deltas(ctx context.Context) (payerDelta, submitterDelta *big.Int, err error) {
	payerEnd, err := s.payer.Balance(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read payer balance: %w", err)
	}
	submitterEnd, err := s.submitter.Balance(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read submitter balance: %w", err)
	}

	return new(big.Int).Sub(payerEnd, s.payerStart), new(big.Int).Sub(submitterEnd, s.submitterStart), nil
}

// Close computes the deltas and summarizes the ledger with them
func (s *Session) Close(ctx context.Context, l *Ledger) (Report, error) {
	payerDelta, submitterDelta, err := s.Deltas(ctx)
	if err != nil {
		return Report{}, err
	}
	return l.Summarize(payerDelta, submitterDelta), nil
}
