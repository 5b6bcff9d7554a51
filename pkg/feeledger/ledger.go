// Package feeledger reconciles what an account paid for its operations
// against what the submitter earned and what the chain charged for L2
// execution and L1 data.
package feeledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/oklog/ulid/v2"

	"github.com/AvaProtocol/hybrid-compute/pkg/erc4337/bundler"
	"github.com/AvaProtocol/hybrid-compute/pkg/logger"
	"github.com/AvaProtocol/hybrid-compute/storage"
	"github.com/AvaProtocol/hybrid-compute/storage/schema"
)

var ErrAlreadyRecorded = errors.New("operation already recorded")

// Entry is one reconciled receipt
type Entry struct {
	ID                string      `json:"id"`
	Session           string      `json:"session"`
	OpHash            common.Hash `json:"opHash"`
	TxHash            common.Hash `json:"txHash"`
	Success           bool        `json:"success"`
	GasUsed           *big.Int    `json:"gasUsed"`
	EffectiveGasPrice *big.Int    `json:"effectiveGasPrice"`
	L2Fee             *big.Int    `json:"l2Fee"`
	L1Fee             *big.Int    `json:"l1Fee"`
	ActualGasUsed     *big.Int    `json:"actualGasUsed"`
	EstimatedGas      *big.Int    `json:"estimatedGas"`
	RecordedAt        time.Time   `json:"recordedAt"`
}

// UnusedGas is the estimate minus what the operation actually used. Negative
// means the estimate was short.
func (e *Entry) UnusedGas() *big.Int {
	if e.EstimatedGas == nil || e.ActualGasUsed == nil {
		return new(big.Int)
	}
	return new(big.Int).Sub(e.EstimatedGas, e.ActualGasUsed)
}

// Totals are the running sums of one session
type Totals struct {
	Receipts          int
	L2Fees            *big.Int
	L1Fees            *big.Int
	EffectiveGasPrice *big.Int
	EstimatedGas      *big.Int
	ActualGasUsed     *big.Int
}

type sessionHeader struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

// Ledger accumulates fee components for one session. It is safe for
// concurrent use. When a store is given every entry is persisted.
type Ledger struct {
	mu sync.Mutex

	session string
	totals  Totals

	// Tolerance is the absolute residual, in wei, below which the summary is
	// considered balanced
	Tolerance *big.Int

	store  storage.Storage
	logger logger.Logger
	now    func() time.Time
}

func New(store storage.Storage, log logger.Logger) *Ledger {
	return &Ledger{
		session: ulid.Make().String(),
		totals: Totals{
			L2Fees:            new(big.Int),
			L1Fees:            new(big.Int),
			EffectiveGasPrice: new(big.Int),
			EstimatedGas:      new(big.Int),
			ActualGasUsed:     new(big.Int),
		},
		Tolerance: new(big.Int),
		store:     store,
		logger:    logger.Component(log, "feeledger"),
		now:       time.Now,
	}
}

func (l *Ledger) SessionID() string {
	return l.session
}

// Open persists the session header. It's a no-op without a store.
func (l *Ledger) Open() error {
	if l.store == nil {
		return nil
	}

	data, err := json.Marshal(sessionHeader{ID: l.session, StartedAt: l.now()})
	if err != nil {
		return err
	}
	return l.store.Set(schema.SessionKey(l.session), data)
}

// Record folds a receipt into the session: L2 fee = gasUsed * effectiveGasPrice,
// L1 fee = l1Fee (zero if absent). estimatedGas is the total the bundler
// estimated for the operation and may be nil. With a store, an operation
// hash is only ever recorded once.
func (l *Ledger) Record(receipt *bundler.UserOperationReceipt, estimatedGas *big.Int) (*Entry, error) {
	if receipt == nil {
		return nil, fmt.Errorf("cannot record a nil receipt")
	}

	entry := &Entry{
		ID:                ulid.Make().String(),
		Session:           l.session,
		OpHash:            receipt.UserOpHash,
		TxHash:            receipt.Receipt.TransactionHash,
		Success:           receipt.Succeeded(),
		GasUsed:           receipt.GasUsed(),
		EffectiveGasPrice: receipt.EffectiveGasPrice(),
		L2Fee:             receipt.L2Fee(),
		L1Fee:             receipt.L1Fee(),
		RecordedAt:        l.now(),
	}
	if receipt.ActualGasUsed != nil {
		entry.ActualGasUsed = new(big.Int).Set(receipt.ActualGasUsed.ToInt())
	}
	if estimatedGas != nil {
		entry.EstimatedGas = new(big.Int).Set(estimatedGas)
	}

	if l.store != nil {
		indexKey := schema.OpIndexKey(entry.OpHash.Hex())
		seen, err := l.store.Exist(indexKey)
		if err != nil {
			return nil, err
		}
		if seen {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRecorded, entry.OpHash.Hex())
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		entryKey := schema.EntryKey(l.session, entry.ID)
		if err := l.store.BatchWrite(map[string][]byte{
			string(entryKey): data,
			string(indexKey): entryKey,
		}); err != nil {
			return nil, fmt.Errorf("failed to persist ledger entry: %w", err)
		}
		if _, err := l.store.IncCounter(schema.ReceiptCounterKey()); err != nil {
			return nil, fmt.Errorf("failed to bump receipt counter: %w", err)
		}
	}

	l.mu.Lock()
	l.totals.Receipts++
	l.totals.L2Fees.Add(l.totals.L2Fees, entry.L2Fee)
	l.totals.L1Fees.Add(l.totals.L1Fees, entry.L1Fee)
	l.totals.EffectiveGasPrice.Set(entry.EffectiveGasPrice)
	if entry.EstimatedGas != nil && entry.ActualGasUsed != nil {
		l.totals.EstimatedGas.Add(l.totals.EstimatedGas, entry.EstimatedGas)
		l.totals.ActualGasUsed.Add(l.totals.ActualGasUsed, entry.ActualGasUsed)
	}
	l.mu.Unlock()

	l.logger.Info("recorded receipt",
		"session", l.session,
		"opHash", entry.OpHash.Hex(),
		"gasUsed", entry.GasUsed.String(),
		"effectiveGasPrice", entry.EffectiveGasPrice.String(),
		"l2Fee", entry.L2Fee.String(),
		"l1Fee", entry.L1Fee.String(),
		"unusedGas", entry.UnusedGas().String())

	return entry, nil
}

// Totals returns a copy of the running sums
func (l *Ledger) Totals() Totals {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Totals{
		Receipts:          l.totals.Receipts,
		L2Fees:            new(big.Int).Set(l.totals.L2Fees),
		L1Fees:            new(big.Int).Set(l.totals.L1Fees),
		EffectiveGasPrice: new(big.Int).Set(l.totals.EffectiveGasPrice),
		EstimatedGas:      new(big.Int).Set(l.totals.EstimatedGas),
		ActualGasUsed:     new(big.Int).Set(l.totals.ActualGasUsed),
	}
}

// Entries loads the persisted entries of a session in recording order
func (l *Ledger) Entries(session string) ([]*Entry, error) {
	if l.store == nil {
		return nil, fmt.Errorf("ledger has no store")
	}

	items, err := l.store.GetByPrefix(schema.EntryPrefix(session))
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal(item.Value, &e); err != nil {
			return nil, fmt.Errorf("corrupted ledger entry %s: %w", item.Key, err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}
