package feeledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/hybrid-compute/storage"
	"github.com/AvaProtocol/hybrid-compute/storage/schema"
)

// SessionInfo describes a persisted session
type SessionInfo struct {
	ID        string
	StartedAt time.Time
	Entries   int64
}

// Sessions lists the sessions persisted in store, oldest first
func Sessions(store storage.Storage) ([]SessionInfo, error) {
	items, err := store.GetByPrefix(schema.SessionPrefix())
	if err != nil {
		return nil, err
	}

	sessions := make([]SessionInfo, 0, len(items))
	for _, item := range items {
		var header sessionHeader
		if err := json.Unmarshal(item.Value, &header); err != nil {
			return nil, fmt.Errorf("corrupted session header %s: %w", item.Key, err)
		}

		count, err := store.CountKeysByPrefix(schema.EntryPrefix(header.ID))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, SessionInfo{ID: header.ID, StartedAt: header.StartedAt, Entries: count})
	}
	return sessions, nil
}

// RecordedReceipts is the number of receipts ever recorded into store
func RecordedReceipts(store storage.Storage) (uint64, error) {
	return store.GetCounter(schema.ReceiptCounterKey(), 0)
}

// LoadEntries reads the persisted entries of one session
func LoadEntries(store storage.Storage, session string) ([]*Entry, error) {
	return New(store, nil).Entries(session)
}

var ErrEntryNotFound = errors.New("no ledger entry for operation")

// LookupEntry finds the entry recorded for an operation hash in any session
func LookupEntry(store storage.Storage, opHash common.Hash) (*Entry, error) {
	indexKey := schema.OpIndexKey(opHash.Hex())
	ok, err := store.Exist(indexKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrEntryNotFound, opHash.Hex())
	}

	entryKey, err := store.GetKey(indexKey)
	if err != nil {
		return nil, err
	}
	data, err := store.GetKey(entryKey)
	if err != nil {
		return nil, fmt.Errorf("dangling index for %s: %w", opHash.Hex(), err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("corrupted ledger entry %s: %w", entryKey, err)
	}
	return &e, nil
}

// Prune deletes every session except the newest keep, with their entries and
// operation index. The receipt counter is left alone. It returns the pruned
// session ids.
func Prune(store storage.Storage, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("cannot keep %d sessions", keep)
	}

	sessions, err := Sessions(store)
	if err != nil {
		return nil, err
	}
	if len(sessions) <= keep {
		return nil, nil
	}

	var pruned []string
	for _, s := range sessions[:len(sessions)-keep] {
		if err := deleteSession(store, s.ID); err != nil {
			return pruned, fmt.Errorf("failed to prune session %s: %w", s.ID, err)
		}
		pruned = append(pruned, s.ID)
	}
	return pruned, nil
}

func deleteSession(store storage.Storage, session string) error {
	keys, err := store.ListKeys(string(schema.EntryPrefix(session)))
	if err != nil {
		return err
	}

	for _, key := range keys {
		data, err := store.GetKey([]byte(key))
		if err != nil {
			return err
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err == nil {
			if err := store.Delete(schema.OpIndexKey(e.OpHash.Hex())); err != nil {
				return err
			}
		}
		if err := store.Delete([]byte(key)); err != nil {
			return err
		}
	}
	return store.Delete(schema.SessionKey(session))
}
