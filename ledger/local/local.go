// Package local implements a ledger gateway backed by a local database. It
// behaves like the membership contract, assigning indices sequentially, and
// lets the sequencer run in development without a chain.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/Bren2010/signup-sequencer/db"
	"github.com/Bren2010/signup-sequencer/ledger"
	"github.com/ethereum/go-ethereum/log"
)

// Ledger is a ledger.Gateway over a db.LedgerStore.
type Ledger struct {
	mu    sync.Mutex
	store db.LedgerStore
}

var _ ledger.Gateway = (*Ledger)(nil)

func New(store db.LedgerStore) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) PastInsertions(ctx context.Context) ([]ledger.Insertion, error) {
	if err := ctx.Err(); err != nil {
		return nil, ledger.Transient("history", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.store.Size()
	if err != nil {
		return nil, ledger.Transient("history", err)
	}
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(i)
	}
	data, err := l.store.BatchGet(keys)
	if err != nil {
		return nil, ledger.Transient("history", err)
	}

	out := make([]ledger.Insertion, 0, n)
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			return nil, ledger.Permanent("history", fmt.Errorf("entry %v is missing", key))
		} else if len(raw) != suites.HashSize {
			return nil, ledger.Permanent("history", fmt.Errorf("entry %v has unexpected length: %v", key, len(raw)))
		}
		out = append(out, ledger.Insertion{Index: key, Commitment: suites.Hash(raw)})
	}
	return out, nil
}

// SubmitInsertion appends commitment to the ledger. Like the contract, the
// ledger picks the index itself; a request for any index other than the next
// one is rejected, since the caller's view of the ledger is out of date.
func (l *Ledger) SubmitInsertion(ctx context.Context, index uint64, commitment suites.Hash) (*ledger.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return nil, ledger.Transient("submit", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.store.Size()
	if err != nil {
		return nil, ledger.Transient("submit", err)
	} else if index != n {
		return nil, ledger.Permanent("submit", fmt.Errorf("ledger would assign index %v, expected %v", n, index))
	}

	if err := l.store.BatchPut(map[uint64][]byte{n: commitment[:]}); err != nil {
		return nil, ledger.Transient("submit", err)
	} else if err := l.store.SetSize(n + 1); err != nil {
		return nil, ledger.Transient("submit", err)
	} else if err := l.store.Commit(); err != nil {
		return nil, ledger.Transient("submit", err)
	}
	log.Debug("Recorded insertion on local ledger", "index", n, "commitment", commitment)

	return &ledger.Confirmation{Index: n, Block: n}, nil
}
