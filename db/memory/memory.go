// Package memory provides in-memory implementations of the database interfaces.
package memory

import (
	"errors"

	"github.com/Bren2010/signup-sequencer/db"
)

func dup(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// LedgerStore implements db.LedgerStore over maps. Writes are staged until
// Commit; Entries and Length only ever hold committed state.
type LedgerStore struct {
	Entries map[uint64][]byte
	Length  uint64

	staged     map[uint64][]byte
	stagedSize *uint64
	closed     bool
}

var _ db.LedgerStore = (*LedgerStore)(nil)

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		Entries: make(map[uint64][]byte),
		staged:  make(map[uint64][]byte),
	}
}

func (ls *LedgerStore) Size() (uint64, error) {
	if ls.closed {
		return 0, errors.New("store is closed")
	} else if ls.stagedSize != nil {
		return *ls.stagedSize, nil
	}
	return ls.Length, nil
}

func (ls *LedgerStore) SetSize(n uint64) error {
	ls.stagedSize = &n
	return nil
}

func (ls *LedgerStore) BatchGet(keys []uint64) (map[uint64][]byte, error) {
	if ls.closed {
		return nil, errors.New("store is closed")
	}
	out := make(map[uint64][]byte)
	for _, key := range keys {
		if val, ok := ls.staged[key]; ok {
			out[key] = dup(val)
		} else if val, ok := ls.Entries[key]; ok {
			out[key] = dup(val)
		}
	}
	return out, nil
}

func (ls *LedgerStore) BatchPut(data map[uint64][]byte) error {
	for key, value := range data {
		if value == nil {
			return errors.New("unable to store nil value")
		}
		ls.staged[key] = dup(value)
	}
	return nil
}

func (ls *LedgerStore) Commit() error {
	if ls.closed {
		return errors.New("store is closed")
	}
	for key, value := range ls.staged {
		ls.Entries[key] = value
	}
	if ls.stagedSize != nil {
		ls.Length = *ls.stagedSize
	}
	ls.staged = make(map[uint64][]byte)
	ls.stagedSize = nil
	return nil
}

func (ls *LedgerStore) Close() error {
	ls.closed = true
	return nil
}
