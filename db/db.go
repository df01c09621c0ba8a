// Package db implements database wrappers that match a common interface.
package db

// LedgerStore is the interface the local development ledger uses to
// communicate with its database. Entries are keyed by their position in the
// ledger, starting at zero.
//
// Writes are buffered until Commit. Commit applies the entries before the new
// size, so a crash between the two never exposes a size that covers missing
// entries.
type LedgerStore interface {
	// Size returns the number of entries in the ledger.
	Size() (uint64, error)
	SetSize(n uint64) error

	BatchGet(keys []uint64) (map[uint64][]byte, error)
	BatchPut(data map[uint64][]byte) error

	Commit() error
	Close() error
}
