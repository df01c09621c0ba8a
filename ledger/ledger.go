// Package ledger defines the interface between the sequencer and the external
// ledger that durably records every insertion.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
)

// Insertion is one entry of the ledger's insertion history.
type Insertion struct {
	Index      uint64
	Commitment suites.Hash
}

// Confirmation describes where the ledger recorded an insertion.
type Confirmation struct {
	Index uint64
	// TxHash and Block identify the transaction that carried the insertion.
	// They are zero for ledgers without transactions.
	TxHash string
	Block  uint64
}

// Gateway is implemented by each supported ledger backend.
type Gateway interface {
	// PastInsertions returns the full insertion history, in the order the
	// ledger assigned indices.
	PastInsertions(ctx context.Context) ([]Insertion, error)

	// SubmitInsertion records commitment on the ledger and blocks until the
	// ledger confirms it at the given index. The gateway signs with the
	// identity it was constructed with.
	SubmitInsertion(ctx context.Context, index uint64, commitment suites.Hash) (*Confirmation, error)
}

// Error is returned by gateways for failures talking to the ledger.
type Error struct {
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("ledger %v failed (%v): %v", e.Op, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Permanent wraps err as a ledger error that must not be retried.
func Permanent(op string, err error) error {
	return &Error{Op: op, Transient: false, Err: err}
}

// Transient wraps err as a ledger error that may succeed if retried.
func Transient(op string, err error) error {
	return &Error{Op: op, Transient: true, Err: err}
}

// IsTransient reports whether err is a ledger error worth retrying.
func IsTransient(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Transient
}
