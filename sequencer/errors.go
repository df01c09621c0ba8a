package sequencer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Bren2010/signup-sequencer/tree/accumulator"
	"github.com/Bren2010/signup-sequencer/tree/index"
)

// Errors from the packages the sequencer is built on, re-exported so callers
// only need to check against this package.
var (
	ErrInvalidConfig       = accumulator.ErrInvalidConfig
	ErrIndexOutOfBounds    = accumulator.ErrIndexOutOfBounds
	ErrInvalidValue        = accumulator.ErrInvalidValue
	ErrDuplicateCommitment = index.ErrDuplicateCommitment
)

var (
	ErrReplayInconsistency = errors.New("ledger history is inconsistent")
	ErrCommitmentNotFound  = errors.New("commitment not found")
	ErrLedgerDivergence    = errors.New("local state has diverged from the ledger")
	ErrConfirmationPending = errors.New("ledger confirmation is still pending")
	// ErrInsertionsSuspended is returned, along with the recorded divergence,
	// for insertions refused before an index was assigned.
	ErrInsertionsSuspended = errors.New("insertions are suspended until reconciliation")
)

// Divergence records the first point at which local state stopped matching
// the ledger. Every index from Index onward is suspect until the sequencer
// is reconciled.
type Divergence struct {
	Index uint64    `json:"index"`
	Err   error     `json:"-"`
	At    time.Time `json:"at"`
}

func (d *Divergence) Error() string {
	return fmt.Sprintf("diverged at index %v: %v", d.Index, d.Err)
}

func (d *Divergence) Unwrap() []error { return []error{ErrLedgerDivergence, d.Err} }

// MarshalJSON includes the cause as a string, since error values do not
// serialize.
func (d *Divergence) MarshalJSON() ([]byte, error) {
	type plain Divergence
	cause := ""
	if d.Err != nil {
		cause = d.Err.Error()
	}
	return json.Marshal(struct {
		*plain
		Cause string `json:"cause"`
	}{(*plain)(d), cause})
}
