// Package index implements the reverse mapping from identity commitments to
// the leaf slots they were assigned.
package index

import (
	"errors"
	"fmt"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
)

var ErrDuplicateCommitment = errors.New("commitment is already indexed")

// Index maps each commitment to exactly one leaf index. It is not safe for
// concurrent use.
type Index struct {
	entries map[suites.Hash]uint64
}

func New() *Index {
	return &Index{entries: make(map[suites.Hash]uint64)}
}

// Insert records that commitment was assigned leaf index i. It fails if the
// commitment is already present, whatever index it was assigned.
func (x *Index) Insert(commitment suites.Hash, i uint64) error {
	if prev, ok := x.entries[commitment]; ok {
		return fmt.Errorf("%w: %v at index %v", ErrDuplicateCommitment, commitment, prev)
	}
	x.entries[commitment] = i
	return nil
}

// Lookup returns the leaf index assigned to commitment, if any.
func (x *Index) Lookup(commitment suites.Hash) (uint64, bool) {
	i, ok := x.entries[commitment]
	return i, ok
}

// Len returns the number of indexed commitments.
func (x *Index) Len() int { return len(x.entries) }
