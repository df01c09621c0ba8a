// Package accumulator implements a fixed-depth binary Merkle tree over field
// elements, capable of producing proofs of inclusion for any of its slots.
package accumulator

import (
	"errors"
)

// MaxDepth is the largest supported tree depth. Leaf indices are uint64, and
// 2^32 slots is well beyond what any ledger contract can hold.
const MaxDepth = 32

var (
	ErrInvalidConfig    = errors.New("invalid accumulator configuration")
	ErrIndexOutOfBounds = errors.New("leaf index out of bounds")
	ErrInvalidValue     = errors.New("leaf value is not a valid field element")
	ErrMalformedProof   = errors.New("malformed proof")
)

// Side identifies which child of its parent a sibling node is.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left":
		*s = Left
	case "right":
		*s = Right
	default:
		return errors.New("unknown side: " + string(text))
	}
	return nil
}

// sideOf returns the side of the sibling of the node at position i in its
// level.
func sideOf(i uint64) Side {
	if i&1 == 0 {
		return Right
	}
	return Left
}
