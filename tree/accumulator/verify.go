package accumulator

import (
	"fmt"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
)

// EvaluateProof returns the root that would result in the given proof being
// valid for `leaf` at position `index`.
//
// The bits of index, least significant first, decide the order in which the
// accumulated value and each sibling are combined. The Side recorded in each
// proof node must agree with that bit.
func EvaluateProof(cs suites.CipherSuite, leaf suites.Hash, index uint64, proof Proof) (suites.Hash, error) {
	if len(proof) == 0 || len(proof) > MaxDepth {
		return suites.Hash{}, fmt.Errorf("%w: unexpected length %v", ErrMalformedProof, len(proof))
	} else if index>>len(proof) != 0 {
		return suites.Hash{}, fmt.Errorf("%w: index %v does not fit in a tree of depth %v", ErrIndexOutOfBounds, index, len(proof))
	} else if err := cs.Validate(leaf); err != nil {
		return suites.Hash{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	for _, elem := range proof {
		if err := cs.Validate(elem.Hash); err != nil {
			return suites.Hash{}, fmt.Errorf("%w: %v", ErrMalformedProof, err)
		}
	}

	acc, i := leaf, index
	for _, elem := range proof {
		if elem.Side != sideOf(i) {
			return suites.Hash{}, fmt.Errorf("%w: sibling side does not match index", ErrMalformedProof)
		}
		if i&1 == 0 {
			acc = cs.HashPair(acc, elem.Hash)
		} else {
			acc = cs.HashPair(elem.Hash, acc)
		}
		i >>= 1
	}

	return acc, nil
}

// Verify reports whether `proof` shows that `leaf` is at position `index` in
// the tree with the given root.
func Verify(cs suites.CipherSuite, leaf suites.Hash, index uint64, proof Proof, root suites.Hash) bool {
	cand, err := EvaluateProof(cs, leaf, index, proof)
	if err != nil {
		return false
	}
	return cand == root
}
