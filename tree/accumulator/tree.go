package accumulator

import (
	"fmt"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
)

// ProofNode is one step of an inclusion proof: the sibling of the node on the
// path from the leaf to the root, and which side of the path it is on.
type ProofNode struct {
	Hash suites.Hash `json:"hash"`
	Side Side        `json:"side"`
}

// Proof is an inclusion proof, ordered from leaf to root.
type Proof []ProofNode

// Tree is a complete binary Merkle tree of fixed depth whose leaf slots all
// start out holding the same initial value.
//
// Nodes are only materialized up to the highest slot that has ever been set.
// Any node past the end of its level is the root of an untouched subtree, so
// its hash is the precomputed empty hash for that level. Tree is not safe for
// concurrent use; callers must synchronize access.
type Tree struct {
	cs    suites.CipherSuite
	depth int

	// empty[l] is the hash of a subtree of height l with every leaf set to
	// the initial value. empty[0] is the initial value itself.
	empty []suites.Hash
	// levels[l] holds the materialized nodes of level l, where level 0 is the
	// leaves and levels[depth] always has exactly one element, the root.
	levels [][]suites.Hash
}

// New returns a tree of the given depth with every slot set to initialLeaf.
func New(cs suites.CipherSuite, depth int, initialLeaf suites.Hash) (*Tree, error) {
	if cs == nil {
		return nil, fmt.Errorf("%w: no cipher suite", ErrInvalidConfig)
	} else if depth <= 0 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: depth must be between 1 and %v, got %v", ErrInvalidConfig, MaxDepth, depth)
	} else if err := cs.Validate(initialLeaf); err != nil {
		return nil, fmt.Errorf("%w: initial leaf: %v", ErrInvalidConfig, err)
	}

	empty := make([]suites.Hash, depth+1)
	empty[0] = initialLeaf
	for l := 1; l <= depth; l++ {
		empty[l] = cs.HashPair(empty[l-1], empty[l-1])
	}

	levels := make([][]suites.Hash, depth+1)
	levels[depth] = []suites.Hash{empty[depth]}

	return &Tree{cs: cs, depth: depth, empty: empty, levels: levels}, nil
}

// Depth returns the number of levels between the leaves and the root.
func (t *Tree) Depth() int { return t.depth }

// Capacity returns the number of leaf slots, 2^depth.
func (t *Tree) Capacity() uint64 { return uint64(1) << t.depth }

// Empty returns the hash of an untouched subtree at the given level.
func (t *Tree) Empty(level int) suites.Hash { return t.empty[level] }

// Root returns the current root of the tree.
func (t *Tree) Root() suites.Hash { return t.levels[t.depth][0] }

func (t *Tree) checkIndex(index uint64) error {
	if index >= t.Capacity() {
		return fmt.Errorf("%w: %v >= %v", ErrIndexOutOfBounds, index, t.Capacity())
	}
	return nil
}

// node returns the hash of node i in level l.
func (t *Tree) node(l int, i uint64) suites.Hash {
	if i < uint64(len(t.levels[l])) {
		return t.levels[l][i]
	}
	return t.empty[l]
}

// setNode updates node i in level l, extending the level with empty hashes if
// necessary.
func (t *Tree) setNode(l int, i uint64, value suites.Hash) {
	for uint64(len(t.levels[l])) <= i {
		t.levels[l] = append(t.levels[l], t.empty[l])
	}
	t.levels[l][i] = value
}

// Get returns the current value of the given leaf slot.
func (t *Tree) Get(index uint64) (suites.Hash, error) {
	if err := t.checkIndex(index); err != nil {
		return suites.Hash{}, err
	}
	return t.node(0, index), nil
}

// Set overwrites the given leaf slot and recomputes every node on its path to
// the root, one hash per level.
func (t *Tree) Set(index uint64, value suites.Hash) error {
	if err := t.checkIndex(index); err != nil {
		return err
	} else if err := t.cs.Validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	t.setNode(0, index, value)

	acc, i := value, index
	for l := 0; l < t.depth; l++ {
		sibling := t.node(l, i^1)
		if i&1 == 0 {
			acc = t.cs.HashPair(acc, sibling)
		} else {
			acc = t.cs.HashPair(sibling, acc)
		}
		i >>= 1
		t.setNode(l+1, i, acc)
	}

	return nil
}

// Proof returns the inclusion proof for the given slot. The slot does not need
// to have been set; the proof for an untouched slot verifies with the initial
// leaf value.
func (t *Tree) Proof(index uint64) (Proof, error) {
	if err := t.checkIndex(index); err != nil {
		return nil, err
	}

	proof := make(Proof, t.depth)
	i := index
	for l := 0; l < t.depth; l++ {
		proof[l] = ProofNode{Hash: t.node(l, i^1), Side: sideOf(i)}
		i >>= 1
	}
	return proof, nil
}
