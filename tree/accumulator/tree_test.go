package accumulator

import (
	"errors"
	"math/big"
	mrand "math/rand"
	"testing"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
)

var cs = suites.MiMCBN254{}

func h(x int64) suites.Hash {
	out, err := suites.HashFromBig(big.NewInt(x))
	if err != nil {
		panic(err)
	}
	return out
}

func random(r *mrand.Rand) suites.Hash {
	// 31 random bytes always fit in the BN254 scalar field.
	var out suites.Hash
	r.Read(out[1:])
	return out
}

// naiveRoot computes the root of a tree with the given leaves by building
// every level in full. It is an alternative implementation of the root
// computation which we use to double-check the incremental one.
func naiveRoot(depth int, leaves []suites.Hash) suites.Hash {
	level := leaves
	for l := 0; l < depth; l++ {
		next := make([]suites.Hash, len(level)/2)
		for i := range next {
			next[i] = cs.HashPair(level[2*i], level[2*i+1])
		}
		level = next
	}
	return level[0]
}

func TestNewInvalidConfig(t *testing.T) {
	for _, depth := range []int{-1, 0, MaxDepth + 1} {
		if _, err := New(cs, depth, h(0)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("depth %v: expected ErrInvalidConfig, got %v", depth, err)
		}
	}

	var bad suites.Hash
	for i := range bad {
		bad[i] = 0xff
	}
	if _, err := New(cs, 3, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for non-canonical initial leaf, got %v", err)
	}
	if _, err := New(nil, 3, h(0)); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing suite, got %v", err)
	}
}

func TestEmptyRoot(t *testing.T) {
	initial := h(7)
	tree, err := New(cs, 4, initial)
	if err != nil {
		t.Fatal(err)
	}
	leaves := make([]suites.Hash, 16)
	for i := range leaves {
		leaves[i] = initial
	}
	if tree.Root() != naiveRoot(4, leaves) {
		t.Fatal("empty root does not match naive computation")
	}
	if tree.Capacity() != 16 || tree.Depth() != 4 {
		t.Fatal("unexpected tree dimensions")
	}
}

// TestWorkedExample follows a depth-3 tree through two insertions and checks
// the root and proof against values computed by hand.
func TestWorkedExample(t *testing.T) {
	zero := h(0)
	a, b, c := h(0xa), h(0xb), h(0xc)

	tree, err := New(cs, 3, zero)
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Set(0, a); err != nil {
		t.Fatal(err)
	}
	if err := tree.Set(1, b); err != nil {
		t.Fatal(err)
	}

	h00 := cs.HashPair(zero, zero)
	h0000 := cs.HashPair(h00, h00)
	want := cs.HashPair(cs.HashPair(cs.HashPair(a, b), h00), h0000)
	if tree.Root() != want {
		t.Fatalf("unexpected root: %v != %v", tree.Root(), want)
	}

	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatal(err)
	}
	wantProof := Proof{{b, Right}, {h00, Right}, {h0000, Right}}
	if len(proof) != len(wantProof) {
		t.Fatalf("unexpected proof length: %v", len(proof))
	}
	for i := range proof {
		if proof[i] != wantProof[i] {
			t.Fatalf("proof node %v: got %+v, want %+v", i, proof[i], wantProof[i])
		}
	}
	if !Verify(cs, a, 0, proof, tree.Root()) {
		t.Fatal("proof for slot 0 did not verify")
	}

	// A stale proof must not verify against the root after slot 1 changes.
	if err := tree.Set(1, c); err != nil {
		t.Fatal(err)
	}
	if Verify(cs, a, 0, proof, tree.Root()) {
		t.Fatal("stale proof verified against new root")
	}
	fresh, err := tree.Proof(0)
	if err != nil {
		t.Fatal(err)
	}
	if !Verify(cs, a, 0, fresh, tree.Root()) {
		t.Fatal("fresh proof did not verify")
	}
}

func TestSetProofVerify(t *testing.T) {
	r := mrand.New(mrand.NewSource(1))
	initial := h(0)
	depth := 6

	tree, err := New(cs, depth, initial)
	if err != nil {
		t.Fatal(err)
	}
	leaves := make([]suites.Hash, 1<<depth)
	for i := range leaves {
		leaves[i] = initial
	}

	for i := uint64(0); i < 40; i++ {
		value := random(r)
		leaves[i] = value
		if err := tree.Set(i, value); err != nil {
			t.Fatal(err)
		}

		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatal(err)
		}
		if !Verify(cs, value, i, proof, tree.Root()) {
			t.Fatalf("proof for slot %v did not verify", i)
		}
		if tree.Root() != naiveRoot(depth, leaves) {
			t.Fatalf("root after setting slot %v does not match naive computation", i)
		}
	}

	// Every earlier slot still verifies against the final root.
	for i := uint64(0); i < 40; i++ {
		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatal(err)
		}
		got, err := tree.Get(i)
		if err != nil {
			t.Fatal(err)
		} else if got != leaves[i] {
			t.Fatalf("slot %v holds unexpected value", i)
		}
		if !Verify(cs, leaves[i], i, proof, tree.Root()) {
			t.Fatalf("proof for slot %v did not verify against final root", i)
		}
	}
}

func TestEmptySlotProof(t *testing.T) {
	initial := h(3)
	tree, err := New(cs, 5, initial)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 5; i++ {
		if err := tree.Set(i, h(int64(100+i))); err != nil {
			t.Fatal(err)
		}
	}

	for _, i := range []uint64{5, 6, 17, 31} {
		proof, err := tree.Proof(i)
		if err != nil {
			t.Fatal(err)
		}
		if !Verify(cs, initial, i, proof, tree.Root()) {
			t.Fatalf("proof for empty slot %v did not verify", i)
		}
		if Verify(cs, h(100), i, proof, tree.Root()) {
			t.Fatalf("proof for empty slot %v verified with the wrong leaf", i)
		}
	}
}

func TestSparseSet(t *testing.T) {
	initial := h(0)
	depth := 5
	tree, err := New(cs, depth, initial)
	if err != nil {
		t.Fatal(err)
	}
	leaves := make([]suites.Hash, 1<<depth)
	for i := range leaves {
		leaves[i] = initial
	}

	for _, i := range []uint64{20, 3, 31, 0} {
		leaves[i] = h(int64(i + 1))
		if err := tree.Set(i, leaves[i]); err != nil {
			t.Fatal(err)
		}
	}
	if tree.Root() != naiveRoot(depth, leaves) {
		t.Fatal("root does not match naive computation")
	}
}

func TestOutOfBounds(t *testing.T) {
	tree, err := New(cs, 3, h(0))
	if err != nil {
		t.Fatal(err)
	}
	root := tree.Root()

	if err := tree.Set(8, h(1)); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("expected ErrIndexOutOfBounds, got %v", err)
	}
	if _, err := tree.Proof(8); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("expected ErrIndexOutOfBounds, got %v", err)
	}
	if _, err := tree.Get(1 << 40); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("expected ErrIndexOutOfBounds, got %v", err)
	}

	var bad suites.Hash
	bad[0] = 0xff
	if err := tree.Set(0, bad); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if tree.Root() != root {
		t.Fatal("failed set changed the root")
	}
}

func TestDeterministicRoot(t *testing.T) {
	build := func() suites.Hash {
		r := mrand.New(mrand.NewSource(42))
		tree, err := New(cs, 8, h(0))
		if err != nil {
			t.Fatal(err)
		}
		for i := uint64(0); i < 25; i++ {
			if err := tree.Set(i, random(r)); err != nil {
				t.Fatal(err)
			}
		}
		return tree.Root()
	}
	if build() != build() {
		t.Fatal("identical leaves produced different roots")
	}
}
