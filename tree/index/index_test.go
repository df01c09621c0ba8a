package index

import (
	"math/big"
	"testing"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/stretchr/testify/require"
)

func commitment(x int64) suites.Hash {
	out, err := suites.HashFromBig(big.NewInt(x))
	if err != nil {
		panic(err)
	}
	return out
}

func TestInsertLookup(t *testing.T) {
	x := New()
	c1, c2 := commitment(1), commitment(2)

	require.NoError(t, x.Insert(c1, 0))
	require.NoError(t, x.Insert(c2, 1))
	require.Equal(t, 2, x.Len())

	i1, ok := x.Lookup(c1)
	require.True(t, ok)
	i2, ok := x.Lookup(c2)
	require.True(t, ok)
	require.NotEqual(t, i1, i2)
	require.Equal(t, uint64(0), i1)
	require.Equal(t, uint64(1), i2)

	_, ok = x.Lookup(commitment(3))
	require.False(t, ok)
}

func TestDuplicate(t *testing.T) {
	x := New()
	c := commitment(5)
	require.NoError(t, x.Insert(c, 0))

	// Rejected whatever index is requested.
	require.ErrorIs(t, x.Insert(c, 0), ErrDuplicateCommitment)
	require.ErrorIs(t, x.Insert(c, 7), ErrDuplicateCommitment)

	i, ok := x.Lookup(c)
	require.True(t, ok)
	require.Equal(t, uint64(0), i)
	require.Equal(t, 1, x.Len())
}
