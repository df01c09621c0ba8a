package local

import (
	"context"
	"math/big"
	"testing"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/Bren2010/signup-sequencer/db"
	"github.com/Bren2010/signup-sequencer/db/memory"
	"github.com/Bren2010/signup-sequencer/ledger"
	"github.com/stretchr/testify/require"
)

func commitment(x int64) suites.Hash {
	out, err := suites.HashFromBig(big.NewInt(x))
	if err != nil {
		panic(err)
	}
	return out
}

func TestSubmitAndReplay(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewLedgerStore())

	history, err := l.PastInsertions(ctx)
	require.NoError(t, err)
	require.Empty(t, history)

	for i := uint64(0); i < 3; i++ {
		conf, err := l.SubmitInsertion(ctx, i, commitment(int64(10+i)))
		require.NoError(t, err)
		require.Equal(t, i, conf.Index)
	}

	history, err = l.PastInsertions(ctx)
	require.NoError(t, err)
	require.Equal(t, []ledger.Insertion{
		{Index: 0, Commitment: commitment(10)},
		{Index: 1, Commitment: commitment(11)},
		{Index: 2, Commitment: commitment(12)},
	}, history)
}

func TestSubmitWrongIndex(t *testing.T) {
	ctx := context.Background()
	l := New(memory.NewLedgerStore())

	_, err := l.SubmitInsertion(ctx, 1, commitment(1))
	require.Error(t, err)
	require.False(t, ledger.IsTransient(err))

	history, err := l.PastInsertions(ctx)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSubmitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(memory.NewLedgerStore())
	_, err := l.SubmitInsertion(ctx, 0, commitment(1))
	require.True(t, ledger.IsTransient(err))
}

func TestLevelDBBacked(t *testing.T) {
	ctx := context.Background()
	file := t.TempDir() + "/ledger.db"

	store, err := db.NewLDBLedgerStore(file)
	require.NoError(t, err)
	_, err = New(store).SubmitInsertion(ctx, 0, commitment(5))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = db.NewLDBLedgerStore(file)
	require.NoError(t, err)
	defer store.Close()

	history, err := New(store).PastInsertions(ctx)
	require.NoError(t, err)
	require.Equal(t, []ledger.Insertion{{Index: 0, Commitment: commitment(5)}}, history)
}
