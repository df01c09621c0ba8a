package sequencer

import (
	"context"
	"fmt"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/Bren2010/signup-sequencer/ledger"
	"github.com/ethereum/go-ethereum/log"
)

// Report describes the outcome of a reconciliation.
type Report struct {
	LedgerSize uint64 `json:"ledgerSize"`
	LocalSize  uint64 `json:"localSize"`

	// Divergence is the divergence that was found or repaired, if any.
	Divergence *Divergence `json:"divergence,omitempty"`
	// Repaired is set if local state was rebuilt from the ledger. Dropped is
	// the number of local insertions that were not on the ledger and were
	// discarded.
	Repaired bool   `json:"repaired"`
	Dropped  uint64 `json:"dropped"`

	Root suites.Hash `json:"root"`
}

// Reconcile compares local state to the ledger's history.
//
// If no divergence is recorded, the ledger's history must be a prefix of the
// insertions sequenced locally, and must still hold every insertion the
// ledger already confirmed; only insertions awaiting confirmation may be
// missing from it. Any other difference is recorded as a divergence.
//
// If a divergence is recorded, local state is replaced by a replay of the
// ledger's history and the divergence is cleared. Local insertions that are
// not on the ledger are dropped and their callers are failed.
func (s *Sequencer) Reconcile(ctx context.Context) (*Report, error) {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	// Insertions confirmed after this point may be missing from the history
	// read below.
	s.mu.RLock()
	confirmed := s.confirmed
	s.mu.RUnlock()

	history, err := s.gw.PastInsertions(ctx)
	if err != nil {
		reconcileOps.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read ledger history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rep := &Report{LedgerSize: uint64(len(history)), LocalSize: s.next}
	if s.divergence == nil {
		i, cause := s.compare(history, confirmed)
		if cause == nil {
			rep.Root = s.tree.Root()
			reconcileOps.WithLabelValues("consistent").Inc()
			log.Debug("Local state is consistent with the ledger", "ledger", len(history), "local", s.next)
			return rep, nil
		}
		s.diverge(i, cause)
	}
	rep.Divergence = s.divergence

	tree, idx, err := replay(s.cfg, history)
	if err != nil {
		reconcileOps.WithLabelValues("error").Inc()
		rep.Root = s.tree.Root()
		return rep, err
	}

	// Anything still pending sits before the divergence, so it was either
	// confirmed in the history just read or is being dropped now.
	for i, e := range s.pending {
		if c, ok := confirmedIn(history, i); ok && c == e.commitment {
			e.resolve(nil)
		} else {
			e.resolve(s.divergence)
		}
		delete(s.pending, i)
	}
	if s.next > rep.LedgerSize {
		rep.Dropped = s.next - rep.LedgerSize
	}

	s.tree, s.index, s.next = tree, idx, rep.LedgerSize
	s.confirmed = rep.LedgerSize
	s.divergence = nil
	s.updateGauges()

	rep.Repaired = true
	rep.Root = tree.Root()
	reconcileOps.WithLabelValues("repaired").Inc()
	log.Info("Rebuilt local state from the ledger", "insertions", len(history), "dropped", rep.Dropped, "root", rep.Root)

	return rep, nil
}

// compare checks that history is consistent with local state, and that it
// holds at least the first confirmed insertions. If it is not, it returns the
// first index at which they differ and the reason.
func (s *Sequencer) compare(history []ledger.Insertion, confirmed uint64) (uint64, error) {
	for i, ins := range history {
		local, err := s.tree.Get(uint64(i))
		if ins.Index != uint64(i) {
			return uint64(i), fmt.Errorf("%w: entry %v carries index %v", ErrReplayInconsistency, i, ins.Index)
		} else if uint64(i) >= s.next {
			return s.next, fmt.Errorf("ledger holds %v insertions but only %v were sequenced", len(history), s.next)
		} else if err != nil {
			return uint64(i), err
		} else if local != ins.Commitment {
			return uint64(i), fmt.Errorf("ledger holds %v at index %v, local state holds %v", ins.Commitment, i, local)
		}
	}
	if n := uint64(len(history)); n < confirmed {
		return n, fmt.Errorf("ledger lost confirmed insertion %v, it holds %v of %v", n, n, confirmed)
	}
	return 0, nil
}

func confirmedIn(history []ledger.Insertion, i uint64) (suites.Hash, bool) {
	if i >= uint64(len(history)) {
		return suites.Hash{}, false
	}
	return history[i].Commitment, true
}
