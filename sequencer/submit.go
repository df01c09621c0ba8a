package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bren2010/signup-sequencer/ledger"
	"github.com/ethereum/go-ethereum/log"
)

// submitter delivers queued insertions to the ledger one at a time, in the
// order they were sequenced, until ctx ends.
func (s *Sequencer) submitter(ctx context.Context) {
	for {
		e, err := s.outbox.pop(ctx)
		if err != nil {
			return
		} else if !s.isPending(e) {
			continue
		}

		start := time.Now()
		conf, err := s.submit(ctx, e)
		submitDur.Observe(time.Since(start).Seconds())

		if err == nil && conf.Index != e.index {
			err = fmt.Errorf("ledger confirmed index %v, expected %v", conf.Index, e.index)
		}
		s.complete(e, conf, err)
	}
}

// submit sends one insertion to the ledger, retrying transient failures with
// exponential backoff. The same index and commitment are used for every
// attempt.
func (s *Sequencer) submit(ctx context.Context, e *entry) (*ledger.Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SubmitTimeout)
	defer cancel()

	backoff := s.cfg.Backoff
	for attempt := 1; ; attempt++ {
		conf, err := s.gw.SubmitInsertion(ctx, e.index, e.commitment)
		if err == nil {
			submitOps.WithLabelValues("success").Inc()
			return conf, nil
		} else if !ledger.IsTransient(err) {
			submitOps.WithLabelValues("permanent").Inc()
			return nil, err
		}
		submitOps.WithLabelValues("transient").Inc()
		if attempt >= s.cfg.MaxAttempts {
			return nil, fmt.Errorf("giving up after %v attempts: %w", attempt, err)
		}
		log.Warn("Ledger submission failed, retrying", "index", e.index, "attempt", attempt, "backoff", backoff, "err", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
		if !s.isPending(e) {
			return nil, errResolved
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

// errResolved stops the retries of an insertion that was resolved by a
// divergence or a reconciliation while it was being submitted.
var errResolved = errors.New("insertion was resolved during submission")

func (s *Sequencer) isPending(e *entry) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending[e.index] == e
}

// complete records the outcome of a submission. Entries that were already
// resolved, by a divergence or a reconciliation, are left alone.
func (s *Sequencer) complete(e *entry, conf *ledger.Confirmation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[e.index] != e {
		if err == nil {
			log.Warn("Ledger confirmed an insertion that was already resolved", "index", e.index, "commitment", e.commitment)
		}
		return
	} else if err != nil {
		s.diverge(e.index, err)
		return
	}

	delete(s.pending, e.index)
	s.confirmed = e.index + 1
	e.resolve(nil)
	s.updateGauges()

	log.Info("Insertion confirmed by ledger", "index", e.index, "tx", conf.TxHash, "block", conf.Block)
}
