// Package sequencer assigns identity commitments to leaf slots of a Merkle
// accumulator, mirrors every insertion on a ledger, and serves inclusion
// proofs against the current root.
//
// The ledger is the source of truth. Local state is rebuilt from ledger
// history at startup and can be rebuilt again with Reconcile if the two are
// ever found to disagree.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
	"github.com/Bren2010/signup-sequencer/ledger"
	"github.com/Bren2010/signup-sequencer/tree/accumulator"
	"github.com/Bren2010/signup-sequencer/tree/index"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"
)

// DefaultDepth and DefaultInitialLeaf match the parameters of the deployed
// Semaphore contract.
const DefaultDepth = 21

var DefaultInitialLeaf = mustParseHash("0x1c4823575d154474ee3e5ac838d002456a815181437afd14f126da58a9912bbe")

func mustParseHash(s string) suites.Hash {
	h, err := suites.ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// Config contains the parameters of a Sequencer. Suite, Depth, and
// InitialLeaf must agree with the ledger contract. Zero timing fields are
// replaced by defaults.
type Config struct {
	Suite       suites.CipherSuite
	Depth       int
	InitialLeaf suites.Hash

	// SubmitTimeout bounds how long a single insertion may take to be
	// confirmed, across all retries.
	SubmitTimeout time.Duration
	// MaxAttempts is the number of times a submission is tried before it is
	// considered failed. Only transient ledger errors are retried.
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration

	// ReconcileInterval enables periodic reconciliation when non-zero.
	ReconcileInterval time.Duration
}

// DefaultConfig returns a Config for the MiMC/BN254 Semaphore tree.
func DefaultConfig() Config {
	return Config{
		Suite:       suites.MiMCBN254{},
		Depth:       DefaultDepth,
		InitialLeaf: DefaultInitialLeaf,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.SubmitTimeout == 0 {
		c.SubmitTimeout = 60 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.Backoff == 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
	return c
}

// Target selects the leaf an inclusion proof is requested for.
type Target struct {
	byCommitment bool
	index        uint64
	commitment   suites.Hash
}

func ByIndex(i uint64) Target { return Target{index: i} }

func ByCommitment(c suites.Hash) Target { return Target{byCommitment: true, commitment: c} }

// InclusionProof is a leaf together with the path proving it is included in
// Root. All fields are taken from the same snapshot of the tree.
type InclusionProof struct {
	Root  suites.Hash       `json:"root"`
	Index uint64            `json:"identityIndex"`
	Leaf  suites.Hash       `json:"leaf"`
	Path  accumulator.Proof `json:"proof"`
	// Pending is set if the leaf has not yet been confirmed by the ledger.
	Pending bool `json:"pending"`
}

// Status is a summary of the sequencer's state.
type Status struct {
	NextIndex  uint64      `json:"nextIndex"`
	Capacity   uint64      `json:"capacity"`
	Root       suites.Hash `json:"root"`
	Pending    int         `json:"pending"`
	Divergence *Divergence `json:"divergence,omitempty"`
}

// Sequencer is safe for concurrent use. A single instance is shared by every
// request handler.
type Sequencer struct {
	cfg    Config
	gw     ledger.Gateway
	outbox *outbox

	// reconcileMu serializes calls to Reconcile.
	reconcileMu sync.Mutex

	mu         sync.RWMutex
	tree       *accumulator.Tree
	index      *index.Index
	next       uint64
	pending    map[uint64]*entry
	divergence *Divergence
	// confirmed is one past the last index the ledger confirmed. Submissions
	// complete in index order, so every index below it has been confirmed.
	confirmed uint64
}

// New reads the ledger's insertion history and replays it into a fresh tree.
// The returned Sequencer accepts insertions once Run has been started.
func New(ctx context.Context, cfg Config, gw ledger.Gateway) (*Sequencer, error) {
	cfg = cfg.withDefaults()
	if gw == nil {
		return nil, fmt.Errorf("%w: no ledger gateway provided", ErrInvalidConfig)
	} else if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: max attempts must not be negative", ErrInvalidConfig)
	}
	// Catch bad tree parameters before talking to the ledger.
	if _, err := accumulator.New(cfg.Suite, cfg.Depth, cfg.InitialLeaf); err != nil {
		return nil, err
	}

	history, err := gw.PastInsertions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger history: %w", err)
	}
	tree, idx, err := replay(cfg, history)
	if err != nil {
		return nil, err
	}
	log.Info("Replayed ledger history", "insertions", len(history), "root", tree.Root())

	s := &Sequencer{
		cfg:    cfg,
		gw:     gw,
		outbox: newOutbox(),

		tree:      tree,
		index:     idx,
		next:      uint64(len(history)),
		pending:   make(map[uint64]*entry),
		confirmed: uint64(len(history)),
	}
	s.updateGauges()
	return s, nil
}

// replay builds the tree and index described by a ledger history. Entry i of
// the history must carry index i.
func replay(cfg Config, history []ledger.Insertion) (*accumulator.Tree, *index.Index, error) {
	tree, err := accumulator.New(cfg.Suite, cfg.Depth, cfg.InitialLeaf)
	if err != nil {
		return nil, nil, err
	}
	idx := index.New()

	for i, ins := range history {
		if ins.Index != uint64(i) {
			return nil, nil, fmt.Errorf("%w: entry %v carries index %v", ErrReplayInconsistency, i, ins.Index)
		} else if err := tree.Set(ins.Index, ins.Commitment); err != nil {
			return nil, nil, fmt.Errorf("%w: entry %v: %v", ErrReplayInconsistency, i, err)
		} else if err := idx.Insert(ins.Commitment, ins.Index); err != nil {
			return nil, nil, fmt.Errorf("%w: entry %v: %v", ErrReplayInconsistency, i, err)
		}
	}

	return tree, idx, nil
}

// Insert assigns commitment the next free leaf index, applies it to the tree,
// and waits for the ledger to confirm it.
//
// Once an index has been assigned it is always returned, along with nil if
// the ledger confirmed the insertion, an error matching ErrLedgerDivergence
// if the submission failed, or ErrConfirmationPending if ctx ended first. In
// the last case the submission carries on in the background. Insertions
// refused while a divergence is recorded fail with ErrInsertionsSuspended
// and are not assigned an index.
func (s *Sequencer) Insert(ctx context.Context, commitment suites.Hash) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e, err := s.sequence(commitment)
	if err != nil {
		return 0, err
	}

	select {
	case <-e.done:
		return e.index, e.err
	case <-ctx.Done():
		return e.index, ErrConfirmationPending
	}
}

// sequence applies commitment to local state and queues it for submission.
func (s *Sequencer) sequence(commitment suites.Hash) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.divergence != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsertionsSuspended, s.divergence)
	} else if i, ok := s.index.Lookup(commitment); ok {
		return nil, fmt.Errorf("%w: %v at index %v", ErrDuplicateCommitment, commitment, i)
	}

	i := s.next
	if err := s.tree.Set(i, commitment); err != nil {
		return nil, err
	} else if err := s.index.Insert(commitment, i); err != nil {
		panic(err) // Checked above.
	}
	s.next++

	e := newEntry(i, commitment)
	s.pending[i] = e
	s.outbox.push(e)
	s.updateGauges()

	log.Debug("Sequenced commitment", "index", i, "commitment", commitment)
	return e, nil
}

// Prove returns an inclusion proof for the selected leaf.
func (s *Sequencer) Prove(t Target) (*InclusionProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := t.index
	if t.byCommitment {
		var ok bool
		if i, ok = s.index.Lookup(t.commitment); !ok {
			return nil, fmt.Errorf("%w: %v", ErrCommitmentNotFound, t.commitment)
		}
	}
	leaf, err := s.tree.Get(i)
	if err != nil {
		return nil, err
	} else if d := s.divergence; d != nil && i >= d.Index {
		return nil, d
	}
	path, err := s.tree.Proof(i)
	if err != nil {
		return nil, err
	}
	_, pending := s.pending[i]

	return &InclusionProof{
		Root:    s.tree.Root(),
		Index:   i,
		Leaf:    leaf,
		Path:    path,
		Pending: pending,
	}, nil
}

func (s *Sequencer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		NextIndex:  s.next,
		Capacity:   s.tree.Capacity(),
		Root:       s.tree.Root(),
		Pending:    len(s.pending),
		Divergence: s.divergence,
	}
}

// Run submits queued insertions to the ledger, and reconciles periodically if
// configured to, until ctx ends. Insertions still waiting to be submitted
// when Run returns are failed.
func (s *Sequencer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.submitter(ctx)
		return nil
	})
	if s.cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			s.reconciler(ctx)
			return nil
		})
	}
	err := g.Wait()

	s.mu.Lock()
	if len(s.pending) > 0 {
		first := s.next
		for i := range s.pending {
			if i < first {
				first = i
			}
		}
		log.Warn("Stopping with unconfirmed insertions", "pending", len(s.pending))
		s.diverge(first, errors.New("sequencer stopped before submission completed"))
	}
	s.mu.Unlock()

	return err
}

func (s *Sequencer) reconciler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
			log.Warn("Periodic reconciliation failed", "err", err)
		}
	}
}

// diverge records that local state stopped matching the ledger at index i,
// unless a divergence is already recorded. Every insertion that is queued or
// at or after i is failed. Must be called with the write lock held.
func (s *Sequencer) diverge(i uint64, cause error) {
	if s.divergence != nil {
		return
	}

	for _, e := range s.outbox.drain() {
		if e.index < i {
			i = e.index
		}
	}
	d := &Divergence{Index: i, Err: cause, At: time.Now()}
	s.divergence = d
	for idx, e := range s.pending {
		if idx >= i {
			e.resolve(d)
			delete(s.pending, idx)
		}
	}
	s.updateGauges()

	log.Error("Local state diverged from the ledger", "index", i, "err", cause)
}

// updateGauges must be called with the lock held.
func (s *Sequencer) updateGauges() {
	nextIndexGauge.Set(float64(s.next))
	pendingGauge.Set(float64(len(s.pending)))
	if s.divergence != nil {
		divergedGauge.Set(1)
	} else {
		divergedGauge.Set(0)
	}
}
