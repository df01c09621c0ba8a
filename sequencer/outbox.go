package sequencer

import (
	"context"
	"sync"

	"github.com/Bren2010/signup-sequencer/crypto/suites"
)

// entry is an insertion that has been applied locally and is waiting for the
// ledger to confirm it.
type entry struct {
	index      uint64
	commitment suites.Hash

	done chan struct{}
	err  error
}

func newEntry(index uint64, commitment suites.Hash) *entry {
	return &entry{index: index, commitment: commitment, done: make(chan struct{})}
}

// resolve records the outcome of the entry and wakes its waiter. It must be
// called exactly once, with the sequencer's write lock held.
func (e *entry) resolve(err error) {
	e.err = err
	close(e.done)
}

// outbox is an unbounded FIFO queue of entries with a single consumer. Pushes
// never block.
type outbox struct {
	mu     sync.Mutex
	items  []*entry
	notify chan struct{}
}

func newOutbox() *outbox {
	return &outbox{notify: make(chan struct{}, 1)}
}

func (o *outbox) push(e *entry) {
	o.mu.Lock()
	o.items = append(o.items, e)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// pop blocks until an entry is available or ctx ends.
func (o *outbox) pop(ctx context.Context) (*entry, error) {
	for {
		o.mu.Lock()
		if len(o.items) > 0 {
			e := o.items[0]
			o.items[0] = nil
			o.items = o.items[1:]
			o.mu.Unlock()
			return e, nil
		}
		o.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-o.notify:
		}
	}
}

// drain removes and returns every queued entry.
func (o *outbox) drain() []*entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := o.items
	o.items = nil
	return out
}

func (o *outbox) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}
