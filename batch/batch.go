package batch

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
)

const ErrRejectedExecution = BatchError("ErrRejectedExecution")

type BatchError string

func (e BatchError) Error() string {
	return string(e)
}

type Task func()

var handleSeq atomic.Uint64

// Handle identifies one submitted task.
type Handle struct {
	id   uint64
	done chan struct{}
}

func (h *Handle) ID() uint64 {
	return h.id
}

// Done is closed once the task has finished, whether it returned or panicked.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Completed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Batch tracks a set of tasks submitted together and lets the caller wait for them,
// optionally with a deadline after which the stragglers are returned.
type Batch struct {
	executor *Executor

	mu      sync.Mutex
	pending map[*Handle]struct{}
	closed  bool
	// changed is closed and replaced every time a task completes.
	changed chan struct{}
}

func newBatch(executor *Executor) *Batch {
	return &Batch{
		executor: executor,
		pending:  make(map[*Handle]struct{}),
		changed:  make(chan struct{}),
	}
}

// Submit schedules task for execution. It fails without waiting when the batch is closed
// or every executor slot is taken. Once a slot is taken it may wait for the pool to hand
// back the goroutine of a task that just completed.
func (b *Batch) Submit(task Task) (*Handle, error) {
	h := &Handle{
		id:   handleSeq.Add(1),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrRejectedExecution
	}
	if !b.executor.acquire() {
		b.mu.Unlock()
		return nil, errors.Join(ErrRejectedExecution, ants.ErrPoolOverload)
	}
	b.pending[h] = struct{}{}
	b.mu.Unlock()

	// b.mu must not be held here: completing tasks of this batch need it to return their goroutine
	err := b.executor.pool.Submit(func() {
		defer b.complete(h)
		task()
	})
	if err != nil {
		b.mu.Lock()
		delete(b.pending, h)
		b.broadcast()
		b.mu.Unlock()
		b.executor.release()
		return nil, errors.Join(ErrRejectedExecution, err)
	}
	return h, nil
}

func (b *Batch) complete(h *Handle) {
	b.mu.Lock()
	if _, ok := b.pending[h]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, h)
	b.executor.release()
	close(h.done)
	b.broadcast()
	b.mu.Unlock()

	b.executor.notifyRelease()
}

// broadcast wakes waiters; b.mu must be held.
func (b *Batch) broadcast() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Close finalizes the batch; later submissions are rejected.
func (b *Batch) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *Batch) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Pending returns the tasks that have not completed yet.
func (b *Batch) Pending() []*Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot()
}

func (b *Batch) snapshot() []*Handle {
	handles := make([]*Handle, 0, len(b.pending))
	for h := range b.pending {
		handles = append(handles, h)
	}
	return handles
}

// Wait blocks until every task, including those submitted while waiting, has completed.
func (b *Batch) Wait() {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.mu.Unlock()
			return
		}
		changed := b.changed
		b.mu.Unlock()

		<-changed
	}
}

// WaitTimeout waits at most timeout and returns the tasks still running at the deadline.
// An empty result means every task completed.
func (b *Batch) WaitTimeout(timeout time.Duration) []*Handle {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if len(b.pending) == 0 || timeout <= 0 {
			stragglers := b.snapshot()
			b.mu.Unlock()
			return stragglers
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return b.Pending()
		}
	}
}
