package batch

import (
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

type Option func(*options)

type options struct {
	panicHandler func(interface{})
	expiry       time.Duration
	releaseHook  func()
}

// WithPanicHandler replaces the default handler, which logs the panic.
func WithPanicHandler(handler func(interface{})) Option {
	return func(o *options) {
		o.panicHandler = handler
	}
}

// WithExpiryDuration sets how long an idle pool goroutine is kept around.
func WithExpiryDuration(d time.Duration) Option {
	return func(o *options) {
		o.expiry = d
	}
}

// WithReleaseHook sets a function called every time a task completes, once its slot is
// counted as free again.
func WithReleaseHook(hook func()) Option {
	return func(o *options) {
		o.releaseHook = hook
	}
}

func taskPanicHandler(r interface{}) {
	err, ok := r.(error)
	if ok {
		log.WithError(err).Error("Task panic")
	} else {
		log.WithField("cause", r).Error("Task panic")
	}
}

// Executor runs the tasks of every batch it creates on one bounded goroutine pool.
// Admission is decided by the executor's own slot count: a task is rejected when every
// slot is taken and never because a finished goroutine has not returned to the pool yet.
type Executor struct {
	pool *ants.Pool
	// inUse counts accepted tasks that have not completed. The pool keeps idle
	// goroutines alive, so its own running count is not a measure of load.
	inUse       atomic.Int64
	releaseHook func()
}

func NewExecutor(size int, opts ...Option) (*Executor, error) {
	o := &options{panicHandler: taskPanicHandler}
	for _, opt := range opts {
		opt(o)
	}

	antsOptions := []ants.Option{
		ants.WithPanicHandler(o.panicHandler),
	}
	if o.expiry > 0 {
		antsOptions = append(antsOptions, ants.WithExpiryDuration(o.expiry))
	}

	pool, err := ants.NewPool(size, antsOptions...)
	if err != nil {
		return nil, err
	}
	return &Executor{pool: pool, releaseHook: o.releaseHook}, nil
}

// acquire takes a slot, it fails when every slot is in use.
func (e *Executor) acquire() bool {
	for {
		n := e.inUse.Load()
		if n >= int64(e.pool.Cap()) {
			return false
		}
		if e.inUse.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (e *Executor) release() {
	e.inUse.Add(-1)
}

func (e *Executor) notifyRelease() {
	if e.releaseHook != nil {
		e.releaseHook()
	}
}

func (e *Executor) NewBatch() *Batch {
	return newBatch(e)
}

// Free returns the number of tasks the pool can accept right now.
func (e *Executor) Free() int {
	free := e.pool.Cap() - int(e.inUse.Load())
	if free < 0 {
		return 0
	}
	return free
}

// Running returns the number of submitted tasks that have not completed.
func (e *Executor) Running() int {
	return int(e.inUse.Load())
}

func (e *Executor) Cap() int {
	return e.pool.Cap()
}

func (e *Executor) Closed() bool {
	return e.pool.IsClosed()
}

// Release stops accepting tasks and waits at most timeout for running ones.
func (e *Executor) Release(timeout time.Duration) error {
	return e.pool.ReleaseTimeout(timeout)
}
