package runner

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/soroosh-tanzadeh/elasticrunner/batch"
	"github.com/soroosh-tanzadeh/elasticrunner/consumer"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
	"github.com/soroosh-tanzadeh/elasticrunner/internal/locker"
	"github.com/soroosh-tanzadeh/elasticrunner/internal/ring"
	"github.com/soroosh-tanzadeh/elasticrunner/internal/safemap"
	"github.com/soroosh-tanzadeh/elasticrunner/scaling"
)

const metricsKeyPrefix = "elasticrunner:"

// Worker pulls messages from one source, runs them in bounded batches and
// feeds the pulled volume of every cycle to a scaling controller.
type Worker struct {
	id   string
	host string

	cfg Config

	source   contracts.PullSource
	consumer consumer.Consumer
	// consumerLock serializes a consumer that is not thread safe.
	consumerLock sync.Mutex
	consumerPool *sync.Pool

	controller *scaling.Controller
	executor   *batch.Executor

	status   atomic.Uint64
	state    atomic.Int32
	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	// inFlight holds the messages accepted by the pool and not settled yet.
	inFlight *safemap.SafeMap[string, contracts.Message]
	// unsettled remembers outcomes whose settlement failed, so redeliveries are settled
	// without running the consumer again.
	unsettled *safemap.SafeMap[string, unsettledOutcome]
	// lingering batches still have stragglers; owned by the loop goroutine.
	lingering []*batch.Batch
	released  chan struct{}

	processed atomic.Int64
	fails     atomic.Int64

	redisClient *redis.Client
	locker      contracts.DistributedLocker
	replicas    *replicaRegistry
	samples     *ring.RedisRing
	sampleBulk  *SampleBulkWriter
	lastSample  atomic.Int64

	// taskCtx is handed to consumers. It outlives loop cancellation until draining is over.
	taskCtx     context.Context
	cancelTasks context.CancelFunc

	wg sync.WaitGroup
}

// NewWorker builds a worker for source. client is optional: without it the worker runs
// without replica registry, scale-up dedupe and sample history.
func NewWorker(cfg Config, client *redis.Client, source contracts.PullSource, c consumer.Consumer) *Worker {
	cfg = cfg.withDefaults()

	w := &Worker{
		id:          uuid.NewString(),
		cfg:         cfg,
		source:      source,
		consumer:    c,
		stopCh:      make(chan struct{}),
		inFlight:    safemap.NewSafeMap[string, contracts.Message](),
		unsettled:   safemap.NewSafeMap[string, unsettledOutcome](),
		released:    make(chan struct{}, 1),
		redisClient: client,
	}

	if len(cfg.Host) == 0 {
		hostName, err := os.Hostname()
		if err != nil {
			hostName = uuid.NewString()
		}
		w.cfg.Host = hostName
	}
	w.host = w.cfg.Host

	if cfg.ConsumerFactory != nil {
		w.consumerPool = &sync.Pool{New: func() any { return cfg.ConsumerFactory() }}
	}

	controllerOptions := []scaling.Option{scaling.WithClock(cfg.Clock)}
	if cfg.ShutdownOnIdle {
		controllerOptions = append(controllerOptions, scaling.WithScaleDownAction(w.acceptScaleDown))
	}
	w.controller = scaling.NewController(cfg.Scaling, controllerOptions...)

	if client != nil {
		w.locker = locker.NewRedisMutexLocker(client)
		w.replicas = newReplicaRegistry(client, cfg.SourceID, w.id, w.host, w.captureError)
		w.samples = sampleRing(client, cfg)
		w.sampleBulk = NewSampleBulkWriter(sampleFlushInterval, w.flushSamples)
	}

	return w
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) SourceID() string {
	return w.cfg.SourceID
}

func (w *Worker) ConsumerGroup() string {
	return w.cfg.ConsumerGroup
}

func (w *Worker) Controller() *scaling.Controller {
	return w.controller
}

// IsRunning reports whether the loop is active. It turns false as soon as draining starts.
func (w *Worker) IsRunning() bool {
	return w.running.Load()
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// InFlight returns the number of messages being processed, stragglers of earlier cycles included.
func (w *Worker) InFlight() int {
	return w.inFlight.Len()
}

// Stop asks the loop to drain. It is safe to call more than once and from any goroutine.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *Worker) consumerName() string {
	return w.cfg.ConsumersPrefix + w.cfg.ConsumerGroup + "_" + w.host + "_" + w.id[:8]
}

func (w *Worker) logger() *log.Entry {
	return log.WithField("source", w.cfg.SourceID).WithField("consumer_group", w.cfg.ConsumerGroup)
}

func (w *Worker) captureError(err error) {
	w.logger().WithError(err).Error()
	if w.cfg.ErrorHandler != nil {
		w.cfg.ErrorHandler(err)
	}
}

// Start runs the loop and blocks until the worker has drained. It returns nil when the worker
// stopped on request, on context cancellation or on an accepted scale down, and the source
// error when the source failed unrecoverably.
func (w *Worker) Start(ctx context.Context) error {
	if w.status.Load() != statusInit {
		return ErrWorkerAlreadyStarted
	}
	if w.source == nil {
		return ErrNoSource
	}
	if w.consumer == nil && w.consumerPool == nil {
		return ErrNoConsumer
	}
	if !w.status.CompareAndSwap(statusInit, statusStarting) {
		return ErrRaceOccuredOnStart
	}

	executor, err := batch.NewExecutor(w.cfg.NumWorkers,
		batch.WithPanicHandler(w.taskPanicHandler),
		batch.WithReleaseHook(w.notifyReleased),
	)
	if err != nil {
		w.abortStart()
		return err
	}
	w.executor = executor

	if w.replicas != nil {
		if err := w.replicas.register(ctx); err != nil {
			w.abortStart()
			return err
		}
	}

	w.taskCtx, w.cancelTasks = context.WithCancel(context.WithoutCancel(ctx))

	scheduler, err := w.startMaintenance()
	if err != nil {
		w.captureError(err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	w.running.Store(true)
	if !w.status.CompareAndSwap(statusStarting, statusStarted) {
		panic(ErrRaceOccuredOnStart)
	}
	w.logger().WithField("consumer", w.consumerName()).Info("worker started")

	loopErr := w.loop(loopCtx)

	w.drain(scheduler)

	return loopErr
}

// abortStart releases what Start acquired before failing.
func (w *Worker) abortStart() {
	if w.executor != nil {
		if err := w.executor.Release(time.Second); err != nil {
			w.logger().WithError(err).Warn("worker pool did not release in time")
		}
	}
	if w.sampleBulk != nil {
		w.sampleBulk.close()
	}
	w.setState(StateStopped)
	w.status.Store(statusStopped)
}
