package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soroosh-tanzadeh/elasticrunner/consumer"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
	"github.com/soroosh-tanzadeh/elasticrunner/scaling"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type WorkerTestSuite struct {
	suite.Suite
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (t *WorkerTestSuite) testConfig() Config {
	return Config{
		ConsumerGroup: "test_group",
		SourceID:      "test_source",
		BatchSize:     5,
		NumWorkers:    5,
		PollTimeout:   time.Millisecond * 50,
		BatchTimeout:  time.Second,
		DrainTimeout:  time.Second * 2,
	}
}

func (t *WorkerTestSuite) startWorker(w *Worker) chan error {
	done := make(chan error, 1)
	go func() {
		done <- w.Start(context.Background())
	}()
	return done
}

func (t *WorkerTestSuite) waitStopped(done chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second * 5):
		t.FailNow("worker did not stop")
	}
	return nil
}

func (t *WorkerTestSuite) waitFor(c <-chan struct{}, msg string) {
	select {
	case <-c:
	case <-time.After(time.Second * 2):
		t.FailNow(msg)
	}
}

func receiveAny(source *mock.Mock) *mock.Call {
	return source.On("Receive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// idleReceive answers every other pull with nothing, after a short block like a real source.
func idleReceive(source *mock.Mock, onPull func()) {
	receiveAny(source).Run(func(args mock.Arguments) {
		if onPull != nil {
			onPull()
		}
		time.Sleep(time.Millisecond * 5)
	}).Return([]contracts.Message{}, nil).Maybe()
}

func signal(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func (t *WorkerTestSuite) Test_ShouldAckOnce_WhenConsumerSucceeds() {
	source := NewMockPullSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	acked := make(chan struct{})
	calls := atomic.Int64{}

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Ack", mock.Anything, "test_group", "1-0").Run(func(args mock.Arguments) {
		close(acked)
	}).Return(nil).Once()

	w := NewWorker(t.testConfig(), nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		calls.Add(1)
		t.Assert().Equal("payload", msg.GetPayload())
		t.Assert().Equal("test_source", trace.Source)
		t.Assert().Equal("1-0", trace.MessageID)
		t.Assert().Equal(int64(1), trace.Attempt)
		t.Assert().NotEmpty(trace.TraceID)
		return consumer.Success()
	}))
	done := t.startWorker(w)

	t.waitFor(acked, "message was not acknowledged")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	t.Assert().Equal(int64(1), calls.Load())
	source.AssertNumberOfCalls(t.T(), "Ack", 1)
	source.AssertNotCalled(t.T(), "Reject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (t *WorkerTestSuite) Test_ShouldDeadLetterAndAck_WhenConsumerFailsFatally() {
	source := NewMockPullSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	expectedErr := errors.New("invalid payload")
	acked := make(chan struct{})
	deadLettered := atomic.Int64{}

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Ack", mock.Anything, "test_group", "1-0").Run(func(args mock.Arguments) {
		close(acked)
	}).Return(nil).Once()

	cfg := t.testConfig()
	cfg.DeadLetter = func(ctx context.Context, msg contracts.Message, cause error) error {
		deadLettered.Add(1)
		t.Assert().Equal("1-0", msg.GetId())
		t.Assert().ErrorIs(cause, expectedErr)
		return nil
	}
	w := NewWorker(cfg, nil, source, consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		return consumer.NewFatalError(expectedErr)
	}))
	done := t.startWorker(w)

	t.waitFor(acked, "message was not acknowledged")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	t.Assert().Equal(int64(1), deadLettered.Load())
	source.AssertNotCalled(t.T(), "Reject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (t *WorkerTestSuite) Test_ShouldRejectWithDelay_WhenConsumerAsksForRetry() {
	source := NewMockPullSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	rejected := make(chan struct{})

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Reject", mock.Anything, "test_group", "1-0", time.Second*2).Run(func(args mock.Arguments) {
		close(rejected)
	}).Return(nil).Once()

	w := NewWorker(t.testConfig(), nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		return consumer.Retryable(time.Second*2, errors.New("downstream unavailable"))
	}))
	done := t.startWorker(w)

	t.waitFor(rejected, "message was not rejected")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	source.AssertNotCalled(t.T(), "Ack", mock.Anything, mock.Anything, mock.Anything)
	stats, err := w.Stats(context.Background())
	t.Require().NoError(err)
	t.Assert().Equal(int64(1), stats.Processed)
	t.Assert().Equal(int64(1), stats.Failed)
}

func (t *WorkerTestSuite) Test_ShouldRejectImmediately_WhenConsumerPanics() {
	source := NewMockPullSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	rejected := make(chan struct{})

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Reject", mock.Anything, "test_group", "1-0", time.Duration(0)).Run(func(args mock.Arguments) {
		close(rejected)
	}).Return(nil).Once()

	w := NewWorker(t.testConfig(), nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		panic("I'm Panic Error")
	}))
	done := t.startWorker(w)

	t.waitFor(rejected, "message was not rejected")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
}

func (t *WorkerTestSuite) Test_ShouldResettleWithoutInvokingConsumer_WhenAckFailed() {
	source := NewMockPullSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	redelivered := contracts.NewMessage("1-0", "queue", "payload", 2)
	acked := make(chan struct{})
	calls := atomic.Int64{}
	handledErrors := atomic.Int64{}

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Once()
	receiveAny(&source.Mock).Return([]contracts.Message{redelivered}, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Ack", mock.Anything, "test_group", "1-0").Return(errors.New("connection reset")).Once()
	source.On("Ack", mock.Anything, "test_group", "1-0").Run(func(args mock.Arguments) {
		close(acked)
	}).Return(nil).Once()

	cfg := t.testConfig()
	cfg.ErrorHandler = func(err error) {
		handledErrors.Add(1)
	}
	w := NewWorker(cfg, nil, source, consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		calls.Add(1)
		return nil
	}))
	done := t.startWorker(w)

	t.waitFor(acked, "message was not acknowledged")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	t.Assert().Equal(int64(1), calls.Load())
	t.Assert().Equal(int64(1), handledErrors.Load())
	t.Assert().Equal(0, w.unsettled.Len())
}

func (t *WorkerTestSuite) Test_ShouldNotDeadLetterTwice_WhenAckFailedAfterDeadLetter() {
	source := NewMockPullSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	acked := make(chan struct{})
	deadLettered := atomic.Int64{}

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Twice()
	idleReceive(&source.Mock, nil)
	source.On("Ack", mock.Anything, "test_group", "1-0").Return(errors.New("connection reset")).Once()
	source.On("Ack", mock.Anything, "test_group", "1-0").Run(func(args mock.Arguments) {
		close(acked)
	}).Return(nil).Once()

	cfg := t.testConfig()
	cfg.DeadLetter = func(ctx context.Context, msg contracts.Message, cause error) error {
		deadLettered.Add(1)
		return nil
	}
	w := NewWorker(cfg, nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		return consumer.Fatal(errors.New("broken"))
	}))
	done := t.startWorker(w)

	t.waitFor(acked, "message was not acknowledged")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	t.Assert().Equal(int64(1), deadLettered.Load())
}

func (t *WorkerTestSuite) Test_ShouldSkipAndHeartBeatStragglers() {
	source := NewMockHeartBeatSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	cycled := make(chan struct{}, 1)
	acked := make(chan struct{})
	calls := atomic.Int64{}

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Twice()
	idleReceive(&source.Mock, func() { signal(cycled) })
	source.On("HeartBeat", mock.Anything, "test_group", mock.Anything, "1-0").Return(nil)
	source.On("Ack", mock.Anything, "test_group", "1-0").Run(func(args mock.Arguments) {
		close(acked)
	}).Return(nil).Once()

	cfg := t.testConfig()
	cfg.BatchTimeout = time.Millisecond * 20
	w := NewWorker(cfg, nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		calls.Add(1)
		signal(started)
		<-release
		return consumer.Success()
	}))
	done := t.startWorker(w)

	t.waitFor(started, "consumer was not invoked")
	t.waitFor(cycled, "loop did not cycle")
	t.Assert().Equal(int64(1), calls.Load())
	t.Assert().Equal(1, w.InFlight())

	close(release)
	t.waitFor(acked, "message was not acknowledged")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	t.Assert().Equal(int64(1), calls.Load())
	t.Assert().Equal(0, w.InFlight())
}

func (t *WorkerTestSuite) Test_ShouldNotPull_WhenPoolIsFull() {
	source := NewMockPullSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	release := make(chan struct{})
	acked := make(chan struct{})

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Ack", mock.Anything, "test_group", "1-0").Run(func(args mock.Arguments) {
		close(acked)
	}).Return(nil).Once()

	cfg := t.testConfig()
	cfg.NumWorkers = 1
	cfg.BatchTimeout = time.Millisecond * 10
	w := NewWorker(cfg, nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		<-release
		return consumer.Success()
	}))
	done := t.startWorker(w)

	time.Sleep(time.Millisecond * 150)
	source.AssertNumberOfCalls(t.T(), "Receive", 1)
	t.Assert().Equal(1, w.InFlight())

	close(release)
	t.waitFor(acked, "message was not acknowledged")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
}

// sequentialReceive answers every pull with a new message until limit, then with nothing.
func sequentialReceive(source *mock.Mock, limit int64, pulls *atomic.Int64) {
	receiveAny(source).Return(func(ctx context.Context, pullDuration time.Duration, batchSize int, group, consumerName string) ([]contracts.Message, error) {
		n := pulls.Add(1)
		if n > limit {
			time.Sleep(time.Millisecond * 5)
			return []contracts.Message{}, nil
		}
		return []contracts.Message{contracts.NewMessage(fmt.Sprintf("%d-0", n), "queue", "payload", 1)}, nil
	}).Maybe()
}

func (t *WorkerTestSuite) Test_ShouldNotReject_WhenPulledRightAfterCompletion() {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(4))

	source := NewMockPullSource(t.T())
	pulls := atomic.Int64{}
	acks := atomic.Int64{}
	calls := atomic.Int64{}
	sequentialReceive(&source.Mock, 200, &pulls)
	source.On("Ack", mock.Anything, "test_group", mock.Anything).Run(func(args mock.Arguments) {
		acks.Add(1)
	}).Return(nil).Maybe()

	cfg := t.testConfig()
	cfg.NumWorkers = 1
	cfg.BatchSize = 1
	w := NewWorker(cfg, nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		calls.Add(1)
		return consumer.Success()
	}))
	done := t.startWorker(w)

	t.Assert().Eventually(func() bool {
		return acks.Load() == 200
	}, time.Second*5, time.Millisecond*10)
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	t.Assert().Equal(int64(200), calls.Load())
	source.AssertNotCalled(t.T(), "Reject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (t *WorkerTestSuite) Test_ShouldPullAgain_AsSoonAsSlotIsFree() {
	source := NewMockPullSource(t.T())
	pulls := atomic.Int64{}
	sequentialReceive(&source.Mock, 1000, &pulls)
	source.On("Ack", mock.Anything, "test_group", mock.Anything).Return(nil).Maybe()

	cfg := t.testConfig()
	cfg.NumWorkers = 1
	cfg.BatchSize = 1
	cfg.BatchTimeout = time.Millisecond
	cfg.PollTimeout = time.Second
	w := NewWorker(cfg, nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		time.Sleep(time.Millisecond * 20)
		return consumer.Success()
	}))
	done := t.startWorker(w)

	// Each pull waits for the previous task only, never for the poll timeout
	time.Sleep(time.Millisecond * 500)
	t.Assert().GreaterOrEqual(pulls.Load(), int64(8))
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	source.AssertNotCalled(t.T(), "Reject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (t *WorkerTestSuite) Test_ShouldDrainInFlightMessages_OnStop() {
	source := NewMockPullSource(t.T())
	message := contracts.NewMessage("1-0", "queue", "payload", 1)
	started := make(chan struct{}, 1)

	receiveAny(&source.Mock).Return([]contracts.Message{message}, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Ack", mock.Anything, "test_group", "1-0").Return(nil).Once()

	cfg := t.testConfig()
	cfg.BatchTimeout = time.Millisecond * 10
	w := NewWorker(cfg, nil, source, consumer.ConsumerFunc(func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) consumer.Outcome {
		signal(started)
		time.Sleep(time.Millisecond * 200)
		return consumer.Success()
	}))
	done := t.startWorker(w)

	t.waitFor(started, "consumer was not invoked")
	w.Stop()

	t.Assert().NoError(t.waitStopped(done))
	source.AssertNumberOfCalls(t.T(), "Ack", 1)
	t.Assert().False(w.IsRunning())
	t.Assert().Equal(StateStopped, w.State())
}

func (t *WorkerTestSuite) Test_ShouldDrainAndReturnError_WhenSourceIsUnrecoverable() {
	source := NewMockPullSource(t.T())
	handled := make(chan error, 1)

	receiveAny(&source.Mock).Return(nil, fmt.Errorf("%w: stream deleted", contracts.ErrUnrecoverable)).Once()

	cfg := t.testConfig()
	cfg.ErrorHandler = func(err error) {
		handled <- err
	}
	w := NewWorker(cfg, nil, source, consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		return nil
	}))
	done := t.startWorker(w)

	err := t.waitStopped(done)
	t.Assert().ErrorIs(err, contracts.ErrUnrecoverable)
	t.Assert().ErrorIs(<-handled, contracts.ErrUnrecoverable)
	t.Assert().False(w.IsRunning())
	t.Assert().Equal(StateStopped, w.State())

	t.Assert().ErrorIs(w.Start(context.Background()), ErrWorkerAlreadyStarted)
}

func (t *WorkerTestSuite) Test_ShouldKeepPolling_WhenSourceFailsTemporarily() {
	source := NewMockPullSource(t.T())
	handledErrors := atomic.Int64{}
	cycled := make(chan struct{}, 1)

	receiveAny(&source.Mock).Return(nil, errors.New("connection refused")).Twice()
	idleReceive(&source.Mock, func() { signal(cycled) })

	cfg := t.testConfig()
	cfg.ErrorHandler = func(err error) {
		handledErrors.Add(1)
	}
	w := NewWorker(cfg, nil, source, consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		return nil
	}))
	done := t.startWorker(w)

	t.waitFor(cycled, "loop did not recover")
	t.Assert().True(w.IsRunning())
	t.Assert().Equal(int64(2), handledErrors.Load())
	// Failed pulls are not samples
	t.Assert().Equal(int64(0), w.Controller().BusyCycles())

	w.Stop()
	t.Assert().NoError(t.waitStopped(done))
}

func (t *WorkerTestSuite) Test_ShouldStopItself_WhenIdleAndShutdownOnIdle() {
	source := NewMockPullSource(t.T())
	idleReceive(&source.Mock, nil)

	cfg := t.testConfig()
	cfg.ShutdownOnIdle = true
	cfg.Scaling = scaling.Config{BusyLevel: 5, BusyLimit: 5, IdleLimit: 2, CoolDown: 0}
	w := NewWorker(cfg, nil, source, consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		return nil
	}))
	done := t.startWorker(w)

	t.Assert().NoError(t.waitStopped(done))
	t.Assert().False(w.IsRunning())
	t.Assert().Equal(int64(0), w.Controller().IdleCycles())
	t.Assert().False(w.Controller().Snapshot().LastEventTime.IsZero())
}

func (t *WorkerTestSuite) Test_ShouldKeepRunning_WhenIdleWithoutShutdownOnIdle() {
	source := NewMockPullSource(t.T())
	idleReceive(&source.Mock, nil)

	cfg := t.testConfig()
	cfg.Scaling = scaling.Config{BusyLevel: 5, BusyLimit: 5, IdleLimit: 2, CoolDown: 0}
	w := NewWorker(cfg, nil, source, consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		return nil
	}))
	done := t.startWorker(w)

	t.Assert().Eventually(func() bool {
		return w.Controller().IdleCycles() >= 3
	}, time.Second, time.Millisecond*10)
	t.Assert().True(w.IsRunning())
	t.Assert().True(w.Controller().Snapshot().LastEventTime.IsZero())

	w.Stop()
	t.Assert().NoError(t.waitStopped(done))
}

func (t *WorkerTestSuite) Test_ShouldNotifyCapacityManager_WhenBusy() {
	source := NewMockPullSource(t.T())
	seq := atomic.Int64{}
	notified := make(chan string, 10)

	receiveAny(&source.Mock).Return(func(ctx context.Context, d time.Duration, batchSize int, group, consumerName string) ([]contracts.Message, error) {
		id := strconv.FormatInt(seq.Add(1), 10) + "-0"
		return []contracts.Message{contracts.NewMessage(id, "queue", "payload", 1)}, nil
	}, nil)
	source.On("Ack", mock.Anything, "test_group", mock.Anything).Return(nil)

	cfg := t.testConfig()
	cfg.Scaling = scaling.Config{BusyLevel: 1, BusyLimit: 2, IdleLimit: 3, CoolDown: time.Minute}
	cfg.CapacityManager = CapacityManagerFunc(func(ctx context.Context, sourceID string) error {
		notified <- sourceID
		return nil
	})
	w := NewWorker(cfg, nil, source, consumer.Shared(consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		return nil
	})))
	done := t.startWorker(w)

	select {
	case sourceID := <-notified:
		t.Assert().Equal("test_source", sourceID)
	case <-time.After(time.Second * 2):
		t.FailNow("capacity manager was not notified")
	}

	// Cooldown holds back further notifications
	time.Sleep(time.Millisecond * 100)
	w.Stop()
	t.Assert().NoError(t.waitStopped(done))
	t.Assert().Len(notified, 0)
}

func (t *WorkerTestSuite) Test_ShouldSerializeConsumer_WhenNotThreadSafe() {
	t.Assert().Equal(1, t.maxConcurrency(func(c consumer.Consumer) consumer.Consumer { return c }))
}

func (t *WorkerTestSuite) Test_ShouldRunSharedConsumerConcurrently() {
	t.Assert().Greater(t.maxConcurrency(consumer.Shared), 1)
}

func (t *WorkerTestSuite) maxConcurrency(wrap func(consumer.Consumer) consumer.Consumer) int {
	source := NewMockPullSource(t.T())
	messages := make([]contracts.Message, 5)
	for i := range messages {
		messages[i] = contracts.NewMessage(strconv.Itoa(i)+"-0", "queue", "payload", 1)
	}
	var wg sync.WaitGroup
	wg.Add(len(messages))

	receiveAny(&source.Mock).Return(messages, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Ack", mock.Anything, "test_group", mock.Anything).Run(func(args mock.Arguments) {
		wg.Done()
	}).Return(nil).Times(len(messages))

	var running, peak atomic.Int64
	w := NewWorker(t.testConfig(), nil, source, wrap(consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		current := running.Add(1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(time.Millisecond * 50)
		running.Add(-1)
		return nil
	})))
	done := t.startWorker(w)

	wg.Wait()
	w.Stop()
	t.Assert().NoError(t.waitStopped(done))
	return int(peak.Load())
}

func (t *WorkerTestSuite) Test_ShouldUseFactoryConsumers() {
	source := NewMockPullSource(t.T())
	messages := []contracts.Message{
		contracts.NewMessage("1-0", "queue", "payload", 1),
		contracts.NewMessage("2-0", "queue", "payload", 1),
	}
	var wg sync.WaitGroup
	wg.Add(len(messages))
	created := atomic.Int64{}

	receiveAny(&source.Mock).Return(messages, nil).Once()
	idleReceive(&source.Mock, nil)
	source.On("Ack", mock.Anything, "test_group", mock.Anything).Run(func(args mock.Arguments) {
		wg.Done()
	}).Return(nil).Twice()

	cfg := t.testConfig()
	cfg.ConsumerFactory = func() consumer.Consumer {
		created.Add(1)
		return consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
			time.Sleep(time.Millisecond * 20)
			return nil
		})
	}
	w := NewWorker(cfg, nil, source, nil)
	done := t.startWorker(w)

	wg.Wait()
	w.Stop()
	t.Assert().NoError(t.waitStopped(done))
	t.Assert().GreaterOrEqual(created.Load(), int64(1))
}

func (t *WorkerTestSuite) Test_Start_ShouldValidateCollaborators() {
	source := NewMockPullSource(t.T())

	t.Assert().ErrorIs(NewWorker(t.testConfig(), nil, nil, consumer.HandlerFunc(nil)).Start(context.Background()), ErrNoSource)
	t.Assert().ErrorIs(NewWorker(t.testConfig(), nil, source, nil).Start(context.Background()), ErrNoConsumer)
}

func (t *WorkerTestSuite) Test_ShouldStop_WhenContextIsCancelled() {
	source := NewMockPullSource(t.T())
	idleReceive(&source.Mock, nil)

	w := NewWorker(t.testConfig(), nil, source, consumer.HandlerFunc(func(ctx context.Context, msg contracts.Message) error {
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Start(ctx)
	}()

	t.Assert().Eventually(w.IsRunning, time.Second, time.Millisecond)
	cancel()

	t.Assert().NoError(t.waitStopped(done))
	t.Assert().Equal(StateStopped, w.State())
}

func TestStateString(t *testing.T) {
	suite.Run(t, new(stateStringSuite))
}

type stateStringSuite struct {
	suite.Suite
}

func (s *stateStringSuite) TestString() {
	s.Equal("idle", StateIdle.String())
	s.Equal("polling", StatePolling.String())
	s.Equal("batch_running", StateBatchRunning.String())
	s.Equal("scoring", StateScoring.String())
	s.Equal("draining", StateDraining.String())
	s.Equal("stopped", StateStopped.String())
	s.Equal("unknown", State(42).String())
}
