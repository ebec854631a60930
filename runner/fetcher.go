package runner

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
	"github.com/soroosh-tanzadeh/elasticrunner/scaling"
)

const pollRetryInitialInterval = 100 * time.Millisecond

func (w *Worker) pollBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pollRetryInitialInterval
	b.MaxInterval = w.cfg.PollTimeout
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// loop runs cycles until the worker has to drain. Only an unrecoverable source error is returned.
func (w *Worker) loop(ctx context.Context) error {
	retry := w.pollBackOff()

	for {
		if ctx.Err() != nil {
			return nil
		}
		w.setState(StateIdle)
		w.reapLingering()
		w.heartBeat(ctx)

		w.setState(StatePolling)
		free := w.executor.Free()
		if free == 0 {
			// Stragglers hold every slot: the backlog counts as load
			if w.score(ctx, int64(w.executor.Running())) == scaling.ScaleDown {
				return nil
			}
			w.waitForCapacity(ctx)
			continue
		}

		messages, err := w.source.Receive(ctx, w.cfg.PollTimeout, min(w.cfg.BatchSize, free), w.cfg.ConsumerGroup, w.consumerName())
		if err != nil && !errors.Is(err, contracts.ErrNoNewMessage) {
			if errors.Is(err, contracts.ErrUnrecoverable) {
				w.captureError(err)
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			w.captureError(err)
			if !w.sleep(ctx, retry.NextBackOff()) {
				return nil
			}
			continue
		}
		retry.Reset()

		if len(messages) > 0 {
			w.setState(StateBatchRunning)
			w.runBatch(ctx, messages)
		}

		if w.score(ctx, int64(len(messages))) == scaling.ScaleDown {
			return nil
		}
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// waitForCapacity blocks until a task completes, the poll timeout passes or ctx is done.
func (w *Worker) waitForCapacity(ctx context.Context) {
	timer := time.NewTimer(w.cfg.PollTimeout)
	defer timer.Stop()
	select {
	case <-w.released:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// notifyReleased is called by the executor once a completed task's slot is free.
func (w *Worker) notifyReleased() {
	select {
	case w.released <- struct{}{}:
	default:
	}
}

func (w *Worker) reapLingering() {
	alive := w.lingering[:0]
	for _, b := range w.lingering {
		if b.Len() > 0 {
			alive = append(alive, b)
		}
	}
	for i := len(alive); i < len(w.lingering); i++ {
		w.lingering[i] = nil
	}
	w.lingering = alive
}

// heartBeat keeps the messages of stragglers assigned to this consumer.
func (w *Worker) heartBeat(ctx context.Context) {
	heartBeater, ok := w.source.(contracts.HeartBeater)
	if !ok || w.inFlight.Len() == 0 {
		return
	}
	for id := range w.inFlight.Snapshot() {
		if err := heartBeater.HeartBeat(ctx, w.cfg.ConsumerGroup, w.consumerName(), id); err != nil {
			w.captureError(err)
		}
	}
}

func (w *Worker) score(ctx context.Context, sample int64) scaling.Decision {
	w.setState(StateScoring)
	w.recordSample(sample)

	decision := w.controller.Observe(sample)
	switch decision {
	case scaling.ScaleUp:
		w.logger().WithField("decision", decision.String()).WithField("sample", sample).Info("scaling decision")
		w.notifyScaleUp(ctx)
	case scaling.ScaleDown:
		w.logger().WithField("decision", decision.String()).WithField("sample", sample).Info("scaling decision, draining")
	}
	return decision
}

// runBatch processes messages on the pool and waits at most BatchTimeout for them.
// Stragglers keep running and their batch is kept until they finish.
func (w *Worker) runBatch(ctx context.Context, messages []contracts.Message) {
	b := w.executor.NewBatch()

	for _, message := range messages {
		message := message
		id := message.GetId()

		if !w.inFlight.SetIfAbsent(id, message) {
			w.logger().WithField("message_id", id).Debug("message is already in flight, skipping")
			continue
		}

		if pending, ok := w.unsettled.Get(id); ok {
			w.settle(message, pending, w.newTrace(message))
			w.inFlight.Delete(id)
			continue
		}

		trace := w.newTrace(message)
		if _, err := b.Submit(func() {
			w.process(message, trace)
		}); err != nil {
			w.inFlight.Delete(id)
			w.captureError(err)
			w.reject(message, 0)
		}
	}
	b.Close()

	stragglers := b.WaitTimeout(w.cfg.BatchTimeout)
	if len(stragglers) > 0 {
		w.logger().WithField("stragglers", len(stragglers)).Warn("batch timed out, stragglers stay in flight")
		w.lingering = append(w.lingering, b)
	}
}

func (w *Worker) drain(scheduler maintenance) {
	w.setState(StateDraining)
	w.running.Store(false)

	deadline := time.Now().Add(w.cfg.DrainTimeout)
	var abandoned int
	for _, b := range w.lingering {
		abandoned += len(b.WaitTimeout(time.Until(deadline)))
	}
	w.lingering = nil
	if abandoned > 0 {
		w.logger().WithField("abandoned", abandoned).Warn("drain timed out, abandoning in-flight messages")
	}
	w.cancelTasks()

	releaseTimeout := time.Until(deadline)
	if releaseTimeout < time.Second {
		releaseTimeout = time.Second
	}
	if err := w.executor.Release(releaseTimeout); err != nil {
		w.logger().WithError(err).Warn("worker pool did not release in time")
	}

	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			w.captureError(err)
		}
	}
	if w.replicas != nil {
		w.replicas.remove(context.Background())
	}

	w.wg.Wait()
	if w.sampleBulk != nil {
		w.sampleBulk.close()
	}

	w.setState(StateStopped)
	w.status.Store(statusStopped)
	w.logger().Info("worker stopped")
}
