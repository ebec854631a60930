package runner

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/soroosh-tanzadeh/elasticrunner/consumer"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
)

const settleTimeout = 10 * time.Second

type unsettledOutcome struct {
	outcome consumer.Outcome
	// deadLettered is set once the dead letter handler accepted the message, so only the ack is retried.
	deadLettered bool
}

func (w *Worker) taskPanicHandler(r interface{}) {
	err, ok := r.(error)
	if ok {
		w.logger().WithError(err).Error("Worker panic")
	} else {
		w.logger().WithField("cause", r).Error("Worker panic")
	}
}

func (w *Worker) newTrace(message contracts.Message) contracts.TraceContext {
	return contracts.TraceContext{
		TraceID:   uuid.NewString(),
		Source:    w.cfg.SourceID,
		Consumer:  w.consumerName(),
		MessageID: message.GetId(),
		Attempt:   message.GetReceiveCount(),
	}
}

// acquireConsumer returns the consumer for one message and a function to give it back.
func (w *Worker) acquireConsumer() (consumer.Consumer, func()) {
	if w.consumerPool != nil {
		c := w.consumerPool.Get().(consumer.Consumer)
		return c, func() { w.consumerPool.Put(c) }
	}
	if consumer.IsThreadSafe(w.consumer) {
		return w.consumer, func() {}
	}
	w.consumerLock.Lock()
	return w.consumer, w.consumerLock.Unlock
}

func (w *Worker) process(message contracts.Message, trace contracts.TraceContext) {
	defer w.inFlight.Delete(message.GetId())

	c, release := w.acquireConsumer()
	outcome := consumer.Invoke(w.taskCtx, c, message, trace)
	release()

	w.processed.Add(1)
	if !outcome.IsSuccess() {
		w.fails.Add(1)
	}

	w.settle(message, unsettledOutcome{outcome: outcome}, trace)
}

// settle reports outcome to the source. It runs on a context detached from the loop,
// so stopping the worker never leaves a finished message half settled.
func (w *Worker) settle(message contracts.Message, pending unsettledOutcome, trace contracts.TraceContext) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	id := message.GetId()
	entry := w.logger().WithFields(log.Fields(trace.Fields()))
	outcome := pending.outcome

	switch outcome.Kind() {
	case consumer.KindSuccess:
		if err := w.source.Ack(ctx, w.cfg.ConsumerGroup, id); err != nil {
			w.unsettled.Set(id, pending)
			w.captureError(err)
			return
		}

	case consumer.KindRetryable:
		entry.WithError(outcome.Cause()).WithField("delay", outcome.Delay()).Warn("message will be retried")
		w.reject(message, outcome.Delay())

	case consumer.KindFatal:
		if !pending.deadLettered {
			entry.WithError(outcome.Cause()).Error("message failed permanently")
			if err := w.deadLetter(ctx, message, outcome.Cause()); err != nil {
				w.unsettled.Set(id, pending)
				w.captureError(err)
				return
			}
			pending.deadLettered = true
		}
		if err := w.source.Ack(ctx, w.cfg.ConsumerGroup, id); err != nil {
			w.unsettled.Set(id, pending)
			w.captureError(err)
			return
		}
	}

	w.unsettled.Delete(id)
}

func (w *Worker) reject(message contracts.Message, delay time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := w.source.Reject(ctx, w.cfg.ConsumerGroup, message.GetId(), delay); err != nil {
		w.captureError(err)
	}
}

func (w *Worker) deadLetter(ctx context.Context, message contracts.Message, cause error) error {
	if w.cfg.DeadLetter == nil {
		return nil
	}
	return w.cfg.DeadLetter(ctx, message, cause)
}
