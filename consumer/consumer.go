package consumer

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
)

// Consumer processes one message per call. Unless it implements ThreadSafe and reports true,
// callers must not invoke the same instance concurrently.
type Consumer interface {
	Consume(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) Outcome
}

type ConsumerFunc func(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) Outcome

func (f ConsumerFunc) Consume(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) Outcome {
	return f(ctx, msg, trace)
}

type ThreadSafe interface {
	ThreadSafe() bool
}

func IsThreadSafe(c Consumer) bool {
	ts, ok := c.(ThreadSafe)
	return ok && ts.ThreadSafe()
}

type sharedConsumer struct {
	Consumer
}

func (sharedConsumer) ThreadSafe() bool {
	return true
}

// Shared declares c safe for concurrent use.
func Shared(c Consumer) Consumer {
	return sharedConsumer{Consumer: c}
}

// HandlerFunc adapts an error-returning handler, classifying errors with FromError.
func HandlerFunc(fn func(ctx context.Context, msg contracts.Message) error) Consumer {
	return ConsumerFunc(func(ctx context.Context, msg contracts.Message, _ contracts.TraceContext) Outcome {
		return FromError(fn(ctx, msg))
	})
}

// Invoke calls c and turns a panic into a retryable outcome.
func Invoke(ctx context.Context, c Consumer, msg contracts.Message, trace contracts.TraceContext) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := panicError(r)
			log.WithFields(trace.Fields()).WithField("cause", r).Error("Consumer panic")
			outcome = Retryable(0, err)
		}
	}()

	return c.Consume(ctx, msg, trace)
}

type maxReceives struct {
	Consumer
	max int64
}

func (m maxReceives) Consume(ctx context.Context, msg contracts.Message, trace contracts.TraceContext) Outcome {
	if msg.GetReceiveCount() > m.max {
		return Fatal(fmt.Errorf("%w: message %s received %d times", ErrMaxReceivesExceeded, msg.GetId(), msg.GetReceiveCount()))
	}
	return m.Consumer.Consume(ctx, msg, trace)
}

func (m maxReceives) ThreadSafe() bool {
	return IsThreadSafe(m.Consumer)
}

// WithMaxReceives gives up on messages delivered more than max times.
func WithMaxReceives(c Consumer, max int64) Consumer {
	if max <= 0 {
		max = 1
	}
	return maxReceives{Consumer: c, max: max}
}
