package consumer

import (
	"fmt"
	"time"
)

type Kind int

const (
	KindSuccess Kind = iota
	KindRetryable
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryable:
		return "retryable"
	case KindFatal:
		return "fatal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one consumption attempt.
//
//   - Success: the message is processed and can be acknowledged.
//   - Retryable: the message was not processed, a later attempt may succeed. Delay is a hint only.
//   - Fatal: the message can never be processed and must leave the normal path.
type Outcome struct {
	kind  Kind
	delay time.Duration
	cause error
}

func Success() Outcome {
	return Outcome{kind: KindSuccess}
}

func Retryable(delay time.Duration, cause error) Outcome {
	if delay < 0 {
		delay = 0
	}
	return Outcome{kind: KindRetryable, delay: delay, cause: cause}
}

func Fatal(cause error) Outcome {
	return Outcome{kind: KindFatal, cause: cause}
}

func (o Outcome) Kind() Kind {
	return o.kind
}

// Delay is the suggested minimum backoff of a retryable outcome.
func (o Outcome) Delay() time.Duration {
	return o.delay
}

func (o Outcome) Cause() error {
	return o.cause
}

func (o Outcome) IsSuccess() bool {
	return o.kind == KindSuccess
}

func (o Outcome) IsRetryable() bool {
	return o.kind == KindRetryable
}

func (o Outcome) IsFatal() bool {
	return o.kind == KindFatal
}

func (o Outcome) String() string {
	switch o.kind {
	case KindRetryable:
		return fmt.Sprintf("retryable(delay=%s, cause=%v)", o.delay, o.cause)
	case KindFatal:
		return fmt.Sprintf("fatal(cause=%v)", o.cause)
	default:
		return o.kind.String()
	}
}
