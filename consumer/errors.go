package consumer

import (
	"errors"
	"fmt"
	"time"
)

const (
	ErrConsumerPanic       = ConsumerError("ErrConsumerPanic")
	ErrMaxReceivesExceeded = ConsumerError("ErrMaxReceivesExceeded")
)

type ConsumerError string

func (e ConsumerError) Error() string {
	return string(e)
}

// RetryableError lets error-returning handlers ask for a retry with a backoff hint.
type RetryableError struct {
	err   error
	delay time.Duration
}

func NewRetryableError(err error, delay time.Duration) RetryableError {
	return RetryableError{err: err, delay: delay}
}

func (e RetryableError) Error() string {
	if e.err == nil {
		return "retryable"
	}
	return "retryable: " + e.err.Error()
}

func (e RetryableError) Unwrap() error {
	return e.err
}

func (e RetryableError) GetDelay() time.Duration {
	return e.delay
}

// FatalError marks a failure that retrying cannot fix.
type FatalError struct {
	err error
}

func NewFatalError(err error) FatalError {
	return FatalError{err: err}
}

func (e FatalError) Error() string {
	if e.err == nil {
		return "fatal"
	}
	return "fatal: " + e.err.Error()
}

func (e FatalError) Unwrap() error {
	return e.err
}

// FromError classifies err. Unclassified errors are retryable without delay.
func FromError(err error) Outcome {
	if err == nil {
		return Success()
	}

	var fatal FatalError
	if errors.As(err, &fatal) {
		return Fatal(err)
	}

	var retryable RetryableError
	if errors.As(err, &retryable) {
		return Retryable(retryable.GetDelay(), err)
	}

	return Retryable(0, err)
}

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", ErrConsumerPanic, err)
	}
	return fmt.Errorf("%w: %v", ErrConsumerPanic, r)
}
