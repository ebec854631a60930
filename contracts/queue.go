package contracts

import (
	"context"
	"time"
)

// PullSource is the minimal contract the worker loop needs from a queue.
type PullSource interface {
	// Receive blocks at most pullDuration and returns up to batchSize messages.
	Receive(ctx context.Context, pullDuration time.Duration, batchSize int, group, consumerName string) ([]Message, error)
	Ack(ctx context.Context, group, messageId string) error
	// Reject leaves the message available for a later Receive. requeueDelay is a hint.
	Reject(ctx context.Context, group, messageId string, requeueDelay time.Duration) error
}

type MessageQueue interface {
	PullSource
	Add(ctx context.Context, message *Message) error
	Len() (int64, error)
}

// HeartBeater is implemented by sources that reassign messages whose consumer stays silent for too long.
type HeartBeater interface {
	HeartBeat(ctx context.Context, group, consumerName, messageID string) error
}

// Janitor is implemented by sources that need periodic housekeeping of their consumer group.
type Janitor interface {
	Cleanup(ctx context.Context, group string) error
}
