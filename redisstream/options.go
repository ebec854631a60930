package redisstream

import (
	"time"

	"github.com/Masterminds/semver/v3"
)

type Option func(*RedisStreamMessageQueue)

func WithPrefix(prefix string) Option {
	return func(r *RedisStreamMessageQueue) {
		r.prefix = prefix
	}
}

func WithQueue(queue string) Option {
	return func(r *RedisStreamMessageQueue) {
		r.queue = queue
	}
}

func WithReClaimDelay(reClaimDelay time.Duration) Option {
	return func(r *RedisStreamMessageQueue) {
		r.reClaimDelay = reClaimDelay
	}
}

func WithRedisVersion(version string) Option {
	return func(r *RedisStreamMessageQueue) {
		r.redisVersion = semver.MustParse(version)
	}
}

func WithDeleteOnAck(deleteOnAck bool) Option {
	return func(r *RedisStreamMessageQueue) {
		r.deleteOnAck = deleteOnAck
	}
}

func WithFetchMethod(fetchMethod FetchMethod) Option {
	return func(r *RedisStreamMessageQueue) {
		r.fetchMethod = fetchMethod
	}
}

// WithConsumerIdleThreshold sets how long a consumer may stay silent before Cleanup removes it from the group.
func WithConsumerIdleThreshold(d time.Duration) Option {
	return func(r *RedisStreamMessageQueue) {
		r.consumerIdleThreshold = d
	}
}
