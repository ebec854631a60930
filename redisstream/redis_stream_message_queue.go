package redisstream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/redis/go-redis/v9"

	log "github.com/sirupsen/logrus"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
)

const payloadKey = "payload"

type FetchMethod string

const (
	FetchNewest = FetchMethod("NEWEST")
	FetchOldest = FetchMethod("OLDEST")
)

type PendingMesssage struct {
	ID         string
	Idle       time.Duration
	RetryCount int64
}

// RedisStreamMessageQueue is a pull source backed by a Redis stream and a consumer group.
// Received messages stay in the group's pending entries list until acknowledged; entries
// idle for longer than reClaimDelay are claimed again by the next Receive, which is how
// rejected and abandoned messages come back. Long running consumers must call HeartBeat
// to keep their messages from being reclaimed.
type RedisStreamMessageQueue struct {
	client *redis.Client

	prefix string
	queue  string
	stream string

	reClaimDelay time.Duration

	deleteOnAck bool

	redisVersion *semver.Version

	lastPendingCheckTime time.Time
	checkPendingLock     *sync.Mutex

	fetchMethod FetchMethod

	consumerIdleThreshold time.Duration
}

// NewRedisStreamMessageQueueWithOptions creates a new RedisStreamMessageQueue with the provided Redis client and optional configuration.
// The function initializes the queue with the following default values:
//   - Stream: "default:queue" (prefix: "default", queue: "queue")
//   - DeleteOnAck: true (messages are automatically deleted after acknowledgment)
//   - ReClaimDelay: 5 minutes (delay before reclaiming unacknowledged messages)
//   - FetchMethod: FetchOldest (messages are fetched in the order they were added)
//   - ConsumerIdleThreshold: 10 minutes
//
// Example:
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	queue := NewRedisStreamMessageQueueWithOptions(
//	    redisClient,
//	    WithPrefix("myapp"),
//	    WithQueue("myqueue"),
//	    WithReClaimDelay(10*time.Minute),
//	)
func NewRedisStreamMessageQueueWithOptions(redisClient *redis.Client, options ...Option) *RedisStreamMessageQueue {
	stream := &RedisStreamMessageQueue{
		client:                redisClient,
		prefix:                "default",
		queue:                 "queue",
		deleteOnAck:           true,
		reClaimDelay:          5 * time.Minute,
		checkPendingLock:      &sync.Mutex{},
		fetchMethod:           FetchOldest,
		consumerIdleThreshold: 10 * time.Minute,
	}

	for _, option := range options {
		option(stream)
	}
	stream.stream = stream.prefix + ":" + stream.queue

	if stream.redisVersion == nil {
		stream.redisVersion = detectRedisVersion(redisClient)
	}

	return stream
}

func NewRedisStreamMessageQueue(redisClient *redis.Client, prefix, queue string, reClaimDelay time.Duration, deleteOnAck bool) *RedisStreamMessageQueue {
	return NewRedisStreamMessageQueueWithOptions(redisClient,
		WithPrefix(prefix),
		WithQueue(queue),
		WithReClaimDelay(reClaimDelay),
		WithDeleteOnAck(deleteOnAck),
	)
}

func detectRedisVersion(redisClient *redis.Client) *semver.Version {
	redisInfo, _ := redisClient.InfoMap(context.Background()).Result()
	if server, ok := redisInfo["Server"]; ok {
		if redisVersion, ok := server["redis_version"]; ok {
			version, _ := semver.NewVersion(redisVersion)
			return version
		}
	}
	return nil
}

func (r *RedisStreamMessageQueue) Stream() string {
	return r.stream
}

func (r *RedisStreamMessageQueue) retryAfterKey() string {
	return r.stream + ":retry_after"
}

func (r *RedisStreamMessageQueue) deadLetterStream() string {
	return r.stream + ":dead"
}

func classifyError(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %w", contracts.ErrUnrecoverable, err)
	}
	return err
}

// GetMetrics retrieves queue-related metrics, including queue size and consumer group state.
func (r *RedisStreamMessageQueue) GetMetrics(ctx context.Context) (map[string]interface{}, error) {
	var metrics = make(map[string]interface{})

	info, err := r.client.XInfoStreamFull(ctx, r.stream, 1).Result()
	if err != nil {
		return nil, err
	}

	metrics["queue_size"] = info.Length

	currentTime := time.Now()
	for _, group := range info.Groups {
		groupInfo := map[string]interface{}{
			"pending_entries_count": group.PelCount,
			"lag":                   group.Lag,
		}
		consumersInfo := make([]map[string]interface{}, 0, len(group.Consumers))
		for _, consumer := range group.Consumers {
			consumersInfo = append(consumersInfo, map[string]interface{}{
				"name":                        consumer.Name,
				"time_since_last_interaction": currentTime.Sub(consumer.SeenTime),
				"pending_count":               consumer.PelCount,
			})
		}
		groupInfo["consumers"] = consumersInfo

		metrics["group_"+group.Name] = groupInfo
	}

	deadLetters, err := r.DeadLetterLen(ctx)
	if err != nil {
		return nil, err
	}
	metrics["dead_letter_size"] = deadLetters

	return metrics, nil
}

// Add appends the message to the stream and sets its ID.
func (r *RedisStreamMessageQueue) Add(ctx context.Context, message *contracts.Message) error {
	msgId, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			payloadKey: message.GetPayload(),
		},
	}).Result()
	if err != nil {
		return classifyError(err)
	}

	message.ID = msgId
	message.Queue = r.queue

	return nil
}

func (r *RedisStreamMessageQueue) fetchMessage(ctx context.Context, duration time.Duration, batchSize int, group, consumerName string) ([]contracts.Message, error) {
	id := ">"
	if r.fetchMethod == FetchNewest {
		id = "^"
	}

	// go-redis sends BLOCK 0 (wait forever) for a zero duration
	block := duration
	if block <= 0 {
		block = -1
	}

	readResult, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumerName,
		Count:    int64(batchSize),
		Streams:  []string{r.stream, id},
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, contracts.ErrNoNewMessage
		}

		// Create Group if not exists
		if strings.Contains(err.Error(), "NOGROUP") {
			if err := r.upsertConsumerGroup(ctx, group); err != nil {
				return nil, err
			}
			return r.fetchMessage(ctx, duration, batchSize, group, consumerName)
		}

		return nil, classifyError(err)
	}

	if len(readResult) == 0 {
		return nil, contracts.ErrNoNewMessage
	}

	messages := make([]contracts.Message, 0, len(readResult[0].Messages))
	for _, msg := range readResult[0].Messages {
		payload, ok := msg.Values[payloadKey].(string)
		if !ok {
			continue
		}
		// First delivery
		messages = append(messages, contracts.NewMessage(msg.ID, r.queue, payload, 1))
	}

	return messages, nil
}

// getPendingMessages returns up to batchSize pending messages that are idle for at least
// reClaimDelay and not backed off by Reject. It pages through the pending entries list so
// that backed-off entries at its head do not hide eligible ones behind them.
func (r *RedisStreamMessageQueue) getPendingMessages(ctx context.Context, batchSize int, group string) ([]PendingMesssage, error) {
	commandConfig := &redis.XPendingExtArgs{
		Group:  group,
		Count:  int64(batchSize),
		Stream: r.stream,
		Start:  "-",
		End:    "+",
	}
	if r.redisVersion != nil {
		compare := r.redisVersion.Compare(semver.MustParse("6.2"))
		if compare == 1 || compare == 0 {
			commandConfig.Idle = r.reClaimDelay
		}
	}

	messages := make([]PendingMesssage, 0, batchSize)
	for len(messages) < batchSize {
		readResult, err := r.client.XPendingExt(ctx, commandConfig).Result()
		if err != nil {
			// Create Group if not exists
			if strings.Contains(err.Error(), "NOGROUP") {
				if err := r.upsertConsumerGroup(ctx, group); err != nil {
					return nil, err
				}
				// Re-call after group creation
				return r.getPendingMessages(ctx, batchSize, group)
			}

			if errors.Is(err, redis.Nil) {
				break
			}

			return nil, classifyError(err)
		}
		if len(readResult) == 0 {
			break
		}

		candidates := make([]PendingMesssage, 0, len(readResult))
		for _, msg := range readResult {
			if msg.Idle < r.reClaimDelay {
				continue
			}

			candidates = append(candidates, PendingMesssage{
				ID:         msg.ID,
				Idle:       msg.Idle,
				RetryCount: msg.RetryCount,
			})
		}

		eligible, err := r.withoutBackedOff(ctx, candidates)
		if err != nil {
			return nil, err
		}
		messages = append(messages, eligible...)

		if len(readResult) < batchSize {
			break
		}
		next, err := nextStreamID(readResult[len(readResult)-1].ID)
		if err != nil {
			return nil, err
		}
		commandConfig.Start = next
	}

	if len(messages) > batchSize {
		messages = messages[:batchSize]
	}
	if len(messages) == 0 {
		return nil, contracts.ErrNoNewMessage
	}
	return messages, nil
}

// nextStreamID returns the smallest stream ID greater than id.
func nextStreamID(id string) (string, error) {
	ms, seq, found := strings.Cut(id, "-")
	if !found {
		return "", fmt.Errorf("invalid stream id %q", id)
	}
	sequence, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid stream id %q: %w", id, err)
	}
	if sequence == math.MaxUint64 {
		timestamp, err := strconv.ParseUint(ms, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid stream id %q: %w", id, err)
		}
		return strconv.FormatUint(timestamp+1, 10) + "-0", nil
	}
	return ms + "-" + strconv.FormatUint(sequence+1, 10), nil
}

// withoutBackedOff drops pending messages whose retry-after time, set by Reject, is still in the future.
func (r *RedisStreamMessageQueue) withoutBackedOff(ctx context.Context, candidates []PendingMesssage) ([]PendingMesssage, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	ids := make([]string, len(candidates))
	for i, candidate := range candidates {
		ids[i] = candidate.ID
	}

	retryAfter, err := r.client.HMGet(ctx, r.retryAfterKey(), ids...).Result()
	if err != nil {
		return nil, classifyError(err)
	}

	now := time.Now().UnixMilli()
	messages := make([]PendingMesssage, 0, len(candidates))
	for i, candidate := range candidates {
		if raw, ok := retryAfter[i].(string); ok {
			if at, err := strconv.ParseInt(raw, 10, 64); err == nil && at > now {
				continue
			}
		}
		messages = append(messages, candidate)
	}

	return messages, nil
}

func (r *RedisStreamMessageQueue) upsertConsumerGroup(ctx context.Context, group string) error {
	_, err := r.client.XGroupCreateMkStream(ctx, r.stream, group, "0-0").Result()
	if err != nil {
		// https://redis.io/commands/xgroup-create
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return classifyError(err)
	}

	return nil
}

// HeartBeat resets the idle time of a pending message so it is not reclaimed by another consumer.
func (r *RedisStreamMessageQueue) HeartBeat(ctx context.Context, group, consumerName, messageID string) error {
	// XCLAIM will increment the count of attempted deliveries of the message unless the JUSTID option has been specified
	_, err := r.client.XClaimJustID(ctx, &redis.XClaimArgs{
		Stream:   r.stream,
		Group:    group,
		Consumer: consumerName,
		MinIdle:  0,
		Messages: []string{messageID},
	}).Result()
	return classifyError(err)
}

func (r *RedisStreamMessageQueue) claimPending(ctx context.Context, batchSize int, group, consumerName string) ([]contracts.Message, error) {
	pendings, err := r.getPendingMessages(ctx, batchSize, group)
	if err != nil {
		return nil, err
	}

	pendingIds := make([]string, 0, len(pendings))
	pendingsMap := make(map[string]PendingMesssage, len(pendings))
	for _, pendingInfo := range pendings {
		pendingIds = append(pendingIds, pendingInfo.ID)
		pendingsMap[pendingInfo.ID] = pendingInfo
	}

	rawMessages, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.stream,
		Group:    group,
		Consumer: consumerName,
		MinIdle:  r.reClaimDelay,
		Messages: pendingIds,
	}).Result()
	if err != nil {
		return nil, classifyError(err)
	}

	messages := make([]contracts.Message, 0, len(rawMessages))
	for _, msg := range rawMessages {
		payload, ok := msg.Values[payloadKey].(string)
		if !ok {
			// Entry was deleted from the stream while pending
			if err := r.client.XAck(ctx, r.stream, group, msg.ID).Err(); err != nil {
				log.WithError(err).WithField("message_id", msg.ID).Error("failed to ack deleted entry")
			}
			continue
		}
		// XCLAIM counted this delivery
		messages = append(messages, contracts.NewMessage(msg.ID, r.queue, payload, pendingsMap[msg.ID].RetryCount+1))
	}

	return messages, nil
}

// Receive retrieves messages from the Redis stream.
// At most once per reClaimDelay it first reclaims idle pending messages; when there are
// none it reads new messages, blocking at most blockDuration.
func (r *RedisStreamMessageQueue) Receive(ctx context.Context,
	blockDuration time.Duration, batchSize int, group, consumerName string) ([]contracts.Message, error) {
	shouldProcessPendingMessage := false

	if r.checkPendingLock.TryLock() {
		shouldProcessPendingMessage = time.Since(r.lastPendingCheckTime) >= r.reClaimDelay
		if shouldProcessPendingMessage {
			r.lastPendingCheckTime = time.Now()
		}
		r.checkPendingLock.Unlock()
	}

	if shouldProcessPendingMessage {
		messages, err := r.claimPending(ctx, batchSize, group, consumerName)
		if err != nil && !errors.Is(err, contracts.ErrNoNewMessage) {
			return nil, err
		}
		if len(messages) > 0 {
			return messages, nil
		}
	}

	messages, err := r.fetchMessage(ctx, blockDuration, batchSize, group, consumerName)
	if err != nil {
		if errors.Is(err, contracts.ErrNoNewMessage) {
			return []contracts.Message{}, nil
		}
		return nil, err
	}

	return messages, nil
}

// Ack acknowledges the processing of a specific message by its ID.
func (r *RedisStreamMessageQueue) Ack(ctx context.Context, group, messageId string) error {
	_, err := r.client.XAck(ctx, r.stream, group, messageId).Result()
	if err != nil {
		return classifyError(err)
	}

	if err := r.client.HDel(ctx, r.retryAfterKey(), messageId).Err(); err != nil {
		log.WithError(err).WithField("message_id", messageId).Error("failed to clear retry-after")
	}

	if r.deleteOnAck {
		// To prevent stream from getting larger and larger we can delete task after it processed
		if err := r.client.XDel(ctx, r.stream, messageId).Err(); err != nil {
			log.WithError(err).WithField("message_id", messageId).Error("failed to delete acknowledged message")
		}
	}

	return nil
}

// Reject leaves the message pending so that it is reclaimed later. The message comes back
// after reClaimDelay at the earliest; a longer requeueDelay postpones it further.
func (r *RedisStreamMessageQueue) Reject(ctx context.Context, group, messageId string, requeueDelay time.Duration) error {
	if requeueDelay <= r.reClaimDelay {
		return nil
	}

	retryAt := time.Now().Add(requeueDelay).UnixMilli()
	return classifyError(r.client.HSet(ctx, r.retryAfterKey(), messageId, retryAt).Err())
}

// DeadLetter copies the message into the dead-letter stream, it does not acknowledge it.
func (r *RedisStreamMessageQueue) DeadLetter(ctx context.Context, message contracts.Message, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return classifyError(r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.deadLetterStream(),
		Values: map[string]interface{}{
			payloadKey:      message.GetPayload(),
			"origin_id":     message.GetId(),
			"receive_count": message.GetReceiveCount(),
			"cause":         reason,
		},
	}).Err())
}

func (r *RedisStreamMessageQueue) DeadLetterLen(ctx context.Context) (int64, error) {
	return r.client.XLen(ctx, r.deadLetterStream()).Result()
}

// Delete removes a specific message from the Redis stream by its ID.
func (r *RedisStreamMessageQueue) Delete(ctx context.Context, id string) error {
	return r.client.XDel(ctx, r.stream, id).Err()
}

// Purge deletes all messages from the Redis stream.
func (r *RedisStreamMessageQueue) Purge(ctx context.Context) error {
	return r.client.Del(ctx, r.stream, r.retryAfterKey()).Err()
}

// Len returns the total number of messages in the Redis stream.
func (r *RedisStreamMessageQueue) Len() (int64, error) {
	return r.client.XLen(context.Background(), r.stream).Result()
}

// Cleanup removes consumers that have been idle for longer than the idle threshold.
func (r *RedisStreamMessageQueue) Cleanup(ctx context.Context, consumerGroup string) error {
	consumers, err := r.client.XInfoConsumers(ctx, r.stream, consumerGroup).Result()
	if err != nil {
		if strings.Contains(err.Error(), "NOGROUP") || strings.Contains(err.Error(), "no such key") {
			return nil
		}
		return classifyError(err)
	}

	for _, consumer := range consumers {
		if consumer.Pending > 0 || consumer.Idle <= r.consumerIdleThreshold {
			continue
		}
		if err := r.client.XGroupDelConsumer(ctx, r.stream, consumerGroup, consumer.Name).Err(); err != nil {
			log.WithError(err).WithField("consumer", consumer.Name).Error("error occurred while deleting consumer")
		}
	}
	return nil
}
