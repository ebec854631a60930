package ring

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisRing keeps the latest `capacity` samples in a Redis list, newest first.
// Implementation of https://en.wikipedia.org/wiki/Circular_buffer
type RedisRing struct {
	client   *redis.Client
	capacity int
	key      string
}

func NewRedisRing(redisClient *redis.Client, capacity int, key string) *RedisRing {
	return &RedisRing{
		client:   redisClient,
		capacity: capacity,
		key:      "ring:" + key,
	}
}

func (r *RedisRing) Key() string {
	return r.key
}

func (r *RedisRing) Size(ctx context.Context) (int, error) {
	length, err := r.client.LLen(ctx, r.key).Result()
	return int(length), err
}

func (r *RedisRing) Add(ctx context.Context, items ...float64) error {
	if len(items) == 0 {
		return nil
	}
	values := make([]interface{}, len(items))
	for i, item := range items {
		values[i] = item
	}

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, r.key, values...)
		p.LTrim(ctx, r.key, 0, int64(r.capacity-1))
		return nil
	})
	return err
}

// GetAll returns the samples oldest first.
func (r *RedisRing) GetAll(ctx context.Context) ([]float64, error) {
	res, err := r.client.LRange(ctx, r.key, 0, int64(r.capacity-1)).Result()
	if err != nil {
		return []float64{}, err
	}

	result := make([]float64, 0, len(res))
	for i := len(res) - 1; i >= 0; i-- {
		v, err := strconv.ParseFloat(res[i], 64)
		if err != nil {
			log.WithError(err).WithField("ring", r.key).Error("invalid ring sample")
			continue
		}
		result = append(result, v)
	}

	return result, nil
}

func (r *RedisRing) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
