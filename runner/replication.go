package runner

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const replicationPrefix = "elasticrunner:replication:"
const replicationRenewDuration = time.Second * 10
const replicationKeyTTL = time.Second * 15

// replicaRegistry announces a live worker for a source with a TTL key renewed periodically.
type replicaRegistry struct {
	client   *redis.Client
	sourceID string
	id       string
	host     string
	onError  func(error)
	// mu orders renewals against removal; removed stops renewals once the replica left.
	mu      sync.Mutex
	removed bool
}

func newReplicaRegistry(client *redis.Client, sourceID, id, host string, onError func(error)) *replicaRegistry {
	return &replicaRegistry{
		client:   client,
		sourceID: sourceID,
		id:       id,
		host:     host,
		onError:  onError,
	}
}

func (r *replicaRegistry) key() string {
	return replicationPrefix + r.sourceID + ":" + r.id
}

func (r *replicaRegistry) register(ctx context.Context) error {
	return r.client.Set(ctx, r.key(), r.host, replicationKeyTTL).Err()
}

func (r *replicaRegistry) renew() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed {
		return
	}
	if err := r.client.Set(context.Background(), r.key(), r.host, replicationKeyTTL).Err(); err != nil {
		r.onError(err)
	}
}

func (r *replicaRegistry) count(ctx context.Context) (int, error) {
	keys, err := r.client.Keys(ctx, replicationPrefix+r.sourceID+":*").Result()
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *replicaRegistry) remove(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = true
	if err := r.client.Del(ctx, r.key()).Err(); err != nil {
		r.onError(err)
	}
}
