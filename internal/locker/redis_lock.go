package locker

import (
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
)

const DefaultRetryDuration = time.Duration(100) * time.Millisecond

type RedisMutexLocker struct {
	pool redsyncredis.Pool
	rs   *redsync.Redsync
}

func NewRedisMutexLocker(client *redis.Client) *RedisMutexLocker {
	pool := goredis.NewPool(client)
	rs := redsync.New(pool)
	return &RedisMutexLocker{
		pool: pool,
		rs:   rs,
	}
}

// CreateMutexLock builds a lock that makes 1+Retries attempts before giving up.
func (r *RedisMutexLocker) CreateMutexLock(name string, lockOptions contracts.LockOptions) contracts.Lock {
	options := []redsync.Option{
		redsync.WithTries(lockOptions.Retries + 1),
	}

	if lockOptions.Expiry > 0 {
		options = append(options, redsync.WithExpiry(lockOptions.Expiry))
	}
	if lockOptions.RetryDelay > 0 {
		options = append(options, redsync.WithRetryDelay(lockOptions.RetryDelay))
	} else {
		options = append(options, redsync.WithRetryDelay(DefaultRetryDuration))
	}

	if len(lockOptions.Value) > 0 {
		options = append(options, redsync.WithValue(lockOptions.Value))
	}

	return r.rs.NewMutex(name, options...)
}
