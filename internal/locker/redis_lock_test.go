package locker

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/soroosh-tanzadeh/elasticrunner/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMutexLock_ShouldBeExclusiveUntilExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	locker := NewRedisMutexLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	first := locker.CreateMutexLock("scaleup:test", contracts.LockOptions{Expiry: time.Minute})
	require.NoError(t, first.Lock())
	assert.NotEmpty(t, first.Value())
	assert.True(t, mr.Exists("scaleup:test"))

	second := locker.CreateMutexLock("scaleup:test", contracts.LockOptions{Expiry: time.Minute})
	assert.Error(t, second.Lock())

	mr.FastForward(2 * time.Minute)
	assert.NoError(t, second.Lock())
}

func TestCreateMutexLock_ShouldUnlockWithValue(t *testing.T) {
	mr := miniredis.RunT(t)
	locker := NewRedisMutexLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	lock := locker.CreateMutexLock("job", contracts.LockOptions{Expiry: time.Minute})
	require.NoError(t, lock.Lock())

	ok, err := locker.CreateMutexLock("job", contracts.LockOptions{Value: lock.Value()}).Unlock()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, mr.Exists("job"))
}
