package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestLockerTryLockAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewLocker(client)
	ctx := context.Background()

	// 1. First caller takes the lock and gets a fencing token.
	token, ok, err := locker.TryLock(ctx, "ingest:lock:file:abc", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	// 2. The lock is held, so a second caller is refused.
	_, ok, err = locker.TryLock(ctx, "ingest:lock:file:abc", time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)

	// 3. A stale token cannot release someone else's lock.
	assert.NoError(t, locker.Release(ctx, "ingest:lock:file:abc", "not-the-token"))
	_, ok, err = locker.TryLock(ctx, "ingest:lock:file:abc", time.Minute)
	assert.NoError(t, err)
	assert.False(t, ok)

	// 4. The holder releases and the lock is free again.
	assert.NoError(t, locker.Release(ctx, "ingest:lock:file:abc", token))
	token2, ok, err := locker.TryLock(ctx, "ingest:lock:file:abc", time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, token, token2)
}

func TestLockerExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "ingest:lock:file:xyz", time.Second)
	assert.NoError(t, err)
	assert.True(t, ok)

	// The TTL frees an abandoned lock without a release.
	mr.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, "ingest:lock:file:xyz", time.Second)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerArgumentChecks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := NewLocker(client)
	ctx := context.Background()

	_, _, err := locker.TryLock(ctx, "", time.Minute)
	assert.Error(t, err)

	_, _, err = locker.TryLock(ctx, "key", 0)
	assert.Error(t, err)

	var missing *Locker
	_, _, err = missing.TryLock(ctx, "key", time.Minute)
	assert.Error(t, err)
	assert.NoError(t, missing.Release(ctx, "key", "token"))

	assert.Nil(t, NewLocker(nil))
}
