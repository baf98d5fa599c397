package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLocker(t *testing.T) *RedisUserLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisUserLocker(client, 30*time.Second, zap.NewNop())
}

func TestRedisUserLocker_Serializes(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker(t)
	userID := uuid.New()

	var mu sync.Mutex
	var inside, maxInside int

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, userID, func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
}

func TestRedisUserLocker_IndependentUsers(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker(t)

	release := make(chan struct{})
	held := make(chan struct{})

	go func() {
		_ = locker.WithLock(ctx, uuid.New(), func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()

	<-held
	// A different user's lock is unaffected by the held one.
	done := make(chan struct{})
	go func() {
		_ = locker.WithLock(ctx, uuid.New(), func(ctx context.Context) error {
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent user lock blocked")
	}
	close(release)
}

func TestRedisUserLocker_ReleasedAfterError(t *testing.T) {
	ctx := context.Background()
	locker := newTestLocker(t)
	userID := uuid.New()

	require.Error(t, locker.WithLock(ctx, userID, func(ctx context.Context) error {
		return assert.AnError
	}))

	// The lock must be free again.
	done := make(chan struct{})
	go func() {
		_ = locker.WithLock(ctx, userID, func(ctx context.Context) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock not released after callback error")
	}
}

func TestKeyedMutexLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewKeyedMutexLocker()
	userID := uuid.New()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithLock(ctx, userID, func(ctx context.Context) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, counter)
}
