package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the lock key only when it still holds our token, so
// an expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisUserLocker serializes per-user work across processes with a Redis
// SET NX lock. Contenders poll until the lock frees or the context ends.
type RedisUserLocker struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewRedisUserLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisUserLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisUserLocker{
		client:     client,
		ttl:        ttl,
		retryDelay: 25 * time.Millisecond,
		logger:     logger,
	}
}

// WithLock runs fn while holding the user's lock.
func (l *RedisUserLocker) WithLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error {
	key := "lock:user:" + userID.String()
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquiring user lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}

	defer func() {
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			l.logger.Warn("releasing user lock failed",
				zap.String("key", key), zap.Error(err))
		}
	}()

	return fn(ctx)
}

// KeyedMutexLocker is the in-process fallback when Redis is not configured.
// It serializes per user within a single process only.
type KeyedMutexLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewKeyedMutexLocker() *KeyedMutexLocker {
	return &KeyedMutexLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *KeyedMutexLocker) WithLock(ctx context.Context, userID uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
