// README: Per-order locks serializing evaluate-then-award (in-process and Redis).
package assignment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"medbid/internal/types"
)

var ErrLockTimeout = errors.New("timed out waiting for order lock")

type Locker interface {
	// Lock blocks until the order's lock is held or ctx ends.
	Lock(ctx context.Context, orderID types.ID) (unlock func(), err error)
}

// LocalLocker is a keyed mutex for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[types.ID]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[types.ID]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, orderID types.ID) (func(), error) {
	for {
		l.mu.Lock()
		wait, busy := l.held[orderID]
		if !busy {
			done := make(chan struct{})
			l.held[orderID] = done
			l.mu.Unlock()
			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, orderID)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		}
	}
}

const lockKeyPrefix = "medbid:lock:order:%s"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker is a SET NX lease per order; the lease expires if the holder dies.
type RedisLocker struct {
	redis *redis.Client
	ttl   time.Duration
	retry time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{redis: client, ttl: ttl, retry: 50 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, orderID types.ID) (func(), error) {
	key := fmt.Sprintf(lockKeyPrefix, string(orderID))
	token := uuid.NewString()
	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Release with a fresh context so a cancelled caller still frees the lease.
				rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(rctx, l.redis, []string{key}, token).Err()
			}, nil
		}
		t := time.NewTimer(l.retry)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %w", ErrLockTimeout, ctx.Err())
		}
	}
}
