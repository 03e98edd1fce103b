package payment

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLocker implements Locker as a Redis SETNX. The lock carries its
// own short TTL so a crashed holder cannot wedge a paymentId forever.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLocker builds a Locker backed by client, with locks expiring
// after ttl if never released.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, prefix: "eigenswarm:payment-lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, paymentID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+paymentID, "1", l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, paymentID string) error {
	return l.client.Del(ctx, l.prefix+paymentID).Err()
}

// MemoryLocker is the single-process fallback used in development and
// tests when no Redis is configured.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
}

// NewMemoryLocker builds a MemoryLocker with the same TTL semantics as
// the Redis-backed one.
func NewMemoryLocker(ttl time.Duration) *MemoryLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &MemoryLocker{held: make(map[string]time.Time), ttl: ttl}
}

func (l *MemoryLocker) Acquire(_ context.Context, paymentID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if expiry, ok := l.held[paymentID]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	l.held[paymentID] = time.Now().Add(l.ttl)
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, paymentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, paymentID)
	return nil
}
