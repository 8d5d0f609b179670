package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries the holder's
// token, so a holder whose lease expired cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every process talking to the same Redis.
// Locks are leases: a holder that dies is released after the TTL.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithPrefix sets the key namespace (default "loyalty:lock:").
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// WithTTL sets the lease duration (default 10s).
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// WithRetryInterval sets how often a contended lock is retried (default 10ms).
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) { r.retry = d }
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "loyalty:lock:",
		ttl:    10 * time.Second,
		retry:  10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock polls SET NX until it wins the key or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	redisKey := r.prefix + key

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("lock: acquire %q: %w", key, err)
		}
		if ok {
			return func() {
				// Released with a fresh context: the request context may
				// already be canceled when the caller unwinds.
				ctx, cancel := context.WithTimeout(context.Background(), r.ttl)
				defer cancel()
				_ = releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err() //nolint:errcheck // lease expiry reclaims the key
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("lock: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
