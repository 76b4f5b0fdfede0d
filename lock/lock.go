// Package lock serializes timekeeping flows for an account, in-process and
// optionally across processes through Redis.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// Locker is implemented by every lock in this package.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Local is a single-holder lock; waiters are served in arrival order.
type Local struct {
	sem *semaphore.Weighted
}

// NewLocal returns an unlocked Local.
func NewLocal() *Local { return &Local{sem: semaphore.NewWeighted(1)} }

// Lock blocks until the lock is held or ctx is done.
func (l *Local) Lock(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return sync.OnceFunc(func() { l.sem.Release(1) }), nil
}

// TryLock acquires without waiting.
func (l *Local) TryLock() (func(), bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	return sync.OnceFunc(func() { l.sem.Release(1) }), true
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a SET NX PX lease keyed per account. The lease expires on its own if
// the holder dies, so TTL must exceed the longest flow.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	retry  time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	URL     string
	Account string
	TTL     time.Duration
	Retry   time.Duration
}

// NewRedis connects using a redis:// URL and verifies the server answers.
func NewRedis(ctx context.Context, o RedisOptions) (*Redis, error) {
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(c, o.Account, o.TTL, o.Retry), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(c *redis.Client, account string, ttl, retry time.Duration) *Redis {
	if account == "" {
		account = "default"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if retry <= 0 {
		retry = 500 * time.Millisecond
	}
	return &Redis{client: c, key: "clockbot:lock:" + account, ttl: ttl, retry: retry}
}

// Lock polls SET NX until the lease is taken or ctx is done.
func (r *Redis) Lock(ctx context.Context) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	t := time.NewTicker(r.retry)
	defer t.Stop()
	for {
		ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		if ok {
			return sync.OnceFunc(func() {
				rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := releaseScript.Run(rctx, r.client, []string{r.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
					slog.Warn("redis lock release failed", slog.String("key", r.key), slog.Any("err", err), slog.String("component", "lock"))
				}
			}), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }

// Chain acquires several lockers in order and releases them in reverse.
type Chain []Locker

// Lock acquires every element or none.
func (c Chain) Lock(ctx context.Context) (func(), error) {
	var held []func()
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, l := range c {
		u, err := l.Lock(ctx)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, u)
	}
	return sync.OnceFunc(release), nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
