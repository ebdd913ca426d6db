package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockAcquire = errors.New("failed to acquire distributed lock")

// Config is loaded with the REDIS prefix.
type Config struct {
	Addr      string        `split_words:"true"`
	Password  string        `split_words:"true"`
	DB        int           `split_words:"true" default:"0"`
	KeyPrefix string        `split_words:"true" default:"loan:"`
	LockTTL   time.Duration `split_words:"true"`
}

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisLocker holds a key with SET NX PX and releases it only if the stored
// token is still ours.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	poll   time.Duration
}

type RedisOption func(*RedisLocker)

func WithPollInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.poll = d
		}
	}
}

func NewRedisLocker(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: prefix,
		poll:   50 * time.Millisecond,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// NewRedisClient returns nil when no address is configured.
func NewRedisClient(cfg Config) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func (l *RedisLocker) key(k string) string {
	return l.prefix + "lock:" + k
}

func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	lockKey := l.key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLockAcquire, lockKey, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", ErrLockAcquire, lockKey, ctx.Err())
		case <-ticker.C:
		}
	}
}
