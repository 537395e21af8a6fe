package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	lockKeyPrefix = "shield:lock:"

	defaultLockTTL        = time.Second
	defaultLockRetryDelay = 10 * time.Millisecond
	defaultLockMaxRetries = 100
)

var (
	// ErrLockNotAcquired means the lock is held elsewhere.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockMaxRetriesExceeded is returned once the retry budget is spent.
	ErrLockMaxRetriesExceeded = errors.New("maximum lock retries exceeded")
)

// unlockScript deletes KEYS[1] only while it still holds ARGV[1].
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// LockConfig tunes the per-key lock taken around each admission decision.
type LockConfig struct {
	TTL        time.Duration `json:"ttl" yaml:"ttl"`
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
}

func normalizeLockConfig(c LockConfig) LockConfig {
	if c.TTL <= 0 {
		c.TTL = defaultLockTTL
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultLockRetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultLockMaxRetries
	}
	return c
}

// DefaultLockConfig returns the lock settings used when none are configured.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		TTL:        defaultLockTTL,
		RetryDelay: defaultLockRetryDelay,
		MaxRetries: defaultLockMaxRetries,
	}
}

// Lock takes a SET NX lock guarding key, waiting up to the retry budget or
// until ctx is done. Failures wrap ErrUnavailable.
func (s *RedisStorage) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := s.key(lockKeyPrefix + key)
	logCtx := log.With().Str("lock_key", lockKey).Logger()

	token, err := s.tryLock(ctx, lockKey)
	if errors.Is(err, ErrLockNotAcquired) {
		token, err = s.waitLock(ctx, lockKey)
	}
	if err != nil {
		logCtx.Warn().Err(err).Msg("lock acquisition failed")
		return nil, fmt.Errorf("%w: lock %q: %w", ErrUnavailable, key, err)
	}

	logCtx.Trace().Str("token", token).Msg("lock acquired")
	return func() { s.unlock(lockKey, token) }, nil
}

func (s *RedisStorage) tryLock(ctx context.Context, lockKey string) (string, error) {
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, lockKey, token, s.lock.TTL).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrLockNotAcquired
	}
	return token, nil
}

func (s *RedisStorage) waitLock(ctx context.Context, lockKey string) (string, error) {
	ticker := time.NewTicker(s.lock.RetryDelay)
	defer ticker.Stop()

	retries := 0
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			retries++
			token, err := s.tryLock(ctx, lockKey)
			if err == nil {
				return token, nil
			}
			if !errors.Is(err, ErrLockNotAcquired) {
				return "", err
			}
			if retries >= s.lock.MaxRetries {
				return "", ErrLockMaxRetriesExceeded
			}
		}
	}
}

// unlock runs detached from the caller's context so a cancelled request
// still releases what it holds.
func (s *RedisStorage) unlock(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.lock.TTL)
	defer cancel()

	res, err := s.client.Eval(ctx, unlockScript, []string{lockKey}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Error().Err(err).Str("lock_key", lockKey).Msg("failed to release lock")
		return
	}
	if n, ok := res.(int64); !ok || n != 1 {
		log.Warn().Str("lock_key", lockKey).Interface("result", res).Msg("lock expired before release")
	}
}
