package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultRedisPoolSize    = 20
	defaultRedisMaxRetries  = 3
	defaultRedisDialTimeout = 5 * time.Second

	// PTTL sentinels returned unscaled by go-redis.
	pttlMissing  = -2
	pttlNoExpire = -1
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	Cluster      bool          `json:"cluster" yaml:"cluster"`
	ClusterNodes []string      `json:"cluster_nodes" yaml:"cluster_nodes"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// KeyPrefix is prepended to every key, including lock keys.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`

	Lock LockConfig `json:"lock" yaml:"lock"`
}

// RedisStorage is a Redis-backed Store. It also implements per-key locking
// so that read-decide-write sequences from many processes serialize.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
	lock   LockConfig

	closeOnce sync.Once
	closeErr  error
}

// NewRedisStorage constructs a Redis backend and pings it, retrying with
// backoff up to MaxRetries times.
func NewRedisStorage(cfg *RedisConfig) (*RedisStorage, error) {
	conf, err := normalizeRedisConfig(cfg)
	if err != nil {
		return nil, err
	}

	client := newRedisClient(conf)
	s := NewRedisStorageFromClient(client, conf)

	if err := s.pingWithRetry(context.Background(), conf.MaxRetries); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

// NewRedisStorageFromClient wraps an existing client. Only KeyPrefix and
// Lock are read from cfg, which may be nil.
func NewRedisStorageFromClient(client redis.UniversalClient, cfg *RedisConfig) *RedisStorage {
	s := &RedisStorage{
		client: client,
		lock:   DefaultLockConfig(),
	}
	if cfg != nil {
		s.prefix = cfg.KeyPrefix
		s.lock = normalizeLockConfig(cfg.Lock)
	}
	return s
}

func (s *RedisStorage) key(k string) string {
	return s.prefix + k
}

// Get reads the payload and its PTTL in one MULTI/EXEC so both describe the
// same moment.
func (s *RedisStorage) Get(ctx context.Context, key string) (Entry, bool, error) {
	k := s.key(key)

	var (
		getCmd *redis.StringCmd
		ttlCmd *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getCmd = pipe.Get(ctx, k)
		ttlCmd = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, false, classifyRedisError("get", key, err)
	}

	value, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, classifyRedisError("get", key, err)
	}

	ttl, err := ttlCmd.Result()
	if err != nil {
		return Entry{}, false, classifyRedisError("pttl", key, err)
	}

	switch ttl {
	case pttlMissing:
		return Entry{}, false, nil
	case pttlNoExpire:
		return Entry{Value: value}, true, nil
	default:
		return Entry{Value: value, TTL: ttl, HasTTL: true}, true, nil
	}
}

func (s *RedisStorage) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	switch {
	case ttl == KeepTTL:
		ttl = redis.KeepTTL // SET ... KEEPTTL
	case ttl < 0:
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return classifyRedisError("set", key, err)
	}
	return nil
}

// NowMillis reads the server clock with TIME, so every client agrees on
// window boundaries regardless of local clock skew.
func (s *RedisStorage) NowMillis(ctx context.Context) (int64, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, classifyRedisError("time", "", err)
	}
	return t.UnixMilli(), nil
}

// Close releases Redis resources. It is idempotent.
func (s *RedisStorage) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

func (s *RedisStorage) pingWithRetry(ctx context.Context, maxRetries int) error {
	attempts := maxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	backoff := 100 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := s.client.Ping(ctx).Err()
		if err == nil {
			return nil
		}
		lastErr = err

		if i == attempts-1 {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Dur("backoff", backoff).Msg("redis ping failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
	}

	if lastErr == nil {
		lastErr = errors.New("ping failed with unknown error")
	}
	return lastErr
}

func classifyRedisError(op, key string, err error) error {
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: redis %s %q: %v", ErrWrongType, op, key, err)
	}
	log.Error().Err(err).Str("op", op).Str("key", key).Msg("redis command failed")
	return fmt.Errorf("%w: redis %s: %w", ErrUnavailable, op, err)
}

func normalizeRedisConfig(cfg *RedisConfig) (*RedisConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	conf := *cfg
	if conf.PoolSize <= 0 {
		conf.PoolSize = defaultRedisPoolSize
	}
	if conf.MaxRetries <= 0 {
		conf.MaxRetries = defaultRedisMaxRetries
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = defaultRedisDialTimeout
	}
	conf.Lock = normalizeLockConfig(conf.Lock)

	if conf.Cluster {
		if len(conf.ClusterNodes) == 0 {
			return nil, fmt.Errorf("cluster_nodes is required when cluster=true")
		}
	} else {
		if conf.Host == "" {
			return nil, fmt.Errorf("host is required when cluster=false")
		}
		if conf.Port <= 0 {
			return nil, fmt.Errorf("port must be positive when cluster=false, got %d", conf.Port)
		}
	}

	return &conf, nil
}

func newRedisClient(cfg *RedisConfig) redis.UniversalClient {
	if cfg.Cluster {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       cfg.ClusterNodes,
			Password:    cfg.Password,
			PoolSize:    cfg.PoolSize,
			MaxRetries:  cfg.MaxRetries,
			DialTimeout: cfg.DialTimeout,
		})
	}

	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)
	return redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		MaxRetries:  cfg.MaxRetries,
		DialTimeout: cfg.DialTimeout,
	})
}
