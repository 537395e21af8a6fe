package storage

import (
	"time"

	"github.com/redis/go-redis/v9"

	internalstorage "github.com/SmitUplenchwar2687/Shield/internal/storage"
	"github.com/SmitUplenchwar2687/Shield/pkg/clock"
)

const (
	BackendMemory = internalstorage.BackendMemory
	BackendRedis  = internalstorage.BackendRedis
)

var (
	// ErrUnavailable wraps every failed store call.
	ErrUnavailable = internalstorage.ErrUnavailable
	// ErrWrongType reports a key holding a value of an incompatible type.
	ErrWrongType = internalstorage.ErrWrongType
)

// Store is the key/value capability set the rate limit engines run on.
type Store = internalstorage.Store

// Entry is a stored payload together with its remaining time-to-live.
type Entry = internalstorage.Entry

// Backend is a Store that owns resources.
type Backend = internalstorage.Backend

// Config selects and configures a backend.
type Config = internalstorage.Config

// MemoryConfig configures the in-memory backend.
type MemoryConfig = internalstorage.MemoryConfig

// RedisConfig configures the Redis backend.
type RedisConfig = internalstorage.RedisConfig

// LockConfig tunes the per-key Redis lock.
type LockConfig = internalstorage.LockConfig

// MemoryStorage is an in-memory Store with clock-driven expiry.
type MemoryStorage = internalstorage.MemoryStorage

// RedisStorage is a Redis-backed Store with per-key locking.
type RedisStorage = internalstorage.RedisStorage

// NewMemoryStorage creates a memory store without background cleanup.
func NewMemoryStorage(c clock.Clock) *MemoryStorage {
	return internalstorage.NewMemoryStorage(c)
}

// NewMemoryStorageWithCleanup creates a memory store that evicts expired
// entries every interval.
func NewMemoryStorageWithCleanup(c clock.Clock, interval time.Duration) (*MemoryStorage, error) {
	return internalstorage.NewMemoryStorageWithCleanup(c, interval)
}

// NewRedisStorage connects to Redis and pings it.
func NewRedisStorage(cfg *RedisConfig) (*RedisStorage, error) {
	return internalstorage.NewRedisStorage(cfg)
}

// NewRedisStorageFromClient wraps an existing go-redis client.
func NewRedisStorageFromClient(client redis.UniversalClient, cfg *RedisConfig) *RedisStorage {
	return internalstorage.NewRedisStorageFromClient(client, cfg)
}

// DefaultLockConfig returns the lock settings used when none are given.
func DefaultLockConfig() LockConfig {
	return internalstorage.DefaultLockConfig()
}

// Open constructs the configured backend.
func Open(cfg Config, c clock.Clock) (Backend, error) {
	return internalstorage.Open(cfg, c)
}
