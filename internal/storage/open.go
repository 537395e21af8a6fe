package storage

import (
	"fmt"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Backend is a Store that owns resources.
type Backend interface {
	Store
	Close() error
}

// MemoryConfig configures the in-memory backend.
type MemoryConfig struct {
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// Config selects and configures a backend.
type Config struct {
	Backend string       `json:"backend" yaml:"backend"`
	Memory  MemoryConfig `json:"memory" yaml:"memory"`
	Redis   RedisConfig  `json:"redis" yaml:"redis"`
}

// Open constructs the configured backend. c drives expiry for the memory
// backend and is ignored by redis, which keeps its own clock.
func Open(cfg Config, c clock.Clock) (Backend, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		interval := cfg.Memory.CleanupInterval
		if interval <= 0 {
			interval = time.Minute
		}
		return NewMemoryStorageWithCleanup(c, interval)
	case BackendRedis:
		return NewRedisStorage(&cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q, must be one of: %s, %s", cfg.Backend, BackendMemory, BackendRedis)
	}
}
