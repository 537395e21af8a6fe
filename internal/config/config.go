package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// Config is the top-level configuration for a Shield process.
type Config struct {
	Server  ServerConfig   `yaml:"server" json:"server"`
	Log     LogConfig      `yaml:"log" json:"log"`
	Policy  PolicyConfig   `yaml:"policy" json:"policy"`
	Storage storage.Config `yaml:"storage" json:"storage"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // console or json
}

// PolicyConfig is the policy applied when a request does not carry one.
type PolicyConfig struct {
	DefaultAlgorithm policy.Algorithm `yaml:"default_algorithm" json:"default_algorithm"`
	Capacity         int64            `yaml:"capacity" json:"capacity"`
	Period           time.Duration    `yaml:"period" json:"period"`
	Tokens           int64            `yaml:"tokens" json:"tokens"`
}

// Policy converts the section to a policy.Policy.
func (p PolicyConfig) Policy() policy.Policy {
	return policy.Policy{
		Algorithm: p.DefaultAlgorithm,
		Capacity:  p.Capacity,
		PeriodMS:  p.Period.Milliseconds(),
	}
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Policy: PolicyConfig{
			DefaultAlgorithm: policy.AlgorithmTokenBucket,
			Capacity:         10,
			Period:           time.Minute,
			Tokens:           policy.DefaultTokens,
		},
		Storage: storage.Config{
			Backend: storage.BackendMemory,
			Memory: storage.MemoryConfig{
				CleanupInterval: time.Minute,
			},
			Redis: storage.RedisConfig{
				Host:        "localhost",
				Port:        6379,
				PoolSize:    20,
				MaxRetries:  3,
				DialTimeout: 5 * time.Second,
				Lock:        storage.DefaultLockConfig(),
			},
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	if err := c.Policy.Policy().Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Policy.Period%time.Millisecond != 0 {
		return fmt.Errorf("policy.period must be a whole number of milliseconds, got %s", c.Policy.Period)
	}
	if c.Policy.Tokens <= 0 {
		return fmt.Errorf("policy.tokens must be positive, got %d", c.Policy.Tokens)
	}

	return c.validateStorage()
}

func (c Config) validateStorage() error {
	s := c.Storage
	switch s.Backend {
	case storage.BackendMemory:
		if s.Memory.CleanupInterval <= 0 {
			return fmt.Errorf("storage.memory.cleanup_interval must be positive, got %s", s.Memory.CleanupInterval)
		}
	case storage.BackendRedis:
		if s.Redis.Cluster {
			if len(s.Redis.ClusterNodes) == 0 {
				return fmt.Errorf("storage.redis.cluster_nodes is required when cluster=true")
			}
		} else {
			if s.Redis.Host == "" {
				return fmt.Errorf("storage.redis.host is required")
			}
			if s.Redis.Port <= 0 {
				return fmt.Errorf("storage.redis.port must be positive, got %d", s.Redis.Port)
			}
		}
		if s.Redis.Lock.TTL <= 0 {
			return fmt.Errorf("storage.redis.lock.ttl must be positive, got %s", s.Redis.Lock.TTL)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q, must be one of: %s, %s",
			s.Backend, storage.BackendMemory, storage.BackendRedis)
	}
	return nil
}

// LoadFile reads a YAML (or JSON) config file over the defaults.
// Fields not specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `server:
  addr: ":8080"
  shutdown_timeout: 5s

log:
  level: info      # trace, debug, info, warn, error
  format: console  # console or json

# Applied to requests that do not name their own policy.
policy:
  default_algorithm: token_bucket  # token_bucket, leaky_bucket, fixed_window, sliding_window
  capacity: 10
  period: 1m
  tokens: 1

storage:
  backend: memory  # memory or redis
  memory:
    cleanup_interval: 1m
  redis:
    host: localhost
    port: 6379
    password: ""
    db: 0
    cluster: false
    # cluster_nodes: ["10.0.0.1:7000", "10.0.0.2:7000"]
    pool_size: 20
    max_retries: 3
    dial_timeout: 5s
    key_prefix: ""
    lock:
      ttl: 1s
      retry_delay: 10ms
      max_retries: 100
`
	return os.WriteFile(path, []byte(example), 0o644)
}
