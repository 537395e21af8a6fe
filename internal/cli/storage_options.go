package cli

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Shield/internal/config"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

type storageOptions struct {
	backend               string
	memoryCleanupInterval time.Duration
	redisHost             string
	redisPort             int
	redisPassword         string
	redisDB               int
	redisCluster          bool
	redisClusterNodes     []string
	redisPoolSize         int
	redisMaxRetries       int
	redisDialTimeout      time.Duration
	redisKeyPrefix        string
	redisLockTTL          time.Duration
	redisLockRetryDelay   time.Duration
	redisLockMaxRetries   int
}

func (o *storageOptions) addFlags(cmd *cobra.Command) {
	def := config.Default().Storage
	f := cmd.Flags()
	f.StringVar(&o.backend, "storage", def.Backend, "storage backend (memory, redis)")
	f.DurationVar(&o.memoryCleanupInterval, "storage-memory-cleanup-interval", def.Memory.CleanupInterval, "cleanup interval for memory storage backend")
	f.StringVar(&o.redisHost, "redis-host", def.Redis.Host, "redis host (or host:port)")
	f.IntVar(&o.redisPort, "redis-port", def.Redis.Port, "redis port")
	f.StringVar(&o.redisPassword, "redis-password", "", "redis password")
	f.IntVar(&o.redisDB, "redis-db", 0, "redis database index")
	f.BoolVar(&o.redisCluster, "redis-cluster", false, "enable redis cluster mode")
	f.StringSliceVar(&o.redisClusterNodes, "redis-cluster-nodes", nil, "redis cluster nodes host:port list")
	f.IntVar(&o.redisPoolSize, "redis-pool-size", def.Redis.PoolSize, "redis connection pool size")
	f.IntVar(&o.redisMaxRetries, "redis-max-retries", def.Redis.MaxRetries, "redis max retries")
	f.DurationVar(&o.redisDialTimeout, "redis-dial-timeout", def.Redis.DialTimeout, "redis dial timeout")
	f.StringVar(&o.redisKeyPrefix, "redis-key-prefix", "", "prefix for every redis key")
	f.DurationVar(&o.redisLockTTL, "redis-lock-ttl", def.Redis.Lock.TTL, "expiry of the per-key redis lock")
	f.DurationVar(&o.redisLockRetryDelay, "redis-lock-retry-delay", def.Redis.Lock.RetryDelay, "wait between lock attempts")
	f.IntVar(&o.redisLockMaxRetries, "redis-lock-max-retries", def.Redis.Lock.MaxRetries, "lock attempts before giving up")
}

func (o *storageOptions) applyConfigIfUnset(cmd *cobra.Command, cfg *storage.Config) {
	if cfg == nil {
		return
	}

	flags := cmd.Flags()
	if !flags.Changed("storage") {
		o.backend = cfg.Backend
	}
	if !flags.Changed("storage-memory-cleanup-interval") {
		o.memoryCleanupInterval = cfg.Memory.CleanupInterval
	}
	if !flags.Changed("redis-host") {
		o.redisHost = cfg.Redis.Host
	}
	if !flags.Changed("redis-port") {
		o.redisPort = cfg.Redis.Port
	}
	if !flags.Changed("redis-password") {
		o.redisPassword = cfg.Redis.Password
	}
	if !flags.Changed("redis-db") {
		o.redisDB = cfg.Redis.DB
	}
	if !flags.Changed("redis-cluster") {
		o.redisCluster = cfg.Redis.Cluster
	}
	if !flags.Changed("redis-cluster-nodes") {
		o.redisClusterNodes = cfg.Redis.ClusterNodes
	}
	if !flags.Changed("redis-pool-size") {
		o.redisPoolSize = cfg.Redis.PoolSize
	}
	if !flags.Changed("redis-max-retries") {
		o.redisMaxRetries = cfg.Redis.MaxRetries
	}
	if !flags.Changed("redis-dial-timeout") {
		o.redisDialTimeout = cfg.Redis.DialTimeout
	}
	if !flags.Changed("redis-key-prefix") {
		o.redisKeyPrefix = cfg.Redis.KeyPrefix
	}
	if !flags.Changed("redis-lock-ttl") {
		o.redisLockTTL = cfg.Redis.Lock.TTL
	}
	if !flags.Changed("redis-lock-retry-delay") {
		o.redisLockRetryDelay = cfg.Redis.Lock.RetryDelay
	}
	if !flags.Changed("redis-lock-max-retries") {
		o.redisLockMaxRetries = cfg.Redis.Lock.MaxRetries
	}
}

func (o *storageOptions) normalize() error {
	if o.redisCluster || o.backend != storage.BackendRedis {
		return nil
	}

	host, port, err := normalizeRedisHostPort(o.redisHost, o.redisPort)
	if err != nil {
		return err
	}
	o.redisHost = host
	o.redisPort = port
	return nil
}

func (o *storageOptions) toConfig() storage.Config {
	return storage.Config{
		Backend: o.backend,
		Memory: storage.MemoryConfig{
			CleanupInterval: o.memoryCleanupInterval,
		},
		Redis: storage.RedisConfig{
			Host:         o.redisHost,
			Port:         o.redisPort,
			Password:     o.redisPassword,
			DB:           o.redisDB,
			Cluster:      o.redisCluster,
			ClusterNodes: append([]string(nil), o.redisClusterNodes...),
			PoolSize:     o.redisPoolSize,
			MaxRetries:   o.redisMaxRetries,
			DialTimeout:  o.redisDialTimeout,
			KeyPrefix:    o.redisKeyPrefix,
			Lock: storage.LockConfig{
				TTL:        o.redisLockTTL,
				RetryDelay: o.redisLockRetryDelay,
				MaxRetries: o.redisLockMaxRetries,
			},
		},
	}
}

// resolve merges flags over cfg.Storage and writes the result back.
func (o *storageOptions) resolve(cmd *cobra.Command, cfg *config.Config) error {
	o.applyConfigIfUnset(cmd, &cfg.Storage)
	if err := o.normalize(); err != nil {
		return err
	}
	cfg.Storage = o.toConfig()
	return nil
}

func normalizeRedisHostPort(host string, port int) (string, int, error) {
	if strings.Contains(host, ":") {
		h, p, err := net.SplitHostPort(host)
		if err != nil {
			return "", 0, fmt.Errorf("invalid --redis-host value %q: %w", host, err)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid redis port in --redis-host %q: %w", host, err)
		}
		host = h
		port = n
	}

	if host == "" {
		return "", 0, fmt.Errorf("redis host cannot be empty")
	}
	if port <= 0 {
		return "", 0, fmt.Errorf("redis port must be positive, got %d", port)
	}

	return host, port, nil
}
