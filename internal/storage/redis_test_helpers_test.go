package storage

import (
	"context"
	"strconv"
	"testing"
	"time"

	testcontainers "github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newRedisStorageForTest(t *testing.T, prefix string) (*RedisStorage, func()) {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	bg := context.Background()
	container, err := rediscontainer.Run(bg, "redis:7.2-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}

	host, err := container.Host(bg)
	if err != nil {
		_ = container.Terminate(bg)
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(bg, "6379/tcp")
	if err != nil {
		_ = container.Terminate(bg)
		t.Fatalf("container mapped port: %v", err)
	}

	p, err := strconv.Atoi(port.Port())
	if err != nil {
		_ = container.Terminate(bg)
		t.Fatalf("parse mapped port: %v", err)
	}

	store, err := NewRedisStorage(&RedisConfig{
		Host:        host,
		Port:        p,
		PoolSize:    20,
		MaxRetries:  3,
		DialTimeout: 5 * time.Second,
		KeyPrefix:   prefix,
		Lock: LockConfig{
			TTL:        time.Second,
			RetryDelay: 5 * time.Millisecond,
			MaxRetries: 400,
		},
	})
	if err != nil {
		_ = container.Terminate(bg)
		t.Fatalf("NewRedisStorage() error: %v", err)
	}

	cleanup := func() {
		_ = store.Close()
		_ = container.Terminate(context.Background())
	}
	return store, cleanup
}
