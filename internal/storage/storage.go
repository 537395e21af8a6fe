package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable wraps every failed store call: timeouts, lost
	// connections, cancelled contexts, lock waits that ran out.
	ErrUnavailable = errors.New("store unavailable")

	// ErrWrongType reports a key holding a value the store cannot return as
	// a plain payload (for example a redis hash under a rate limit key).
	ErrWrongType = errors.New("stored value has incompatible type")
)

// KeepTTL passed to SetWithTTL replaces the payload but leaves the key's
// current expiry untouched. A key that does not exist is stored without
// expiry.
const KeepTTL time.Duration = -1

// Entry is a stored payload together with its remaining time-to-live.
type Entry struct {
	Value []byte
	// TTL is the remaining lifetime. Meaningful only when HasTTL is set.
	TTL time.Duration
	// HasTTL is false for persistent keys that carry no expiry.
	HasTTL bool
}

// Store is the key/value capability set the rate limit engines run on.
// Implementations must be safe for concurrent use. They do not make a
// read followed by a write atomic; callers serialize per key.
type Store interface {
	// Get returns the entry for key. ok is false when the key does not
	// exist or has expired.
	Get(ctx context.Context, key string) (e Entry, ok bool, err error)

	// SetWithTTL replaces the entry for key. KeepTTL keeps the existing
	// expiry; any other ttl <= 0 stores the value without expiry.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// NowMillis returns the store's wall clock in Unix milliseconds.
	NowMillis(ctx context.Context) (int64, error)
}
