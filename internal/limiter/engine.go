package limiter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// ErrCorruptedState means a stored payload exists but does not have the
// shape the selected algorithm expects. Nothing is repaired.
var ErrCorruptedState = errors.New("corrupted rate limit state")

// Denied is the result value of a rejected request.
const Denied int64 = -1

// mulDiv returns floor(a*b/c) through a 128-bit product.
// Callers guarantee 0 <= a <= c, 0 <= b and c > 0, so the quotient fits
// in b and Div64 cannot overflow.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, _ := bits.Div64(hi, lo, uint64(c))
	return int64(q)
}

// addSat adds two non-negative values, saturating at MaxInt64.
func addSat(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

// millis converts a millisecond count to a Duration, saturating instead of
// wrapping for periods beyond what a Duration can hold.
func millis(ms int64) time.Duration {
	if ms > int64(math.MaxInt64/time.Millisecond) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// elapsedFromTTL infers the time since the last successful write from the
// remaining TTL of an entry that was written with a TTL of period.
func elapsedFromTTL(ttl time.Duration, period int64) int64 {
	elapsed := period - ttl.Milliseconds()
	switch {
	case elapsed < 0:
		return 0
	case elapsed > period:
		return period
	}
	return elapsed
}

// parseCounter decodes a single non-negative integer payload.
func parseCounter(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: payload %q is not an integer", ErrCorruptedState, b)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: payload %d is negative", ErrCorruptedState, n)
	}
	return n, nil
}

// parseField decodes a signed integer field, for timestamps.
func parseField(b []byte, name string) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrCorruptedState, name, b)
	}
	return n, nil
}

// load reads key and reports whether it holds usable timed state. An entry
// without an expiry counts as absent.
func load(ctx context.Context, s storage.Store, key string) (storage.Entry, bool, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil {
		return storage.Entry{}, false, storeError(err)
	}
	if !ok || !e.HasTTL {
		return storage.Entry{}, false, nil
	}
	return e, true, nil
}

func save(ctx context.Context, s storage.Store, key string, value []byte, ttl time.Duration) error {
	if err := s.SetWithTTL(ctx, key, value, ttl); err != nil {
		return storeError(err)
	}
	return nil
}

func saveCounter(ctx context.Context, s storage.Store, key string, n int64, ttl time.Duration) error {
	var buf [20]byte
	return save(ctx, s, key, strconv.AppendInt(buf[:0], n, 10), ttl)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, storage.ErrWrongType):
		return fmt.Errorf("%w: %w", ErrCorruptedState, err)
	case errors.Is(err, storage.ErrUnavailable):
		return err
	}
	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}

// splitWindow splits a sliding window payload into exactly three fields.
func splitWindow(b []byte) ([][]byte, error) {
	fields := bytes.Split(b, []byte{':'})
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: sliding window payload %q has %d fields, want 3",
			ErrCorruptedState, b, len(fields))
	}
	return fields, nil
}
