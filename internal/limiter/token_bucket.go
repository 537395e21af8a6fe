package limiter

import (
	"context"

	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// tokenBucket admits requested tokens from a bucket holding at most
// capacity that refills at capacity per period.
//
// The bucket stores only its token count. Every successful take resets the
// TTL to the full period, so period minus the remaining TTL is the time since
// the last take and the refill can be computed without a timestamp. A denial
// does not write, which leaves that reference point alone.
//
// Returns the tokens left after the take, or Denied.
func tokenBucket(ctx context.Context, s storage.Store, key string, capacity, period, requested int64) (int64, error) {
	e, ok, err := load(ctx, s, key)
	if err != nil {
		return 0, err
	}

	tokens, elapsed := capacity, int64(0)
	if ok {
		if tokens, err = parseCounter(e.Value); err != nil {
			return 0, err
		}
		elapsed = elapsedFromTTL(e.TTL, period)
	}

	refill := mulDiv(elapsed, capacity, period)
	available := min(capacity, addSat(tokens, refill))
	if available < requested {
		return Denied, nil
	}

	left := available - requested
	if err := saveCounter(ctx, s, key, left, millis(period)); err != nil {
		return 0, err
	}
	return left, nil
}
