package limiter

import (
	"context"

	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// leakyBucket is the mirror of tokenBucket: the stored value is a water
// level that drains at capacity per period and each request pours in
// requested units. A request that would overflow is denied.
//
// Returns the headroom left after the pour, or Denied.
func leakyBucket(ctx context.Context, s storage.Store, key string, capacity, period, requested int64) (int64, error) {
	e, ok, err := load(ctx, s, key)
	if err != nil {
		return 0, err
	}

	var level int64
	if ok {
		if level, err = parseCounter(e.Value); err != nil {
			return 0, err
		}
		leaked := mulDiv(elapsedFromTTL(e.TTL, period), capacity, period)
		level = min(capacity, max(0, level-leaked))
	}

	next := addSat(level, requested)
	if next > capacity {
		return Denied, nil
	}

	if err := saveCounter(ctx, s, key, next, millis(period)); err != nil {
		return 0, err
	}
	return capacity - next, nil
}
