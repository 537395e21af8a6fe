package limiter

import (
	"context"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// minActiveWindowTTL is the remaining TTL below which a window is treated
// as already closed. A key about to expire must not carry its count into a
// write that would outlive it.
const minActiveWindowTTL = time.Millisecond

// fixedWindow counts requests in a window opened by the first request and
// closed by the store expiring the entry. Writes inside an open window use
// storage.KeepTTL, so the boundary never moves.
//
// Returns the requests still allowed in the window, or Denied.
func fixedWindow(ctx context.Context, s storage.Store, key string, capacity, period, requested int64) (int64, error) {
	e, ok, err := load(ctx, s, key)
	if err != nil {
		return 0, err
	}

	var count int64
	ttl := millis(period)
	if ok && e.TTL > minActiveWindowTTL {
		if count, err = parseCounter(e.Value); err != nil {
			return 0, err
		}
		ttl = storage.KeepTTL
	}

	candidate := addSat(count, requested)
	if candidate > capacity {
		return Denied, nil
	}

	if err := saveCounter(ctx, s, key, candidate, ttl); err != nil {
		return 0, err
	}
	return capacity - candidate, nil
}
