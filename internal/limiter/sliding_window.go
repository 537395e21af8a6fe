package limiter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// windowState is the persisted sliding window: the start of the current
// window in store milliseconds and the counts of the current and previous
// windows.
type windowState struct {
	start    int64
	current  int64
	previous int64
}

func decodeWindow(b []byte) (windowState, error) {
	fields, err := splitWindow(b)
	if err != nil {
		return windowState{}, err
	}
	start, err := parseField(fields[0], "window start")
	if err != nil {
		return windowState{}, err
	}
	current, err := parseField(fields[1], "current count")
	if err != nil {
		return windowState{}, err
	}
	previous, err := parseField(fields[2], "previous count")
	if err != nil {
		return windowState{}, err
	}
	if current < 0 || previous < 0 {
		return windowState{}, fmt.Errorf("%w: sliding window payload %q has a negative count", ErrCorruptedState, b)
	}
	return windowState{start: start, current: current, previous: previous}, nil
}

func (w windowState) encode() []byte {
	buf := make([]byte, 0, 64)
	buf = strconv.AppendInt(buf, w.start, 10)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, w.current, 10)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, w.previous, 10)
	return buf
}

// advance moves the state to the window containing now.
func (w windowState) advance(now, window int64) windowState {
	if w.start > now {
		w.start = now
	}
	// diff is negative only when now - start overflowed, which is a window
	// far in the past.
	diff := now - w.start
	switch delta := diff / window; {
	case diff < 0 || delta >= 2:
		w.previous = 0
		w.current = 0
		w.start = now - now%window
	case delta == 1:
		w.previous = w.current
		w.current = 0
		w.start += window
	}
	return w
}

// weighted is the current count plus the share of the previous window
// still covered by a window-length span ending at now. The share is
// computed in fixed point with the window length as the scale and rounds
// down.
func (w windowState) weighted(now, window int64) int64 {
	elapsed := now - w.start
	return addSat(w.current, mulDiv(window-elapsed, w.previous, window))
}

// slidingWindow approximates a rolling window by blending the previous
// fixed window into the current one. Time comes from the store clock
// rather than from TTLs, since window boundaries are aligned to wall time.
//
// Returns the capacity left under the blended count, or Denied.
func slidingWindow(ctx context.Context, s storage.Store, key string, capacity, window, requested int64) (int64, error) {
	now, err := s.NowMillis(ctx)
	if err != nil {
		return 0, storeError(err)
	}

	e, ok, err := load(ctx, s, key)
	if err != nil {
		return 0, err
	}

	state := windowState{start: now}
	if ok {
		if state, err = decodeWindow(e.Value); err != nil {
			return 0, err
		}
	}
	state = state.advance(now, window)

	weighted := state.weighted(now, window)
	total := addSat(weighted, requested)
	if total > capacity {
		return Denied, nil
	}

	state.current = addSat(state.current, requested)
	if err := save(ctx, s, key, state.encode(), millis(addSat(window, window))); err != nil {
		return 0, err
	}
	return capacity - total, nil
}
