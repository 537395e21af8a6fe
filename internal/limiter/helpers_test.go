package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

var (
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx   = context.Background()
)

type harness struct {
	t     *testing.T
	vc    *clock.VirtualClock
	store *storage.MemoryStorage
	exec  *Executor
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	vc := clock.NewVirtualClock(epoch)
	store := storage.NewMemoryStorage(vc)
	exec, err := NewExecutor(store, append([]Option{WithClock(vc)}, opts...)...)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return &harness{t: t, vc: vc, store: store, exec: exec}
}

func invocation(key string, a policy.Algorithm, capacity int64, period time.Duration, tokens int64) policy.Invocation {
	return policy.Invocation{
		Key:    key,
		Policy: policy.Policy{Algorithm: a, Capacity: capacity, PeriodMS: period.Milliseconds()},
		Tokens: tokens,
	}
}

// result executes inv and returns the decision result, failing on error.
func (h *harness) result(inv policy.Invocation) int64 {
	h.t.Helper()
	d, err := h.exec.Execute(ctx, inv)
	if err != nil {
		h.t.Fatalf("Execute(%s %s) error = %v", inv.Policy.Algorithm, inv.Key, err)
	}
	return d.Result
}

// stored returns the raw entry behind inv.
func (h *harness) stored(inv policy.Invocation) (storage.Entry, bool) {
	h.t.Helper()
	e, ok, err := h.store.Get(ctx, inv.StorageKey())
	if err != nil {
		h.t.Fatalf("Get() error = %v", err)
	}
	return e, ok
}

func (h *harness) plant(inv policy.Invocation, value string, ttl time.Duration) {
	h.t.Helper()
	if err := h.store.SetWithTTL(ctx, inv.StorageKey(), []byte(value), ttl); err != nil {
		h.t.Fatalf("SetWithTTL() error = %v", err)
	}
}
