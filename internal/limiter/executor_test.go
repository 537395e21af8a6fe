package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

type stubStore struct {
	getErr error
	setErr error
	nowErr error

	gets atomic.Int32
	sets atomic.Int32
}

func (s *stubStore) Get(context.Context, string) (storage.Entry, bool, error) {
	s.gets.Add(1)
	return storage.Entry{}, false, s.getErr
}

func (s *stubStore) SetWithTTL(context.Context, string, []byte, time.Duration) error {
	s.sets.Add(1)
	return s.setErr
}

func (s *stubStore) NowMillis(context.Context) (int64, error) {
	return epoch.UnixMilli(), s.nowErr
}

type lockingStore struct {
	stubStore
	lockErr error
	locked  []string
	unlocks int
}

func (s *lockingStore) Lock(_ context.Context, key string) (func(), error) {
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	s.locked = append(s.locked, key)
	return func() { s.unlocks++ }, nil
}

func TestNewExecutor_RequiresStore(t *testing.T) {
	if _, err := NewExecutor(nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestExecutor_Decision(t *testing.T) {
	h := newHarness(t)
	d, err := h.exec.Execute(ctx, invocation("user1", policy.AlgorithmFixedWindow, 5, 10*time.Second, 2))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if !d.Allowed || d.Result != 3 || d.Remaining != 3 {
		t.Errorf("decision = %+v, want allowed with 3 remaining", d)
	}
	if d.StorageKey != "tp:fw:user1" {
		t.Errorf("StorageKey = %q, want tp:fw:user1", d.StorageKey)
	}
	if d.Capacity != 5 || d.Tokens != 2 || d.PeriodMS != 10000 {
		t.Errorf("policy fields = %+v", d)
	}
	if !d.Timestamp.Equal(epoch) {
		t.Errorf("Timestamp = %v, want %v", d.Timestamp, epoch)
	}

	d, _ = h.exec.Execute(ctx, invocation("user1", policy.AlgorithmFixedWindow, 5, 10*time.Second, 4))
	if d.Allowed || d.Result != -1 || d.Remaining != 0 {
		t.Errorf("denied decision = %+v", d)
	}
}

func TestExecutor_InvalidInvocation(t *testing.T) {
	h := newHarness(t)
	bad := []policy.Invocation{
		invocation("k", policy.AlgorithmTokenBucket, 0, time.Second, 1),
		invocation("k", policy.AlgorithmTokenBucket, 1, 0, 1),
		invocation("k", policy.AlgorithmTokenBucket, 1, time.Second, 0),
		invocation("k", policy.Algorithm(9), 1, time.Second, 1),
	}
	for _, inv := range bad {
		if _, err := h.exec.Execute(ctx, inv); !errors.Is(err, policy.ErrInvalidArgument) {
			t.Errorf("Execute(%+v) error = %v, want ErrInvalidArgument", inv, err)
		}
	}
	if h.store.Len() != 0 {
		t.Errorf("invalid invocations wrote %d entries", h.store.Len())
	}
}

func TestExecutor_Absorb(t *testing.T) {
	h := newHarness(t)

	d, err := h.exec.Absorb(ctx, []string{"SHIELD.absorb", "user1", "30", "60", "13"})
	if err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	if d.Result != 17 || d.Algorithm != policy.AlgorithmTokenBucket {
		t.Errorf("Absorb() = %d (%s), want 17 (token_bucket)", d.Result, d.Algorithm)
	}

	d, err = h.exec.Absorb(ctx, []string{"SHIELD.absorb", "user1", "5", "10", "algorithm", "fixed_window"})
	if err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	if d.Result != 4 || d.StorageKey != "tp:fw:user1" {
		t.Errorf("Absorb() = %d at %q, want 4 at tp:fw:user1", d.Result, d.StorageKey)
	}

	if _, err := h.exec.Absorb(ctx, []string{"SHIELD.absorb", "user1"}); !errors.Is(err, policy.ErrInvalidArgument) {
		t.Errorf("short args error = %v, want ErrInvalidArgument", err)
	}
}

func TestExecutor_DefaultAlgorithm(t *testing.T) {
	h := newHarness(t, WithDefaultAlgorithm(policy.AlgorithmLeakyBucket))

	d, err := h.exec.Absorb(ctx, []string{"SHIELD.absorb", "user1", "10", "1"})
	if err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	if d.Algorithm != policy.AlgorithmLeakyBucket || d.Result != 9 {
		t.Errorf("Absorb() = %d (%s), want 9 (leaky_bucket)", d.Result, d.Algorithm)
	}
}

func TestExecutor_WindowIsolation(t *testing.T) {
	h := newHarness(t)

	for _, a := range policy.Algorithms {
		inv := invocation("shared", a, 3, time.Minute, 3)
		if got := h.result(inv); got != 0 {
			t.Fatalf("%s drain = %d, want 0", a, got)
		}
	}
	for _, a := range policy.Algorithms {
		inv := invocation("shared", a, 3, time.Minute, 1)
		if got := h.result(inv); got != -1 {
			t.Errorf("%s after drain = %d, want -1", a, got)
		}
	}
	if h.store.Len() != len(policy.Algorithms) {
		t.Errorf("store holds %d entries, want %d", h.store.Len(), len(policy.Algorithms))
	}

	for _, a := range policy.Algorithms {
		inv := invocation("other", a, 3, time.Minute, 1)
		if got := h.result(inv); got != 2 {
			t.Errorf("%s for another key = %d, want 2", a, got)
		}
	}
}

func TestExecutor_CapacityBoundAndNoMutationOnDenial(t *testing.T) {
	const capacity = 7
	for _, a := range policy.Algorithms {
		t.Run(a.String(), func(t *testing.T) {
			h := newHarness(t)
			for step := 0; step < 60; step++ {
				inv := invocation("k", a, capacity, 10*time.Second, int64(step%4+1))
				before, hadBefore := h.stored(inv)

				got := h.result(inv)
				after, hasAfter := h.stored(inv)

				if got == -1 {
					if hadBefore != hasAfter || string(before.Value) != string(after.Value) || before.TTL != after.TTL {
						t.Fatalf("step %d: denial changed state %q -> %q", step, before.Value, after.Value)
					}
				} else if got < 0 || got > capacity {
					t.Fatalf("step %d: result %d outside [0, %d]", step, got, capacity)
				}

				if hasAfter && a != policy.AlgorithmSlidingWindow {
					n, err := parseCounter(after.Value)
					if err != nil || n > capacity {
						t.Fatalf("step %d: stored %q outside [0, %d]", step, after.Value, capacity)
					}
				}
				if hasAfter && a == policy.AlgorithmSlidingWindow {
					w, err := decodeWindow(after.Value)
					if err != nil || w.current > capacity {
						t.Fatalf("step %d: stored %q has current above %d", step, after.Value, capacity)
					}
				}

				h.vc.Advance(time.Duration(step%5) * 700 * time.Millisecond)
			}
		})
	}
}

func TestExecutor_Determinism(t *testing.T) {
	run := func() []int64 {
		h := newHarness(t)
		var out []int64
		for i := 0; i < 40; i++ {
			a := policy.Algorithms[i%len(policy.Algorithms)]
			out = append(out, h.result(invocation("k", a, 5, 3*time.Second, int64(i%3+1))))
			h.vc.Advance(time.Duration(i%7) * 150 * time.Millisecond)
		}
		return out
	}

	first, second := run(), run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("run diverged at %d: %d vs %d", i, first[i], second[i])
		}
	}
}

func TestExecutor_StoreUnavailable(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name  string
		store *stubStore
		algo  policy.Algorithm
	}{
		{"get", &stubStore{getErr: boom}, policy.AlgorithmTokenBucket},
		{"set", &stubStore{setErr: boom}, policy.AlgorithmLeakyBucket},
		{"wrapped get", &stubStore{getErr: fmt.Errorf("%w: timeout", storage.ErrUnavailable)}, policy.AlgorithmFixedWindow},
		{"now", &stubStore{nowErr: boom}, policy.AlgorithmSlidingWindow},
	}
	for _, tt := range tests {
		exec, err := NewExecutor(tt.store)
		if err != nil {
			t.Fatalf("NewExecutor() error = %v", err)
		}
		_, err = exec.Execute(ctx, invocation("k", tt.algo, 5, time.Second, 1))
		if !errors.Is(err, storage.ErrUnavailable) {
			t.Errorf("%s: error = %v, want ErrUnavailable", tt.name, err)
		}
		if tt.store.getErr != nil && tt.store.gets.Load() != 1 {
			t.Errorf("%s: Get called %d times, want 1 (no retry)", tt.name, tt.store.gets.Load())
		}
	}
}

func TestExecutor_WrongTypeIsCorrupted(t *testing.T) {
	store := &stubStore{getErr: fmt.Errorf("%w: WRONGTYPE", storage.ErrWrongType)}
	exec, _ := NewExecutor(store)

	_, err := exec.Execute(ctx, invocation("k", policy.AlgorithmTokenBucket, 5, time.Second, 1))
	if !errors.Is(err, ErrCorruptedState) {
		t.Errorf("error = %v, want ErrCorruptedState", err)
	}
	if store.sets.Load() != 0 {
		t.Error("corrupted state must not be overwritten")
	}
}

func TestExecutor_UsesStoreLocker(t *testing.T) {
	store := &lockingStore{}
	exec, _ := NewExecutor(store)

	if _, err := exec.Execute(ctx, invocation("k", policy.AlgorithmSlidingWindow, 5, time.Second, 1)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(store.locked) != 1 || store.locked[0] != "tp:sw:k" {
		t.Errorf("locked = %v, want [tp:sw:k]", store.locked)
	}
	if store.unlocks != 1 {
		t.Errorf("unlocks = %d, want 1", store.unlocks)
	}
}

func TestExecutor_LockFailure(t *testing.T) {
	store := &lockingStore{lockErr: errors.New("lock wait timed out")}
	exec, _ := NewExecutor(store)

	_, err := exec.Execute(ctx, invocation("k", policy.AlgorithmTokenBucket, 5, time.Second, 1))
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
	if store.gets.Load() != 0 {
		t.Error("store was read without holding the lock")
	}
}

func TestExecutor_LocalLockingOverride(t *testing.T) {
	store := &lockingStore{lockErr: errors.New("unused")}
	exec, _ := NewExecutor(store, WithLocalLocking())

	if _, err := exec.Execute(ctx, invocation("k", policy.AlgorithmTokenBucket, 5, time.Second, 1)); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
}

func TestExecutor_Observers(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Decision
	)
	record := ObserverFunc(func(d Decision) {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	})

	h := newHarness(t, WithObserver(record))
	late := 0
	h.exec.AddObserver(ObserverFunc(func(Decision) { late++ }))

	inv := invocation("k", policy.AlgorithmFixedWindow, 1, time.Second, 1)
	h.result(inv)
	h.result(inv)

	if len(seen) != 2 || !seen[0].Allowed || seen[1].Allowed {
		t.Errorf("observed = %+v, want one allowed then one denied", seen)
	}
	if late != 2 {
		t.Errorf("late observer saw %d decisions, want 2", late)
	}

	store := &stubStore{getErr: errors.New("down")}
	exec, _ := NewExecutor(store, WithObserver(record))
	_, _ = exec.Execute(ctx, inv)
	if len(seen) != 2 {
		t.Error("failed invocations must not be observed")
	}
}

func TestExecutor_ConcurrentSameKey(t *testing.T) {
	store := storage.NewMemoryStorage(nil)
	exec, _ := NewExecutor(store)
	inv := invocation("hot", policy.AlgorithmFixedWindow, 50, time.Minute, 1)

	var (
		allowed atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := exec.Execute(ctx, inv)
			if err != nil {
				t.Errorf("Execute() error = %v", err)
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if allowed.Load() != 50 {
		t.Errorf("allowed = %d, want 50", allowed.Load())
	}
	if n := exec.keys.len(); n != 0 {
		t.Errorf("key mutex retained %d entries", n)
	}
}

func TestPolicyLimiter(t *testing.T) {
	h := newHarness(t)
	p := policy.Policy{Algorithm: policy.AlgorithmTokenBucket, Capacity: 2, PeriodMS: 60000}

	if _, err := NewPolicyLimiter(nil, p, 1); err == nil {
		t.Error("expected error for nil executor")
	}
	if _, err := NewPolicyLimiter(h.exec, policy.Policy{}, 1); err == nil {
		t.Error("expected error for zero policy")
	}
	if _, err := NewPolicyLimiter(h.exec, p, 0); err == nil {
		t.Error("expected error for zero tokens")
	}

	l, err := NewPolicyLimiter(h.exec, p, 1)
	if err != nil {
		t.Fatalf("NewPolicyLimiter() error = %v", err)
	}
	var _ Limiter = l

	for i, want := range []bool{true, true, false} {
		d, err := l.Allow(ctx, "user1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if d.Allowed != want {
			t.Errorf("call %d allowed = %v, want %v", i+1, d.Allowed, want)
		}
	}
}
