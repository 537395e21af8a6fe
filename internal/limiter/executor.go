package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// Locker is implemented by stores that serialize access to a key across
// processes. The returned unlock func is called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Executor runs invocations against a store. Each read-decide-write runs
// under a lock on its storage key: the store's own Locker when it has one,
// otherwise a mutex local to this Executor.
type Executor struct {
	store  storage.Store
	locker Locker
	keys   *keyMutex
	parser policy.Parser
	clock  clock.Clock

	mu        sync.RWMutex
	observers []Observer
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultAlgorithm sets the algorithm Absorb uses when the argument
// list names none.
func WithDefaultAlgorithm(a policy.Algorithm) Option {
	return func(e *Executor) {
		e.parser.DefaultAlgorithm = a
	}
}

// WithClock sets the clock that stamps decisions. Engine timing always
// comes from the store.
func WithClock(c clock.Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithObserver registers o at construction time.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithLocalLocking ignores any Locker the store implements. Only safe when
// this process is the sole writer.
func WithLocalLocking() Option {
	return func(e *Executor) {
		e.locker = nil
	}
}

// NewExecutor creates an executor over store.
func NewExecutor(store storage.Store, opts ...Option) (*Executor, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	e := &Executor{
		store: store,
		keys:  newKeyMutex(),
		clock: clock.NewRealClock(),
	}
	if l, ok := store.(Locker); ok {
		e.locker = l
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AddObserver registers o for every later decision.
func (e *Executor) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Absorb parses a raw argument list and executes it.
func (e *Executor) Absorb(ctx context.Context, args []string) (Decision, error) {
	inv, err := e.parser.Parse(args)
	if err != nil {
		return Decision{}, err
	}
	return e.Execute(ctx, inv)
}

// Execute decides inv. The returned error wraps policy.ErrInvalidArgument,
// ErrCorruptedState or storage.ErrUnavailable.
func (e *Executor) Execute(ctx context.Context, inv policy.Invocation) (Decision, error) {
	if err := inv.Validate(); err != nil {
		return Decision{}, err
	}

	sk := inv.StorageKey()
	unlock, err := e.lock(ctx, sk)
	if err != nil {
		return Decision{}, err
	}
	result, err := e.dispatch(ctx, sk, inv)
	unlock()

	logger := log.With().
		Str("key", inv.Key).
		Str("algorithm", inv.Policy.Algorithm.String()).
		Int64("tokens", inv.Tokens).
		Logger()
	if err != nil {
		if errors.Is(err, ErrCorruptedState) {
			logger.Warn().Err(err).Msg("corrupted rate limit state")
		} else {
			logger.Error().Err(err).Msg("rate limit store failure")
		}
		return Decision{}, err
	}

	d := Decision{
		Key:        inv.Key,
		StorageKey: sk,
		Algorithm:  inv.Policy.Algorithm,
		Capacity:   inv.Policy.Capacity,
		PeriodMS:   inv.Policy.PeriodMS,
		Tokens:     inv.Tokens,
		Allowed:    result != Denied,
		Remaining:  max(result, 0),
		Result:     result,
		Timestamp:  e.clock.Now(),
	}
	logger.Debug().Bool("allowed", d.Allowed).Int64("result", result).Msg("decision")

	e.notify(d)
	return d, nil
}

// dispatch runs exactly one engine for the invocation's algorithm.
func (e *Executor) dispatch(ctx context.Context, sk string, inv policy.Invocation) (int64, error) {
	p := inv.Policy
	switch p.Algorithm {
	case policy.AlgorithmTokenBucket:
		return tokenBucket(ctx, e.store, sk, p.Capacity, p.PeriodMS, inv.Tokens)
	case policy.AlgorithmLeakyBucket:
		return leakyBucket(ctx, e.store, sk, p.Capacity, p.PeriodMS, inv.Tokens)
	case policy.AlgorithmFixedWindow:
		return fixedWindow(ctx, e.store, sk, p.Capacity, p.PeriodMS, inv.Tokens)
	case policy.AlgorithmSlidingWindow:
		return slidingWindow(ctx, e.store, sk, p.Capacity, p.PeriodMS, inv.Tokens)
	}
	return 0, fmt.Errorf("%w: unknown algorithm %d", policy.ErrInvalidArgument, uint8(p.Algorithm))
}

func (e *Executor) lock(ctx context.Context, key string) (func(), error) {
	if e.locker == nil {
		return e.keys.lock(key), nil
	}
	unlock, err := e.locker.Lock(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
		}
		return nil, err
	}
	return unlock, nil
}

func (e *Executor) notify(d Decision) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, o := range e.observers {
		o.ObserveDecision(d)
	}
}
