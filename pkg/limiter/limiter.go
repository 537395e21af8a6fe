package limiter

import (
	internallimiter "github.com/SmitUplenchwar2687/Shield/internal/limiter"
	"github.com/SmitUplenchwar2687/Shield/pkg/clock"
	"github.com/SmitUplenchwar2687/Shield/pkg/policy"
	"github.com/SmitUplenchwar2687/Shield/pkg/storage"
)

// Denied is the result of a rejected invocation.
const Denied = internallimiter.Denied

// ErrCorruptedState means stored state could not be decoded.
var ErrCorruptedState = internallimiter.ErrCorruptedState

// Limiter is the admission interface consumed by HTTP layers.
type Limiter = internallimiter.Limiter

// Decision captures the outcome of one invocation.
type Decision = internallimiter.Decision

// Observer receives every decision an Executor makes.
type Observer = internallimiter.Observer

// ObserverFunc adapts a function to Observer.
type ObserverFunc = internallimiter.ObserverFunc

// Locker is implemented by stores that serialize a key across processes.
type Locker = internallimiter.Locker

// Executor runs invocations against a store.
type Executor = internallimiter.Executor

// Option configures an Executor.
type Option = internallimiter.Option

// PolicyLimiter applies one fixed policy through an Executor.
type PolicyLimiter = internallimiter.PolicyLimiter

// NewExecutor creates an executor over store.
func NewExecutor(store storage.Store, opts ...Option) (*Executor, error) {
	return internallimiter.NewExecutor(store, opts...)
}

// NewPolicyLimiter binds p and a per-request token cost to exec.
func NewPolicyLimiter(exec *Executor, p policy.Policy, tokens int64) (*PolicyLimiter, error) {
	return internallimiter.NewPolicyLimiter(exec, p, tokens)
}

// WithDefaultAlgorithm sets the algorithm Absorb uses when none is named.
func WithDefaultAlgorithm(a policy.Algorithm) Option {
	return internallimiter.WithDefaultAlgorithm(a)
}

// WithClock sets the clock that stamps decisions.
func WithClock(c clock.Clock) Option {
	return internallimiter.WithClock(c)
}

// WithObserver registers o at construction time.
func WithObserver(o Observer) Option {
	return internallimiter.WithObserver(o)
}

// WithLocalLocking ignores any Locker the store implements.
func WithLocalLocking() Option {
	return internallimiter.WithLocalLocking()
}
