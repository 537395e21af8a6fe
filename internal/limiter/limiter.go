package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/policy"
)

// Limiter is the admission interface consumed by the HTTP layers.
type Limiter interface {
	// Allow decides one request for key.
	Allow(ctx context.Context, key string) (Decision, error)
}

// Decision captures the outcome of one invocation.
type Decision struct {
	Key        string           `json:"key"`
	StorageKey string           `json:"storage_key"`
	Algorithm  policy.Algorithm `json:"algorithm"`
	Capacity   int64            `json:"capacity"`
	PeriodMS   int64            `json:"period_ms"`
	Tokens     int64            `json:"tokens"`
	Allowed    bool             `json:"allowed"`
	Remaining  int64            `json:"remaining"` // 0 when denied
	Result     int64            `json:"result"`    // Remaining, or -1 when denied
	Timestamp  time.Time        `json:"timestamp"`
}

// RetryAfter is the policy period rounded up to whole seconds, at least
// one. It is the Retry-After hint sent with a denial.
func (d Decision) RetryAfter() int64 {
	sec := d.PeriodMS / 1000
	if d.PeriodMS%1000 != 0 {
		sec++
	}
	return max(sec, 1)
}

// Observer receives every decision the executor makes.
// Implementations must not block.
type Observer interface {
	ObserveDecision(d Decision)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(d Decision)

func (f ObserverFunc) ObserveDecision(d Decision) { f(d) }

// PolicyLimiter applies one fixed policy through an Executor.
type PolicyLimiter struct {
	exec   *Executor
	policy policy.Policy
	tokens int64
}

// NewPolicyLimiter binds p and a per-request token cost to exec.
func NewPolicyLimiter(exec *Executor, p policy.Policy, tokens int64) (*PolicyLimiter, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if tokens <= 0 {
		return nil, fmt.Errorf("%w: tokens must be positive, got %d", policy.ErrInvalidArgument, tokens)
	}
	return &PolicyLimiter{exec: exec, policy: p, tokens: tokens}, nil
}

func (l *PolicyLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	return l.exec.Execute(ctx, policy.Invocation{Key: key, Policy: l.policy, Tokens: l.tokens})
}

// Policy returns the bound policy.
func (l *PolicyLimiter) Policy() policy.Policy {
	return l.policy
}

// Tokens returns the per-request cost.
func (l *PolicyLimiter) Tokens() int64 {
	return l.tokens
}
