package policy

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidArgument marks malformed or out-of-range input. It is always
// returned synchronously and is never worth retrying.
var ErrInvalidArgument = errors.New("invalid argument")

// DefaultTokens is the number of units consumed when a request does not say.
const DefaultTokens int64 = 1

// MaxPeriodMS is the longest period a store TTL can express exactly.
const MaxPeriodMS = math.MaxInt64 / int64(time.Millisecond)

// Policy is the per-algorithm parameter set: how much can be admitted
// (Capacity) over which span (PeriodMS). For the window algorithms the
// period is the window length.
type Policy struct {
	Algorithm Algorithm `json:"algorithm"`
	Capacity  int64     `json:"capacity"`
	PeriodMS  int64     `json:"period_ms"`
}

// Period returns the policy period as a duration.
func (p Policy) Period() time.Duration {
	return time.Duration(p.PeriodMS) * time.Millisecond
}

// Validate checks the policy invariants.
func (p Policy) Validate() error {
	if !p.Algorithm.Valid() {
		return fmt.Errorf("%w: unknown algorithm %d", ErrInvalidArgument, uint8(p.Algorithm))
	}
	if p.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, p.Capacity)
	}
	if p.PeriodMS <= 0 {
		return fmt.Errorf("%w: period/window must be positive, got %dms", ErrInvalidArgument, p.PeriodMS)
	}
	if p.PeriodMS > MaxPeriodMS {
		return fmt.Errorf("%w: period value too large, got %dms, max %dms", ErrInvalidArgument, p.PeriodMS, MaxPeriodMS)
	}
	return nil
}

// Invocation is one parsed admission request. It is a value type; callers
// copy it rather than mutate it.
type Invocation struct {
	Key    string `json:"key"`
	Policy Policy `json:"policy"`
	Tokens int64  `json:"tokens"`
}

// NewInvocation builds a validated invocation. tokens <= 0 is rejected;
// pass DefaultTokens for the single-unit case.
func NewInvocation(key string, p Policy, tokens int64) (Invocation, error) {
	inv := Invocation{Key: key, Policy: p, Tokens: tokens}
	if err := inv.Validate(); err != nil {
		return Invocation{}, err
	}
	return inv, nil
}

// Validate checks the invocation invariants.
func (inv Invocation) Validate() error {
	if err := inv.Policy.Validate(); err != nil {
		return err
	}
	if inv.Tokens <= 0 {
		return fmt.Errorf("%w: tokens must be positive, got %d", ErrInvalidArgument, inv.Tokens)
	}
	return nil
}

// StorageKey returns the key under which this invocation's state lives.
func (inv Invocation) StorageKey() string {
	return BuildKey(inv.Key, inv.Policy.Algorithm)
}
