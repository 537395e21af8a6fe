package replay

import (
	internalreplay "github.com/SmitUplenchwar2687/Shield/internal/replay"
	"github.com/SmitUplenchwar2687/Shield/pkg/policy"
)

// Filter defines criteria for selecting traffic records during replay.
type Filter = internalreplay.Filter

// Replayer replays recorded traffic through one policy.
type Replayer = internalreplay.Replayer

// Result captures the outcome of replaying a single record.
type Result = internalreplay.Result

// Summary aggregates replay statistics.
type Summary = internalreplay.Summary

// KeySummary holds per-key replay stats.
type KeySummary = internalreplay.KeySummary

// New creates a replayer for p. Each Run gets its own memory store and
// virtual clock.
func New(p policy.Policy, speed float64, filter Filter) (*Replayer, error) {
	return internalreplay.New(p, speed, filter)
}
