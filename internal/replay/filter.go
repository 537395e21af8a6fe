package replay

import (
	"slices"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/recorder"
)

// Filter selects the traffic records a replay runs. Zero fields match
// everything.
type Filter struct {
	Keys      []string  // exact keys
	Endpoints []string  // substrings of the endpoint
	After     time.Time // exclusive lower bound
	Before    time.Time // exclusive upper bound
	MaxTokens int64     // drop records asking for more than this
}

// Match returns true if the record passes the filter.
func (f Filter) Match(r recorder.TrafficRecord) bool {
	if len(f.Keys) > 0 && !slices.Contains(f.Keys, r.Key) {
		return false
	}
	if len(f.Endpoints) > 0 && !matchEndpoint(f.Endpoints, r.Endpoint) {
		return false
	}
	if !f.After.IsZero() && !r.Timestamp.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !r.Timestamp.Before(f.Before) {
		return false
	}
	if f.MaxTokens > 0 && r.Cost() > f.MaxTokens {
		return false
	}
	return true
}

func matchEndpoint(patterns []string, endpoint string) bool {
	for _, p := range patterns {
		if strings.Contains(endpoint, p) {
			return true
		}
	}
	return false
}
