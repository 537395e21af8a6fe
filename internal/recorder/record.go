package recorder

import (
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/limiter"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
)

// TrafficRecord is one admission request as seen at the edge.
type TrafficRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	Key       string            `json:"key"`                // user id, API key, client IP
	Tokens    int64             `json:"tokens,omitempty"`   // 0 means policy.DefaultTokens
	Endpoint  string            `json:"endpoint,omitempty"` // e.g. "GET /api/absorb/user1"
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Cost returns the number of tokens the record asks for.
func (r TrafficRecord) Cost() int64 {
	if r.Tokens <= 0 {
		return policy.DefaultTokens
	}
	return r.Tokens
}

// DecisionEvent pairs a traffic record with the decision it produced.
// It is the unit streamed over the websocket feed and printed by replay.
type DecisionEvent struct {
	Record   TrafficRecord    `json:"record"`
	Decision limiter.Decision `json:"decision"`
}

// NewDecisionEvent derives the record from the decision itself.
func NewDecisionEvent(d limiter.Decision, endpoint string) DecisionEvent {
	return DecisionEvent{
		Record: TrafficRecord{
			Timestamp: d.Timestamp,
			Key:       d.Key,
			Tokens:    d.Tokens,
			Endpoint:  endpoint,
		},
		Decision: d,
	}
}
