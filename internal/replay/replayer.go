package replay

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
	"github.com/SmitUplenchwar2687/Shield/internal/limiter"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/recorder"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// Replayer replays recorded traffic through one policy in a sandbox: a
// fresh memory store driven by a virtual clock that starts at the first
// record and jumps to each following timestamp.
type Replayer struct {
	records []recorder.TrafficRecord
	policy  policy.Policy
	filter  Filter
	speed   float64 // 1.0 = real-time, 10.0 = 10x, 0 = instant
}

// Result captures the outcome of replaying a single record.
type Result = recorder.DecisionEvent

// Summary aggregates replay statistics.
type Summary struct {
	TotalRecords int                   `json:"total_records"`
	Filtered     int                   `json:"filtered"`
	Replayed     int                   `json:"replayed"`
	Allowed      int                   `json:"allowed"`
	Denied       int                   `json:"denied"`
	Duration     time.Duration         `json:"duration"`      // virtual time span
	WallDuration time.Duration         `json:"wall_duration"` // actual wall clock time
	PerKey       map[string]KeySummary `json:"per_key"`
}

// KeySummary has per-key stats.
type KeySummary struct {
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

// New creates a replayer for p.
func New(p policy.Policy, speed float64, filter Filter) (*Replayer, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if speed < 0 {
		speed = 0
	}
	return &Replayer{
		policy: p,
		speed:  speed,
		filter: filter,
	}, nil
}

// Load reads traffic records from a JSON reader.
func (r *Replayer) Load(reader io.Reader) error {
	records, err := recorder.LoadJSON(reader)
	if err != nil {
		return fmt.Errorf("loading records: %w", err)
	}
	r.records = records
	return nil
}

// LoadRecords sets the records directly.
func (r *Replayer) LoadRecords(records []recorder.TrafficRecord) {
	r.records = make([]recorder.TrafficRecord, len(records))
	copy(r.records, records)
}

// Run replays all loaded records in timestamp order. cb, if set, receives
// every decision. A failed invocation stops the run and is returned with
// the summary so far.
func (r *Replayer) Run(ctx context.Context, cb func(Result)) (*Summary, error) {
	if len(r.records) == 0 {
		return nil, fmt.Errorf("no records loaded")
	}

	sorted := make([]recorder.TrafficRecord, len(r.records))
	copy(sorted, r.records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var filtered []recorder.TrafficRecord
	for _, rec := range sorted {
		if r.filter.Match(rec) {
			filtered = append(filtered, rec)
		}
	}

	summary := &Summary{
		TotalRecords: len(sorted),
		Filtered:     len(filtered),
		PerKey:       make(map[string]KeySummary),
	}
	if len(filtered) == 0 {
		return summary, nil
	}

	baseTime := filtered[0].Timestamp
	vc := clock.NewVirtualClock(baseTime)
	exec, err := limiter.NewExecutor(storage.NewMemoryStorage(vc), limiter.WithClock(vc))
	if err != nil {
		return nil, err
	}

	wallStart := time.Now()
	for i, rec := range filtered {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if i > 0 {
			if gap := rec.Timestamp.Sub(filtered[i-1].Timestamp); gap > 0 {
				if err := r.pace(ctx, gap); err != nil {
					return summary, err
				}
				vc.Advance(gap)
			}
		}

		d, err := exec.Execute(ctx, policy.Invocation{Key: rec.Key, Policy: r.policy, Tokens: rec.Cost()})
		if err != nil {
			return summary, fmt.Errorf("replaying record %d (key %q): %w", i, rec.Key, err)
		}

		summary.Replayed++
		ks := summary.PerKey[rec.Key]
		if d.Allowed {
			summary.Allowed++
			ks.Allowed++
		} else {
			summary.Denied++
			ks.Denied++
		}
		summary.PerKey[rec.Key] = ks

		if cb != nil {
			cb(Result{Record: rec, Decision: d})
		}
	}

	summary.Duration = filtered[len(filtered)-1].Timestamp.Sub(baseTime)
	summary.WallDuration = time.Since(wallStart)
	return summary, nil
}

// pace sleeps for gap scaled by the replay speed.
func (r *Replayer) pace(ctx context.Context, gap time.Duration) error {
	if r.speed <= 0 {
		return nil
	}
	scaled := time.Duration(float64(gap) / r.speed)
	if scaled <= time.Millisecond {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(scaled):
		return nil
	}
}
