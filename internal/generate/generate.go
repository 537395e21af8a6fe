// Package generate produces synthetic traffic files for replay.
package generate

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/SmitUplenchwar2687/Shield/internal/recorder"
)

const (
	// PatternSteady generates evenly distributed traffic.
	PatternSteady = "steady"
	// PatternBurst generates clustered bursts with quiet gaps.
	PatternBurst = "burst"
	// PatternRamp generates traffic density that increases over time.
	PatternRamp = "ramp"
)

// Patterns lists the supported traffic patterns.
var Patterns = []string{PatternSteady, PatternBurst, PatternRamp}

// DefaultEndpoints is the endpoint pool used when Options.Endpoints is empty.
var DefaultEndpoints = []string{
	"GET /api/users",
	"GET /api/search",
	"POST /api/orders",
	"POST /api/uploads",
	"PUT /api/settings",
}

const burstCount = 4

// Options controls how synthetic traffic is generated.
type Options struct {
	Count     int
	Keys      int
	Duration  time.Duration
	Pattern   string
	Start     time.Time
	Seed      int64
	Endpoints []string
	// MaxTokens > 1 draws each record's cost uniformly from [1, MaxTokens].
	MaxTokens int64
}

// DefaultOptions returns the CLI defaults.
func DefaultOptions() Options {
	return Options{
		Count:     100,
		Keys:      3,
		Duration:  5 * time.Minute,
		Pattern:   PatternSteady,
		MaxTokens: 1,
	}
}

// GenerateTraffic creates synthetic traffic records, sorted by timestamp
// for steady and ramp patterns and grouped by burst otherwise.
func GenerateTraffic(opts Options) ([]recorder.TrafficRecord, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	if opts.Keys <= 0 {
		return nil, fmt.Errorf("keys must be positive, got %d", opts.Keys)
	}
	if opts.Duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", opts.Duration)
	}
	if opts.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens must not be negative, got %d", opts.MaxTokens)
	}

	if opts.Pattern == "" {
		opts.Pattern = PatternSteady
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().Truncate(time.Second)
	}
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = DefaultEndpoints
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	g := &generator{
		rng:  rand.New(rand.NewSource(opts.Seed)),
		opts: opts,
		keys: makeUserKeys(opts.Keys),
	}

	switch opts.Pattern {
	case PatternSteady:
		return g.steady(), nil
	case PatternBurst:
		return g.burst(), nil
	case PatternRamp:
		return g.ramp(), nil
	default:
		return nil, fmt.Errorf("unknown pattern %q, must be one of: %v", opts.Pattern, Patterns)
	}
}

func makeUserKeys(numKeys int) []string {
	userKeys := make([]string, numKeys)
	for i := range userKeys {
		userKeys[i] = fmt.Sprintf("user-%d", i+1)
	}
	return userKeys
}

type generator struct {
	rng  *rand.Rand
	opts Options
	keys []string
}

func (g *generator) record(at time.Time) recorder.TrafficRecord {
	rec := recorder.TrafficRecord{
		Timestamp: at,
		Key:       g.keys[g.rng.Intn(len(g.keys))],
		Endpoint:  g.opts.Endpoints[g.rng.Intn(len(g.opts.Endpoints))],
	}
	if g.opts.MaxTokens > 1 {
		rec.Tokens = 1 + g.rng.Int63n(g.opts.MaxTokens)
	}
	return rec
}

func (g *generator) steady() []recorder.TrafficRecord {
	interval := g.opts.Duration / time.Duration(g.opts.Count)
	records := make([]recorder.TrafficRecord, g.opts.Count)
	for i := range records {
		records[i] = g.record(g.opts.Start.Add(time.Duration(i) * interval))
	}
	return records
}

func (g *generator) burst() []recorder.TrafficRecord {
	count, dur := g.opts.Count, g.opts.Duration
	records := make([]recorder.TrafficRecord, 0, count)
	burstSize := count / burstCount
	burstGap := dur / burstCount

	for b := 0; b < burstCount; b++ {
		burstStart := g.opts.Start.Add(time.Duration(b) * burstGap)
		for i := 0; i < burstSize; i++ {
			// Requests within a burst land inside one second.
			offset := time.Duration(g.rng.Intn(1000)) * time.Millisecond
			records = append(records, g.record(burstStart.Add(offset)))
		}
	}

	for len(records) < count {
		records = append(records, g.record(g.opts.Start.Add(time.Duration(g.rng.Int63n(int64(dur))))))
	}
	return records
}

// ramp spaces record i at (i/count)^2 of the duration, so density grows
// towards the end.
func (g *generator) ramp() []recorder.TrafficRecord {
	count := g.opts.Count
	records := make([]recorder.TrafficRecord, 0, count)
	for i := 0; i < count; i++ {
		frac := float64(i) / float64(count)
		records = append(records, g.record(g.opts.Start.Add(time.Duration(frac*frac*float64(g.opts.Duration)))))
	}
	return records
}
