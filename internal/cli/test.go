package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
	"github.com/SmitUplenchwar2687/Shield/internal/limiter"
	"github.com/SmitUplenchwar2687/Shield/internal/recorder"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

func newTestCmd(ro *rootOptions) *cobra.Command {
	var (
		policyOpts  policyOptions
		requests    int
		keys        []string
		fastForward time.Duration
		outputJSON  bool
		recordFile  string
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run rate limit test scenarios with time travel",
		Long: `Runs admission decisions against a virtual clock and an in-memory store,
so you can fast-forward time without waiting. This lets you verify
limiter behavior over hours or days in seconds.

The test sends a batch of requests, optionally fast-forwards time,
then sends another batch to show how limits recover.`,
		Example: `  shield test --requests 20 --capacity 10 --period 1m
  shield test --algorithm sliding_window --capacity 5 --period 30s --fast-forward 1m
  shield test --keys user1,user2 --requests 15 --json
  shield test --requests 50 --record traffic.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.cfg
			if err := policyOpts.apply(cmd, &cfg.Policy); err != nil {
				return err
			}
			if err := cfg.Policy.Policy().Validate(); err != nil {
				return err
			}
			if requests <= 0 {
				return fmt.Errorf("--requests must be positive, got %d", requests)
			}
			if len(keys) == 0 {
				keys = []string{"test-user"}
			}

			vc := clock.NewVirtualClock(time.Now().Truncate(time.Second))
			opts := []limiter.Option{limiter.WithClock(vc)}
			var rec *recorder.Recorder
			if recordFile != "" {
				rec = recorder.New(nil)
				opts = append(opts, limiter.WithObserver(rec))
			}

			exec, err := limiter.NewExecutor(storage.NewMemoryStorage(vc), opts...)
			if err != nil {
				return err
			}
			lim, err := limiter.NewPolicyLimiter(exec, cfg.Policy.Policy(), cfg.Policy.Tokens)
			if err != nil {
				return err
			}

			result, err := runTest(cmd.Context(), vc, lim, keys, requests, fastForward)
			if err != nil {
				return err
			}

			if rec != nil {
				if err := rec.ExportFile(recordFile); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			printTestResult(out, &result)
			if rec != nil {
				fmt.Fprintf(out, "\nRecorded %d requests to %s\n", rec.Len(), recordFile)
			}
			return nil
		},
	}

	policyOpts.addFlags(cmd)
	cmd.Flags().IntVar(&requests, "requests", 15, "number of requests to send per batch")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "comma-separated rate limit keys to test")
	cmd.Flags().DurationVar(&fastForward, "fast-forward", 0, "time to fast-forward between batches")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	cmd.Flags().StringVar(&recordFile, "record", "", "write every request to a replayable traffic file")

	return cmd
}

// TestResult captures the full output of a test run.
type TestResult struct {
	Algorithm   string             `json:"algorithm"`
	Capacity    int64              `json:"capacity"`
	Period      string             `json:"period"`
	Tokens      int64              `json:"tokens"`
	FastForward string             `json:"fast_forward,omitempty"`
	Batches     []BatchResult      `json:"batches"`
	Summary     map[string]Summary `json:"summary"`
}

// BatchResult captures results for one batch of requests.
type BatchResult struct {
	Label     string             `json:"label"`
	Time      string             `json:"time"`
	Decisions []limiter.Decision `json:"decisions"`
}

// Summary aggregates stats per key.
type Summary struct {
	TotalRequests int `json:"total_requests"`
	Allowed       int `json:"allowed"`
	Denied        int `json:"denied"`
}

func runTest(ctx context.Context, vc *clock.VirtualClock, lim *limiter.PolicyLimiter, keys []string, requests int, fastForward time.Duration) (TestResult, error) {
	p := lim.Policy()
	result := TestResult{
		Algorithm: p.Algorithm.String(),
		Capacity:  p.Capacity,
		Period:    p.Period().String(),
		Tokens:    lim.Tokens(),
		Summary:   make(map[string]Summary),
	}

	batch := func(label string) error {
		b := BatchResult{Label: label, Time: vc.Now().Format(time.RFC3339)}
		for i := 0; i < requests; i++ {
			for _, key := range keys {
				d, err := lim.Allow(ctx, key)
				if err != nil {
					return err
				}
				b.Decisions = append(b.Decisions, d)

				s := result.Summary[key]
				s.TotalRequests++
				if d.Allowed {
					s.Allowed++
				} else {
					s.Denied++
				}
				result.Summary[key] = s
			}
		}
		result.Batches = append(result.Batches, b)
		return nil
	}

	if err := batch("Initial requests"); err != nil {
		return result, err
	}

	if fastForward > 0 {
		vc.Advance(fastForward)
		result.FastForward = fastForward.String()
		if err := batch(fmt.Sprintf("After fast-forward %s", fastForward)); err != nil {
			return result, err
		}
	}

	return result, nil
}

func printTestResult(w io.Writer, r *TestResult) {
	fmt.Fprintln(w, "=== Shield Rate Limit Test ===")
	fmt.Fprintf(w, "%s: capacity %d per %s, %d token(s) per request\n\n", r.Algorithm, r.Capacity, r.Period, r.Tokens)

	for _, batch := range r.Batches {
		fmt.Fprintf(w, "--- %s (at %s) ---\n", batch.Label, batch.Time)
		for i, d := range batch.Decisions {
			status := "ALLOW"
			if !d.Allowed {
				status = "DENY "
			}
			fmt.Fprintf(w, "  #%03d [%s] key=%s remaining=%d/%d\n",
				i+1, status, d.Key, d.Remaining, d.Capacity)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "--- Summary ---")
	for key, s := range r.Summary {
		fmt.Fprintf(w, "  %s: %d total, %d allowed, %d denied\n",
			key, s.TotalRequests, s.Allowed, s.Denied)
	}

	if r.FastForward != "" {
		fmt.Fprintf(w, "\nTime travel: fast-forwarded %s\n", r.FastForward)
	}

	hasDenials := false
	for _, batch := range r.Batches {
		for _, d := range batch.Decisions {
			if !d.Allowed {
				hasDenials = true
			}
		}
	}
	hasRecovery := false
	if len(r.Batches) > 1 {
		for _, d := range r.Batches[1].Decisions {
			if d.Allowed {
				hasRecovery = true
				break
			}
		}
	}
	if hasDenials && hasRecovery {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		fmt.Fprintln(w, "Time travel worked! Requests were denied, then")
		fmt.Fprintln(w, "allowed again after fast-forwarding the clock.")
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
}
