package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Shield/internal/replay"
)

func newReplayCmd(ro *rootOptions) *cobra.Command {
	var (
		file       string
		policyOpts policyOptions
		speed      float64
		keys       []string
		endpoints  []string
		after      string
		before     string
		maxTokens  int64
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded traffic through a policy",
		Long: `Replays previously recorded traffic through one policy with speed control.

Records are replayed in timestamp order against a fresh in-memory store.
The virtual clock advances to match the time gaps between records, so
decisions come out exactly as they would in production, at any speed.

Speed: 0 = instant, 1 = real-time, 10 = 10x, 100 = 100x`,
		Example: `  shield replay --file traffic.json
  shield replay --file traffic.json --speed 100 --algorithm sliding_window
  shield replay --file traffic.json --keys user1,user2 --endpoints /api
  shield replay --file traffic.json --after 2024-01-01T00:00:00Z --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}

			cfg := ro.cfg
			if err := policyOpts.apply(cmd, &cfg.Policy); err != nil {
				return err
			}

			filter := replay.Filter{
				Keys:      keys,
				Endpoints: endpoints,
				MaxTokens: maxTokens,
			}
			var err error
			if filter.After, err = parseTimeFlag("after", after); err != nil {
				return err
			}
			if filter.Before, err = parseTimeFlag("before", before); err != nil {
				return err
			}

			r, err := replay.New(cfg.Policy.Policy(), speed, filter)
			if err != nil {
				return err
			}

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening file: %w", err)
			}
			defer f.Close()
			if err := r.Load(f); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !outputJSON {
				fmt.Fprintf(out, "Replaying %s through %s at %.0fx speed...\n\n", file, cfg.Policy.DefaultAlgorithm, speed)
			}

			var results []replay.Result
			summary, err := r.Run(cmd.Context(), func(res replay.Result) {
				if outputJSON {
					results = append(results, res)
					return
				}
				status := "ALLOW"
				if !res.Decision.Allowed {
					status = "DENY "
				}
				fmt.Fprintf(out, "  [%s] %s key=%s tokens=%d remaining=%d/%d\n",
					status,
					res.Record.Timestamp.Format("15:04:05"),
					res.Record.Key,
					res.Decision.Tokens,
					res.Decision.Remaining,
					res.Decision.Capacity)
			})
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"results": results,
					"summary": summary,
				})
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "--- Replay Summary ---")
			fmt.Fprintf(out, "  Total records:  %d\n", summary.TotalRecords)
			fmt.Fprintf(out, "  Filtered:       %d\n", summary.Filtered)
			fmt.Fprintf(out, "  Replayed:       %d\n", summary.Replayed)
			fmt.Fprintf(out, "  Allowed:        %d\n", summary.Allowed)
			fmt.Fprintf(out, "  Denied:         %d\n", summary.Denied)
			fmt.Fprintf(out, "  Virtual time:   %s\n", summary.Duration)
			fmt.Fprintf(out, "  Wall time:      %s\n", summary.WallDuration.Round(time.Millisecond))

			if len(summary.PerKey) > 1 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "  Per key:")
				for key, ks := range summary.PerKey {
					fmt.Fprintf(out, "    %s: %d allowed, %d denied\n", key, ks.Allowed, ks.Denied)
				}
			}

			if summary.Denied > 0 && summary.Allowed > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.Repeat("=", 50))
				denyRate := float64(summary.Denied) / float64(summary.Replayed) * 100
				fmt.Fprintf(out, "Deny rate: %.1f%% (%d/%d requests denied)\n", denyRate, summary.Denied, summary.Replayed)
				fmt.Fprintln(out, strings.Repeat("=", 50))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to recorded traffic JSON file (required)")
	policyOpts.addFlags(cmd)
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay speed (0=instant, 1=real-time, 10=10x)")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "filter by keys (comma-separated)")
	cmd.Flags().StringSliceVar(&endpoints, "endpoints", nil, "filter by endpoint substrings (comma-separated)")
	cmd.Flags().StringVar(&after, "after", "", "only replay records after this RFC3339 time")
	cmd.Flags().StringVar(&before, "before", "", "only replay records before this RFC3339 time")
	cmd.Flags().Int64Var(&maxTokens, "max-tokens", 0, "skip records costing more than this many tokens (0 = no limit)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

func parseTimeFlag(name, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}
