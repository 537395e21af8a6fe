package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
	"github.com/SmitUplenchwar2687/Shield/internal/config"
	"github.com/SmitUplenchwar2687/Shield/internal/limiter"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

func newAbsorbCmd(ro *rootOptions) *cobra.Command {
	var (
		storageOpts storageOptions
		outputJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "absorb <key> <capacity> <period_seconds> [tokens] [ALGORITHM name]",
		Short: "Run one admission decision against the configured store",
		Long: `Decides a single request and prints the result: the units remaining
after consumption, or -1 when the request is denied.

The algorithm defaults to policy.default_algorithm from the config.`,
		Example: `  shield absorb user1 30 60
  shield absorb user1 30 60 13
  shield absorb user1 5 10 ALGORITHM fixed_window
  shield absorb user1 100 60 2 ALGORITHM sliding_window --storage redis`,
		Args: cobra.RangeArgs(3, 6),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.cfg
			if err := storageOpts.resolve(cmd, &cfg); err != nil {
				return err
			}

			exec, backend, err := openExecutor(cfg, clock.NewRealClock())
			if err != nil {
				return err
			}
			defer backend.Close()

			d, err := exec.Absorb(cmd.Context(), append([]string{policy.CommandName}, args...))
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Result)
			return nil
		},
	}

	storageOpts.addFlags(cmd)
	cmd.Flags().BoolVar(&outputJSON, "json", false, "print the full decision as JSON")

	return cmd
}

// openExecutor opens the configured backend and builds an executor over it.
// The caller owns the backend.
func openExecutor(cfg config.Config, clk clock.Clock, opts ...limiter.Option) (*limiter.Executor, storage.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	backend, err := storage.Open(cfg.Storage, clk)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}

	opts = append([]limiter.Option{
		limiter.WithClock(clk),
		limiter.WithDefaultAlgorithm(cfg.Policy.DefaultAlgorithm),
	}, opts...)
	exec, err := limiter.NewExecutor(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return exec, backend, nil
}
