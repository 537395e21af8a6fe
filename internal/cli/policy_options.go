package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Shield/internal/config"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
)

type policyOptions struct {
	algorithm string
	capacity  int64
	period    time.Duration
	tokens    int64
}

func (o *policyOptions) addFlags(cmd *cobra.Command) {
	def := config.Default().Policy
	cmd.Flags().StringVar(&o.algorithm, "algorithm", def.DefaultAlgorithm.String(),
		"rate limiting algorithm (token_bucket, leaky_bucket, fixed_window, sliding_window)")
	cmd.Flags().Int64Var(&o.capacity, "capacity", def.Capacity, "units admitted per period")
	cmd.Flags().DurationVar(&o.period, "period", def.Period, "refill period or window length")
	cmd.Flags().Int64Var(&o.tokens, "tokens", def.Tokens, "units consumed per request")
}

// apply overrides cfg with every flag the user set explicitly.
func (o *policyOptions) apply(cmd *cobra.Command, cfg *config.PolicyConfig) error {
	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		a, err := policy.ParseAlgorithm(o.algorithm)
		if err != nil {
			return fmt.Errorf("--algorithm: %w", err)
		}
		cfg.DefaultAlgorithm = a
	}
	if flags.Changed("capacity") {
		cfg.Capacity = o.capacity
	}
	if flags.Changed("period") {
		cfg.Period = o.period
	}
	if flags.Changed("tokens") {
		cfg.Tokens = o.tokens
	}
	return nil
}
