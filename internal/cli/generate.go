package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Shield/internal/config"
	"github.com/SmitUplenchwar2687/Shield/internal/generate"
)

func newGenerateCmd() *cobra.Command {
	var (
		trafficOutput string
		configOutput  string
		opts          = generate.DefaultOptions()
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate sample traffic files and config",
		Long: `Generates sample data for testing and experimentation.

Use "generate traffic" to create a sample traffic JSON file.
Use "generate config" to create an example YAML config file.`,
	}

	trafficCmd := &cobra.Command{
		Use:   "traffic",
		Short: "Generate a sample traffic JSON file",
		Long: `Creates a synthetic traffic file that "shield replay" can consume.

Patterns:
  steady    Evenly distributed requests
  burst     Concentrated bursts with quiet periods
  ramp      Gradually increasing request rate`,
		Example: `  shield generate traffic --output traffic.json --count 100 --keys 5
  shield generate traffic --output burst.json --count 200 --pattern burst --duration 10m
  shield generate traffic --max-tokens 5 --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := generate.GenerateTraffic(opts)
			if err != nil {
				return err
			}

			f, err := os.Create(trafficOutput)
			if err != nil {
				return fmt.Errorf("creating file: %w", err)
			}
			defer f.Close()

			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			if err := enc.Encode(records); err != nil {
				return fmt.Errorf("writing records: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %d traffic records to %s\n", len(records), trafficOutput)
			fmt.Fprintf(out, "  Keys:     %d\n", opts.Keys)
			fmt.Fprintf(out, "  Duration: %s\n", opts.Duration)
			fmt.Fprintf(out, "  Pattern:  %s\n", opts.Pattern)
			return nil
		},
	}

	trafficCmd.Flags().StringVar(&trafficOutput, "output", "traffic.json", "output file path")
	trafficCmd.Flags().IntVar(&opts.Count, "count", opts.Count, "number of records to generate")
	trafficCmd.Flags().IntVar(&opts.Keys, "keys", opts.Keys, "number of distinct user keys")
	trafficCmd.Flags().DurationVar(&opts.Duration, "duration", opts.Duration, "time span for generated traffic")
	trafficCmd.Flags().StringVar(&opts.Pattern, "pattern", opts.Pattern, "traffic pattern ("+strings.Join(generate.Patterns, ", ")+")")
	trafficCmd.Flags().Int64Var(&opts.MaxTokens, "max-tokens", opts.MaxTokens, "draw each request's cost from 1 to this value")
	trafficCmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0 = time based)")

	configCmd := &cobra.Command{
		Use:     "config",
		Short:   "Generate an example config file",
		Example: `  shield generate config --output shield.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteExample(configOutput); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated example config at %s\n", configOutput)
			return nil
		},
	}

	configCmd.Flags().StringVar(&configOutput, "output", "shield.yaml", "output file path")

	cmd.AddCommand(trafficCmd, configCmd)
	return cmd
}
