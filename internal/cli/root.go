package cli

import (
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Shield/internal/config"
	"github.com/SmitUplenchwar2687/Shield/internal/logging"
)

// rootOptions carries the persistent flags and the config they resolve to.
// Subcommands read cfg after PersistentPreRunE has run.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
}

// NewRootCmd creates the root shield command.
func NewRootCmd() *cobra.Command {
	ro := &rootOptions{cfg: config.Default()}

	root := &cobra.Command{
		Use:   "shield",
		Short: "Admission control with four rate limiting algorithms",
		Long: `Shield decides whether a request identified by a key conforms to a rate
limit and, if so, records the consumption. Token bucket, leaky bucket,
fixed window and sliding window share one store, in memory or in Redis.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ro.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&ro.configPath, "config", "", "path to a YAML or JSON config file")
	root.PersistentFlags().StringVar(&ro.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&ro.logFormat, "log-format", "console", "log format (console, json)")

	root.AddCommand(
		newAbsorbCmd(ro),
		newServerCmd(ro),
		newTestCmd(ro),
		newReplayCmd(ro),
		newGenerateCmd(),
	)

	return root
}

func (ro *rootOptions) load(cmd *cobra.Command) error {
	if ro.configPath != "" {
		cfg, err := config.LoadFile(ro.configPath)
		if err != nil {
			return err
		}
		ro.cfg = cfg
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		ro.cfg.Log.Level = ro.logLevel
	}
	if flags.Changed("log-format") {
		ro.cfg.Log.Format = ro.logFormat
	}
	return logging.Setup(ro.cfg.Log.Level, ro.cfg.Log.Format)
}
