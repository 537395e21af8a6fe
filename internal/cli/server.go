package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
	"github.com/SmitUplenchwar2687/Shield/internal/recorder"
	"github.com/SmitUplenchwar2687/Shield/internal/server"
)

func newServerCmd(ro *rootOptions) *cobra.Command {
	var (
		addr        string
		recordFile  string
		policyOpts  policyOptions
		storageOpts storageOptions
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the Shield HTTP server",
		Long: `Starts an HTTP server that runs admission decisions.

Endpoints:
  GET  /                  Server info
  GET  /health            Health check
  POST /api/absorb        Decide {"args":[...]} or {"key":...,"capacity":...}
  GET  /api/absorb/:key   Decide for key (?capacity=&period=&tokens=&algorithm=)
  WS   /ws                Live decision feed

Denied requests get 429, invalid ones 400, and store failures 503.`,
		Example: `  shield server
  shield server --addr :9090 --algorithm sliding_window --capacity 100 --period 1m
  shield server --storage redis --redis-host localhost:6379
  shield server --record traffic.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if err := policyOpts.apply(cmd, &cfg.Policy); err != nil {
				return err
			}
			if err := storageOpts.resolve(cmd, &cfg); err != nil {
				return err
			}

			clk := clock.NewRealClock()
			exec, backend, err := openExecutor(cfg, clk)
			if err != nil {
				return err
			}
			defer backend.Close()

			opts := server.Options{
				Policy: cfg.Policy.Policy(),
				Tokens: cfg.Policy.Tokens,
				Hub:    server.NewHub(),
				Clock:  clk,
			}
			if recordFile != "" {
				opts.Recorder = recorder.New(nil)
			}

			srv := server.New(cfg.Server.Addr, exec, opts)
			log.Info().
				Str("storage", cfg.Storage.Backend).
				Str("algorithm", cfg.Policy.DefaultAlgorithm.String()).
				Int64("capacity", cfg.Policy.Capacity).
				Dur("period", cfg.Policy.Period).
				Msg("admission policy")

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info().Msg("shutting down")
				if opts.Recorder != nil {
					log.Info().Int("records", opts.Recorder.Len()).Str("file", recordFile).Msg("exporting traffic")
					if err := opts.Recorder.ExportFile(recordFile); err != nil {
						log.Error().Err(err).Msg("exporting traffic failed")
					}
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&recordFile, "record", "", "record traffic to JSON file (exported on shutdown)")
	policyOpts.addFlags(cmd)
	storageOpts.addFlags(cmd)

	return cmd
}
