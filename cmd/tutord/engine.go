package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tutord/internal/channel"
	"tutord/internal/config"
	"tutord/internal/logging"
)

func newEngineCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:    "engine",
		Short:  "Host the engine over stdin/stdout (NDJSON); spawned by serve in subprocess mode",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, fromParent, err := engineConfigFromEnv()
			if err != nil {
				return err
			}
			if !fromParent {
				if cfg, err = opts.resolve(cmd); err != nil {
					return err
				}
			}
			return runEngine(cmd.Context(), cfg)
		},
	}
}

// runEngine serves one engine on stdio. Stdout carries protocol frames only,
// so logs go to stderr where the parent collects them.
func runEngine(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log := logging.Setup(logging.Config{Level: cfg.LogLevel, Out: os.Stderr})
	tax, err := cfg.BuildTaxonomy()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	e := newEngine(cfg, tax, log)
	conn := channel.NewStreamEngineConn(os.Stdin, os.Stdout)
	defer conn.Close()
	if err := e.Serve(ctx, conn); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engine stopped")
		return err
	}
	return nil
}
