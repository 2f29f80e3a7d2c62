package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tutord/internal/config"
	"tutord/internal/dispatcher"
	"tutord/internal/httpapi"
	"tutord/internal/logging"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		addr        string
		corsOrigins string
		warm        bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("cors-origins") {
				cfg.CORSOrigins = splitCSV(corsOrigins)
			}
			return runServe(cfg, warm)
		},
	}
	defAddr := ":8080"
	if v := os.Getenv("TUTORD_ADDR"); v != "" {
		defAddr = v
	}
	cmd.Flags().StringVar(&addr, "addr", defAddr, "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	cmd.Flags().BoolVar(&warm, "warm", false, "Start the engine at boot instead of on the first request")
	return cmd
}

func runServe(cfg config.Config, warm bool) error {
	log := logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	events := dispatcher.NewBroadcaster()
	d, err := newDispatcher(cfg, log, events)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpapi.SetLogger(log)
	httpapi.SetBaseContext(ctx)
	httpapi.SetCORSOptions(len(cfg.CORSOrigins) > 0, cfg.CORSOrigins, nil, nil)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(d, events),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if warm {
		go func() {
			if err := d.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("engine warmup failed; will retry on first request")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("backend", cfg.Backend).Str("engine_mode", cfg.EngineMode).
			Bool("swagger", httpapi.SwaggerEnabled()).Msg("tutord listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
