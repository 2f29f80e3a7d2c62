package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tutord/internal/dispatcher"
	"tutord/internal/logging"
)

func newAskCmd(opts *globalOptions) *cobra.Command {
	var (
		classifyOnly bool
		maxTokens    int
		timeout      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ask [--classify-only] QUESTION",
		Short: "Classify a question and answer it once, then exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is required")
			}
			log := logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: true, Out: os.Stderr})
			d, err := newDispatcher(cfg, log)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runAsk(ctx, d, cmd, question, classifyOnly, dispatcher.Options{Timeout: timeout, MaxNewTokens: maxTokens})
		},
	}
	cmd.Flags().BoolVar(&classifyOnly, "classify-only", false, "Print the category and skip the answer")
	cmd.Flags().IntVar(&maxTokens, "tokens", 0, "Answer budget in tokens (clamped to the configured ceiling)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Liveness window per stage (default from config)")
	return cmd
}

// asker is the part of the dispatcher the ask command drives.
type asker interface {
	Classify(ctx context.Context, question string, opts dispatcher.Options) (string, error)
	Answer(ctx context.Context, question string, opts dispatcher.Options) (string, error)
}

func runAsk(ctx context.Context, d asker, cmd *cobra.Command, question string, classifyOnly bool, opts dispatcher.Options) error {
	out := cmd.OutOrStdout()
	category, err := d.Classify(ctx, question, dispatcher.Options{Timeout: opts.Timeout})
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	fmt.Fprintf(out, "category: %s\n", category)
	if classifyOnly {
		return nil
	}
	opts.Category = category
	answer, err := d.Answer(ctx, question, opts)
	if err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	fmt.Fprintf(out, "answer: %s\n", answer)
	return nil
}
