package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/folio-agent/folio/internal/agent"
	"github.com/folio-agent/folio/internal/api"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.OutOrStdout(), flags.configPath)
		},
	}
}

// runServe starts the API server and blocks until SIGINT or SIGTERM,
// then drains in-flight requests.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setupLogger(stdout, configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			logger.Warn("shutdown cleanup failed", "error", err)
		}
	}()

	watch := a.watchServices(ctx)
	defer watch.Stop()

	deps := api.Deps{
		Agent:    a.loop,
		Guard:    a.guard,
		Tools:    a.registry,
		Services: watch,
		Demo:     cfg.DemoMode,
		Logger:   logger,
	}
	if a.usage != nil {
		deps.Usage = a.usage
	}
	srv := api.NewServer(cfg.Listen, cfg.Server, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), flags, strings.Join(args, " "))
		},
	}
}

// runAsk sends one question through the same guards and loop as the
// HTTP API and prints the reply. Logs go to stderr so stdout carries
// only the answer.
func runAsk(ctx context.Context, stdout, stderr io.Writer, flags *globalFlags, question string) error {
	cfg, logger, err := setupLogger(stderr, flags.configPath)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.guard.Check(ctx, question, nil); err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	resp, err := a.loop.Run(ctx, &agent.Request{Message: question})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	if flags.output == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	fmt.Fprintln(stdout, resp.Reply)
	return nil
}

func newToolsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools offered to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTools(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), flags)
		},
	}
}

func runTools(ctx context.Context, stdout, stderr io.Writer, flags *globalFlags) error {
	cfg, logger, err := setupLogger(stderr, flags.configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if flags.output == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a.registry.Definitions())
	}
	for _, name := range a.registry.Names() {
		desc, _, _ := strings.Cut(a.registry.Get(name).Description, "\n")
		fmt.Fprintf(stdout, "%-32s %s\n", name, desc)
	}
	return nil
}
