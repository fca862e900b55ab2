// SPDX-License-Identifier: EPL-2.0

// Command audstream probes audio drivers, plays files and tones through
// them, and converts audio files to WAV.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ik5/audstream/internal/config"
	"github.com/ik5/audstream/internal/logging"
	"github.com/ik5/audstream/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app carries the options shared by every subcommand.
type app struct {
	opts    config.Options
	logger  *slog.Logger
	metrics *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{opts: config.Default()}

	root := &cobra.Command{
		Use:                "audstream",
		Short:              "Real-time audio streams over pluggable drivers",
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	config.RegisterFlags(root.PersistentFlags(), &a.opts)

	root.AddCommand(
		a.probeCmd(),
		a.toneCmd(),
		a.playCmd(),
		a.convertCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadConfig(&a.opts, cmd); err != nil {
		return err
	}

	logging.SetOutput(cmd.ErrOrStderr())
	logging.Initialize(a.opts.Logging())
	a.logger = logging.GetLogger("cli")

	if a.opts.MetricsAddr != "" {
		a.metrics = metrics.NewServer(a.opts.MetricsAddr)
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server stopped", "error", err)
			}
		}()
		a.logger.Info("serving metrics", "addr", a.opts.MetricsAddr)
	}
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	if a.metrics == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.metrics.Shutdown(ctx)
}
