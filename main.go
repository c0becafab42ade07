package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"procwatch/config"
	"procwatch/logger"
	"procwatch/monitor"
	"procwatch/render"
	"procwatch/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "procwatch",
		Short:        "Sample CPU, memory and disk I/O usage of a single process",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newReportCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		pid      int32
		interval time.Duration
		duration time.Duration
		outPath  string
		logLevel string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture a sampling session against a process and render it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// Explicitly set flags win over env/file values.
			if cmd.Flags().Changed("pid") {
				cfg.PID = pid
			}
			if cmd.Flags().Changed("interval") {
				cfg.Interval = interval
			}
			if cmd.Flags().Changed("duration") {
				cfg.Duration = duration
			}
			if cmd.Flags().Changed("out") {
				cfg.OutPath = outPath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return runCapture(cmd.Context(), cfg)
		},
	}
	cmd.Flags().Int32Var(&pid, "pid", int32(os.Getpid()), "process id to observe")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between samples")
	cmd.Flags().DurationVar(&duration, "duration", 0, "total capture time (0 = until interrupted)")
	cmd.Flags().StringVar(&outPath, "out", "", "SQLite file to persist the session to")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	return cmd
}

func runCapture(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("set up logger: %w", err)
	}
	defer logger.Flush(log)

	mon, err := monitor.New(cfg.PID, cfg.Interval, monitor.WithLogger(log))
	if err != nil {
		return err
	}
	if err := mon.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if cfg.Duration > 0 {
		select {
		case <-time.After(cfg.Duration):
		case sig := <-sigCh:
			log.Info("interrupted", zap.String("signal", sig.String()))
		}
	} else {
		sig := <-sigCh
		log.Info("interrupted", zap.String("signal", sig.String()))
	}

	stopErr := mon.Stop()
	hist := mon.History()
	if stopErr != nil {
		// The observed process vanished; whatever was captured before that
		// is still worth rendering and persisting.
		log.Warn("session ended early", zap.Error(stopErr))
	}

	// Rendering happens after Stop, from the finalized history, so stdout
	// has exactly one writer.
	if err := render.Table(os.Stdout, hist); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	if err := render.Sparklines(os.Stdout, hist); err != nil {
		return err
	}

	if cfg.OutPath != "" {
		store, err := storage.NewSQLite(cfg.OutPath, log)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()
		if err := store.Save(ctx, hist); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		log.Info("session persisted",
			zap.String("path", cfg.OutPath),
			zap.Int("samples", len(hist)))
	}

	return stopErr
}

func newReportCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "report <session.db>",
		Short: "Render a previously persisted sampling session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(logLevel)
			if err != nil {
				return fmt.Errorf("set up logger: %w", err)
			}
			defer logger.Flush(log)

			store, err := storage.NewSQLite(args[0], log)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer store.Close()

			hist, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load session: %w", err)
			}

			if err := render.Table(os.Stdout, hist); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout)
			return render.Sparklines(os.Stdout, hist)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "debug|info|warn|error")
	return cmd
}
