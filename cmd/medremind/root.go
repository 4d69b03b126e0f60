package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/medremind/internal/config"
	"github.com/sandeepkv93/medremind/internal/logging"
	"github.com/sandeepkv93/medremind/internal/metrics"
	"github.com/sandeepkv93/medremind/internal/prescriptions"
	"github.com/sandeepkv93/medremind/internal/update"
)

type rootOptions struct {
	ConfigPath        string
	DBPath            string
	PrescriptionsPath string
	LogLevel          string
	NowText           string
	Now               time.Time
}

// apply lets flags override file and environment values.
func (o *rootOptions) apply(cfg *config.Config) {
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.PrescriptionsPath != "" {
		cfg.PrescriptionsPath = o.PrescriptionsPath
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "medremind",
		Short: "Medication reminder device",
		Long:  "medremind turns synced prescriptions into a deduplicated, time-ordered queue of\nmedication reminders and walks each one through display, defer, and completion.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.NowText == "" {
				return nil
			}
			now, err := time.Parse(time.RFC3339, opts.NowText)
			if err != nil {
				return fmt.Errorf("--now: %w", err)
			}
			opts.Now = now
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevice(cmd.Context(), opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", config.DefaultConfigPath, "config file path")
	pf.StringVar(&opts.DBPath, "db", "", "SQLite database path (overrides db_path)")
	pf.StringVar(&opts.PrescriptionsPath, "prescriptions", "", "prescriptions JSON path (overrides prescriptions_path)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.NowText, "now", "", "evaluate as of this RFC3339 instant instead of the wall clock")

	cmd.AddCommand(
		newGenerateCmd(opts),
		newQueueCmd(opts),
		newReportsCmd(opts),
		newPurgeCmd(opts),
	)
	return cmd
}

func runDevice(ctx context.Context, opts *rootOptions) error {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.runner.Start(ctx)

	if a.cfg.WatchPrescriptions {
		w := prescriptions.NewWatcher(a.cfg.PrescriptionsPath, 0, a.log.Named("watcher"), a.runner.Refresh)
		go func() {
			if err := w.Run(ctx); err != nil {
				a.log.Error("prescriptions watcher stopped", logging.Err(err))
			}
		}()
	}
	if a.cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.registry, a.log.Named("metrics")); err != nil {
				a.log.Error("metrics server stopped", logging.Err(err))
			}
		}()
	}

	var notifier update.DesktopNotifier = update.NoopDesktopNotifier{}
	if a.cfg.UI.DesktopNotifications {
		notifier = update.ExecDesktopNotifier{}
	}
	modelOpts := []update.Option{update.WithContext(ctx), update.WithNotifier(notifier)}
	if !opts.Now.IsZero() {
		fixed := opts.Now
		modelOpts = append(modelOpts, update.WithClock(func() time.Time { return fixed }))
	}
	model := update.NewModel(a.runner, update.Config{
		Clock24h:             a.cfg.UI.Clock24h,
		DesktopNotifications: a.cfg.UI.DesktopNotifications,
	}, modelOpts...)

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
