package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sandeepkv93/medremind/internal/config"
	"github.com/sandeepkv93/medremind/internal/logging"
	"github.com/sandeepkv93/medremind/internal/metrics"
	"github.com/sandeepkv93/medremind/internal/prescriptions"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/storage"
)

// app holds the wired process: config, logger, storage, and a runner whose
// scheduler was restored from the last persisted snapshot.
type app struct {
	cfg      *config.Config
	log      logging.Logger
	repo     *storage.SQLiteRepository
	registry *prometheus.Registry
	metrics  *metrics.Collector
	source   *prescriptions.FileSource
	runner   *scheduler.Runner
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.NewLogger(cfg.LoggingConfig())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	repo, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	sched := scheduler.New(cfg.SchedulerOptions())
	restore(ctx, sched, repo, log)

	registry := prometheus.NewRegistry()
	collector := metrics.New(registry)
	source := prescriptions.NewFileSource(cfg.PrescriptionsPath, log.Named("prescriptions"), collector)

	runnerOpts := []scheduler.RunnerOption{
		scheduler.WithStore(repo),
		scheduler.WithObserver(collector),
		scheduler.WithLogger(log.Named("scheduler")),
	}
	if !opts.Now.IsZero() {
		fixed := opts.Now
		runnerOpts = append(runnerOpts, scheduler.WithClock(func() time.Time { return fixed }))
	}

	return &app{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		registry: registry,
		metrics:  collector,
		source:   source,
		runner:   scheduler.NewRunner(sched, source, cfg.RunnerConfig(), runnerOpts...),
	}, nil
}

// restore loads the persisted queue and ledger. Unreadable state starts the
// device empty; the next generation pass rebuilds today's queue.
func restore(ctx context.Context, sched *scheduler.Scheduler, repo storage.Repository, log logging.Logger) {
	queue, err := repo.LoadQueue(ctx)
	if err != nil {
		log.Warn("discarding persisted queue", logging.Err(err))
		queue = nil
	}
	ledger, err := repo.LoadLedger(ctx)
	if err != nil {
		log.Warn("discarding persisted ledger", logging.Err(err))
		ledger = nil
	}
	skipped := sched.Restore(scheduler.Snapshot{Queue: queue, Ledger: ledger})
	if skipped > 0 {
		log.Warn("skipped invalid persisted reminders", logging.Int("count", skipped))
	}
	log.Info("state restored",
		logging.Int("queued", len(queue)-skipped),
		logging.Int("ledger", len(ledger)),
	)
}

func (a *app) Close() error {
	a.runner.Stop()
	err := a.repo.Close()
	_ = a.log.Sync()
	return err
}
