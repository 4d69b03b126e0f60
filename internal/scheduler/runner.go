package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/medremind/internal/logging"
	"github.com/sandeepkv93/medremind/internal/model"
)

var ErrRunnerStopped = errors.New("scheduler: runner stopped")

// Source supplies the current prescriptions. held lists prescription ids
// present upstream whose records were rejected; their reminders are kept.
type Source interface {
	Load(ctx context.Context) (prescriptions []model.Prescription, held []string, err error)
}

// Store persists scheduler state and the status-report outbox.
type Store interface {
	SaveQueue(ctx context.Context, reminders []model.Reminder) error
	SaveLedger(ctx context.Context, entries []model.LedgerEntry) error
	AppendStatusReport(ctx context.Context, report model.StatusReport) (model.StatusReport, error)
}

type Observer interface {
	ObserveEvent(Event)
	ObserveState(queued, ledger int)
	ObserveDropped()
}

type RunnerConfig struct {
	FastTick    time.Duration
	MediumTick  time.Duration
	SlowTick    time.Duration
	EventBuffer int
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		FastTick:    15 * time.Second,
		MediumTick:  30 * time.Minute,
		SlowTick:    24 * time.Hour,
		EventBuffer: 64,
	}
}

type RunnerOption func(*Runner)

func WithStore(s Store) RunnerOption { return func(r *Runner) { r.store = s } }

func WithObserver(o Observer) RunnerOption { return func(r *Runner) { r.observer = o } }

func WithLogger(l logging.Logger) RunnerOption { return func(r *Runner) { r.log = l } }

func WithClock(now func() time.Time) RunnerOption { return func(r *Runner) { r.now = now } }

// Runner drives a Scheduler from three tickers and from user actions. It
// reports terminal statuses, persists snapshots, and fans events out on C.
// Side effects run outside the scheduler lock.
type Runner struct {
	sched    *Scheduler
	source   Source
	store    Store
	observer Observer
	log      logging.Logger
	now      func() time.Time
	cfg      RunnerConfig

	mu        sync.Mutex
	persistMu sync.Mutex
	out       chan Event
	wakeup    chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
	dropped   uint64
}

func NewRunner(sched *Scheduler, source Source, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	def := DefaultRunnerConfig()
	if cfg.FastTick <= 0 {
		cfg.FastTick = def.FastTick
	}
	if cfg.MediumTick <= 0 {
		cfg.MediumTick = def.MediumTick
	}
	if cfg.SlowTick <= 0 {
		cfg.SlowTick = def.SlowTick
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1
	}
	r := &Runner{
		sched:  sched,
		source: source,
		log:    logging.NewNop(),
		now:    time.Now,
		cfg:    cfg,
		out:    make(chan Event, cfg.EventBuffer),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) C() <-chan Event {
	return r.out
}

func (r *Runner) Scheduler() *Scheduler {
	return r.sched
}

func (r *Runner) Snapshot() Snapshot {
	return r.sched.Snapshot()
}

func (r *Runner) Options() Options {
	return r.sched.Options()
}

func (r *Runner) Dropped() uint64 {
	return atomic.LoadUint64(&r.dropped)
}

// Start runs an initial generation pass and then the tick loop until ctx is
// cancelled or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.signalWakeup()
	go r.loop(ctx)
}

// Stop ends the tick loop, waits for it to exit, and writes the final
// snapshot to the store.
func (r *Runner) Stop() {
	r.mu.Lock()
	started := r.started
	if started && !r.stopped {
		close(r.stopCh)
	}
	r.stopped = true
	r.mu.Unlock()
	if started {
		<-r.doneCh
	}
	r.persist(context.Background())
}

// Refresh asks the loop to reload prescriptions and regenerate. It never
// blocks; repeated requests coalesce.
func (r *Runner) Refresh() {
	r.signalWakeup()
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.doneCh)
	defer func() {
		r.mu.Lock()
		r.stopped = true
		close(r.out)
		r.mu.Unlock()
	}()

	fast := time.NewTicker(r.cfg.FastTick)
	medium := time.NewTicker(r.cfg.MediumTick)
	slow := time.NewTicker(r.cfg.SlowTick)
	defer fast.Stop()
	defer medium.Stop()
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-r.wakeup:
			_ = r.generate(ctx)
			r.apply(ctx, r.sched.Tick(r.now()), false)
		case <-fast.C:
			r.apply(ctx, r.sched.Tick(r.now()), false)
		case <-medium.C:
			_ = r.generate(ctx)
		case <-slow.C:
			r.purge(ctx)
		}
	}
}

func (r *Runner) signalWakeup() {
	select {
	case r.wakeup <- struct{}{}:
	default:
	}
}

// Generate reloads prescriptions and runs a reconciling scheduling pass.
func (r *Runner) Generate(ctx context.Context) error {
	if r.isStopped() {
		return ErrRunnerStopped
	}
	return r.generate(ctx)
}

func (r *Runner) generate(ctx context.Context) error {
	now := r.now()
	prescriptions, held, err := r.source.Load(ctx)
	if err != nil {
		r.log.Error("load prescriptions", logging.Err(err))
		r.apply(ctx, r.sched.Sweep(now), false)
		return err
	}
	events := r.sched.Reconcile(prescriptions, held, now)
	r.log.Debug("scheduling pass",
		logging.Int("prescriptions", len(prescriptions)),
		logging.Int("held", len(held)),
		logging.Int("events", len(events)),
	)
	r.apply(ctx, events, true)
	return nil
}

func (r *Runner) Tick(ctx context.Context) error {
	if r.isStopped() {
		return ErrRunnerStopped
	}
	r.apply(ctx, r.sched.Tick(r.now()), false)
	return nil
}

func (r *Runner) Complete(ctx context.Context) error {
	if r.isStopped() {
		return ErrRunnerStopped
	}
	r.apply(ctx, r.sched.Complete(r.now()), false)
	return nil
}

func (r *Runner) Defer(ctx context.Context) error {
	if r.isStopped() {
		return ErrRunnerStopped
	}
	r.apply(ctx, r.sched.Defer(r.now()), false)
	return nil
}

func (r *Runner) Delete(ctx context.Context, prescriptionID string) error {
	if r.isStopped() {
		return ErrRunnerStopped
	}
	r.apply(ctx, r.sched.Delete(prescriptionID, r.now()), false)
	return nil
}

// Purge drops expired ledger entries and returns how many went.
func (r *Runner) Purge(ctx context.Context) (int, error) {
	if r.isStopped() {
		return 0, ErrRunnerStopped
	}
	return r.purge(ctx), nil
}

func (r *Runner) purge(ctx context.Context) int {
	n := r.sched.Purge(r.now())
	if n > 0 {
		r.log.Info("ledger purged", logging.Int("removed", n))
	}
	r.persist(ctx)
	return n
}

func (r *Runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// apply performs the side effects of events in order, then persists if
// anything changed.
func (r *Runner) apply(ctx context.Context, events []Event, force bool) {
	for _, ev := range events {
		if ev.Report != nil {
			ev.Report = r.report(ctx, *ev.Report)
		}
		r.logEvent(ev)
		if r.observer != nil {
			r.observer.ObserveEvent(ev)
		}
		r.emit(ev)
	}
	if force || len(events) > 0 {
		r.persist(ctx)
	}
}

func (r *Runner) report(ctx context.Context, rep model.StatusReport) *model.StatusReport {
	if r.store == nil {
		return &rep
	}
	stored, err := r.store.AppendStatusReport(ctx, rep)
	if err != nil {
		r.log.Error("append status report",
			logging.String("prescription_id", rep.PrescriptionID),
			logging.String("status", string(rep.Status)),
			logging.Err(err),
		)
		return &rep
	}
	return &stored
}

func (r *Runner) persist(ctx context.Context) {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	snap := r.sched.Snapshot()
	if r.observer != nil {
		r.observer.ObserveState(len(snap.Queue), len(snap.Ledger))
	}
	if r.store == nil {
		return
	}
	if err := r.store.SaveQueue(ctx, snap.Queue); err != nil {
		r.log.Error("save queue", logging.Err(err))
	}
	if err := r.store.SaveLedger(ctx, snap.Ledger); err != nil {
		r.log.Error("save ledger", logging.Err(err))
	}
}

func (r *Runner) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.stopped {
		return
	}
	select {
	case r.out <- ev:
	default:
		atomic.AddUint64(&r.dropped, 1)
		if r.observer != nil {
			r.observer.ObserveDropped()
		}
	}
}

func (r *Runner) logEvent(ev Event) {
	fields := []logging.Field{
		logging.String("event", string(ev.Type)),
		logging.String("prescription_id", ev.Reminder.PrescriptionID),
		logging.Time("scheduled_at", ev.Reminder.ScheduledAt),
		logging.String("fingerprint", ev.Reminder.Fingerprint().String()),
	}
	if ev.Reason != "" {
		fields = append(fields, logging.String("reason", ev.Reason))
	}
	switch ev.Type {
	case EventCompleted, EventMissed, EventDeleted:
		r.log.Info("reminder resolved", fields...)
	case EventDeferred:
		r.log.Info("reminder deferred", append(fields, logging.Int("defer_count", ev.Reminder.DeferCount))...)
	default:
		r.log.Debug("reminder transition", fields...)
	}
}
