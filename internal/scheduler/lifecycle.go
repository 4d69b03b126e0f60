package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

var ErrInvalidOptions = errors.New("scheduler: invalid options")

type Options struct {
	// DeferThreshold is the number of defers a reminder survives. One more
	// resolves it as missed.
	DeferThreshold int
	DisplayTimeout time.Duration
	StaleAfter     time.Duration
	LedgerTTL      time.Duration
	// PokeInterval spaces re-alerts for a reminder left on screen. Zero
	// disables pokes.
	PokeInterval time.Duration
	PastDue      model.PastDuePolicy
}

func DefaultOptions() Options {
	return Options{
		DeferThreshold: 3,
		DisplayTimeout: 2 * time.Hour,
		StaleAfter:     3 * time.Hour,
		LedgerTTL:      24 * time.Hour,
		PokeInterval:   15 * time.Minute,
		PastDue:        model.PastDueInclude,
	}
}

func (o Options) Validate() error {
	if o.DeferThreshold < 1 {
		return fmt.Errorf("%w: defer threshold must be positive", ErrInvalidOptions)
	}
	if o.DisplayTimeout <= 0 || o.StaleAfter <= 0 || o.LedgerTTL <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidOptions)
	}
	if o.PokeInterval < 0 {
		return fmt.Errorf("%w: poke interval must not be negative", ErrInvalidOptions)
	}
	if !o.PastDue.IsValid() {
		return fmt.Errorf("%w: past-due policy %q", ErrInvalidOptions, o.PastDue)
	}
	return nil
}

// Snapshot is the durable state of a Scheduler.
type Snapshot struct {
	Queue  []model.Reminder
	Ledger []model.LedgerEntry
}

// Scheduler owns the reminder queue and dedup ledger. Every operation runs
// under one mutex and returns the transitions it caused; none of them block
// on I/O.
type Scheduler struct {
	mu       sync.Mutex
	opts     Options
	expander model.Expander
	queue    *Queue
	ledger   *Ledger
	lastPoke time.Time
}

func New(opts Options) *Scheduler {
	if opts.PastDue == "" {
		opts.PastDue = model.PastDueInclude
	}
	return &Scheduler{
		opts:     opts,
		expander: model.Expander{PastDue: opts.PastDue},
		queue:    NewQueue(),
		ledger:   NewLedger(),
	}
}

func (s *Scheduler) Options() Options {
	return s.opts
}

// Restore replaces all state with snap. Invalid or terminal reminders are
// skipped and counted. Only the first displayed reminder keeps that state;
// any other is demoted to due.
func (s *Scheduler) Restore(snap Snapshot) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = NewQueue()
	s.ledger = NewLedger()
	s.lastPoke = time.Time{}
	for _, e := range snap.Ledger {
		s.ledger.Record(e.Fingerprint, e.RecordedAt)
	}

	skipped := 0
	haveDisplayed := false
	for _, r := range snap.Queue {
		if err := r.Validate(); err != nil || r.State.Terminal() {
			skipped++
			continue
		}
		if r.State == model.StateDisplayed {
			if haveDisplayed {
				r.State = model.StateDue
				r.DisplayedAt = nil
			} else {
				haveDisplayed = true
				s.lastPoke = *r.DisplayedAt
			}
		}
		s.ledger.Record(r.Fingerprint(), r.OriginAt)
		s.queue.Push(r)
	}
	return skipped
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Queue: s.queue.Items(), Ledger: s.ledger.Entries()}
}

// Pending returns every live reminder in ascending scheduled order,
// including the displayed one.
func (s *Scheduler) Pending() []model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Items()
}

func (s *Scheduler) Displayed() (model.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.displayedLocked(); item != nil {
		return item.reminder, true
	}
	return model.Reminder{}, false
}

func (s *Scheduler) LedgerLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Len()
}

// Generate runs one scheduling pass: stale reminders are resolved first, the
// remaining queue is kept as is, then every prescription is expanded for the
// day of now and merged through the ledger.
func (s *Scheduler) Generate(prescriptions []model.Prescription, now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateLocked(prescriptions, now)
}

// Reconcile deletes queued reminders whose prescription disappeared or no
// longer schedules them, then runs Generate. Prescriptions named in held
// are left alone even when absent, so a record rejected mid-sync does not
// cancel its reminders.
func (s *Scheduler) Reconcile(prescriptions []model.Prescription, held []string, now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]model.Prescription, len(prescriptions))
	for _, p := range prescriptions {
		current[p.ID] = p
	}
	keep := make(map[string]bool, len(held))
	for _, id := range held {
		keep[id] = true
	}

	var stale []string
	seen := make(map[string]bool)
	for _, r := range s.queue.Items() {
		if seen[r.PrescriptionID] || keep[r.PrescriptionID] {
			continue
		}
		p, ok := current[r.PrescriptionID]
		if ok && stillScheduled(r, p) {
			continue
		}
		seen[r.PrescriptionID] = true
		stale = append(stale, r.PrescriptionID)
	}

	var events []Event
	for _, id := range stale {
		events = append(events, s.deleteLocked(id, now)...)
	}
	return append(events, s.generateLocked(prescriptions, now)...)
}

// stillScheduled reports whether p, as it reads now, expands to r on r's own
// calendar day. Edits to medication details, times, frequency, or the date
// window all make it false.
func stillScheduled(r model.Reminder, p model.Prescription) bool {
	if r.DeferInterval != p.DeferInterval {
		return false
	}
	fp := r.Fingerprint()
	for _, c := range model.Expand(p, r.OriginAt) {
		if c.Fingerprint() == fp {
			return true
		}
	}
	return false
}

func (s *Scheduler) generateLocked(prescriptions []model.Prescription, now time.Time) []Event {
	events := s.sweepLocked(now)
	for _, p := range prescriptions {
		for _, r := range s.queue.Merge(s.expander.Expand(p, now), s.ledger, now) {
			events = append(events, newEvent(EventQueued, r, now))
		}
	}
	s.ledger.PurgeOlderThan(now, s.opts.LedgerTTL)
	return events
}

// Tick evaluates time-driven transitions: the display timeout, pending to
// due, due to displayed, and the periodic poke of a displayed reminder.
func (s *Scheduler) Tick(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []Event
	displayed := s.displayedLocked()
	if displayed != nil && now.Sub(*displayed.reminder.DisplayedAt) > s.opts.DisplayTimeout {
		events = append(events, s.resolveLocked(displayed, model.StateMissed, now, ReasonDisplayTimeout))
		displayed = nil
	}

	ordered := s.queue.sorted()
	for _, item := range ordered {
		if item.reminder.State == model.StatePending && item.reminder.Due(now) {
			item.reminder.State = model.StateDue
			events = append(events, newEvent(EventDue, item.reminder, now))
		}
	}

	if displayed == nil {
		for _, item := range ordered {
			if item.reminder.State != model.StateDue {
				continue
			}
			shownAt := now
			item.reminder.State = model.StateDisplayed
			item.reminder.DisplayedAt = &shownAt
			s.lastPoke = now
			events = append(events, newEvent(EventDisplayed, item.reminder, now))
			break
		}
		return events
	}

	if s.opts.PokeInterval > 0 && now.Sub(s.lastPoke) >= s.opts.PokeInterval {
		s.lastPoke = now
		events = append(events, newEvent(EventPoke, displayed.reminder, now))
	}
	return events
}

// Sweep resolves reminders that were never shown and are more than
// StaleAfter past their time, and any reminder over the defer threshold. A
// deferred reminder has been shown, so only the display timeout ends it.
func (s *Scheduler) Sweep(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *Scheduler) sweepLocked(now time.Time) []Event {
	var events []Event
	for _, item := range s.queue.sorted() {
		r := item.reminder
		switch {
		case r.DeferCount > s.opts.DeferThreshold:
			events = append(events, s.resolveLocked(item, model.StateMissed, now, ReasonDeferLimit))
		case r.State != model.StateDisplayed && r.DeferCount == 0 && now.Sub(r.ScheduledAt) > s.opts.StaleAfter:
			events = append(events, s.resolveLocked(item, model.StateMissed, now, ReasonStale))
		}
	}
	return events
}

// Purge drops ledger entries older than the configured TTL.
func (s *Scheduler) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.PurgeOlderThan(now, s.opts.LedgerTTL)
}

// Complete resolves the displayed reminder as taken. With nothing displayed
// it does nothing.
func (s *Scheduler) Complete(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.displayedLocked()
	if item == nil {
		return nil
	}
	return []Event{s.resolveLocked(item, model.StateCompleted, now, "")}
}

// Defer re-arms the displayed reminder at now plus its defer interval, or
// resolves it as missed once the defer count passes the threshold.
func (s *Scheduler) Defer(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.displayedLocked()
	if item == nil {
		return nil
	}
	item.reminder.DeferCount++
	if item.reminder.DeferCount > s.opts.DeferThreshold {
		return []Event{s.resolveLocked(item, model.StateMissed, now, ReasonDeferLimit)}
	}
	item.reminder.State = model.StatePending
	item.reminder.DisplayedAt = nil
	s.queue.rearm(item, now.Add(item.reminder.DeferInterval))
	return []Event{newEvent(EventDeferred, item.reminder, now)}
}

// Delete cancels every queued reminder of a prescription and releases their
// fingerprints. No status is reported.
func (s *Scheduler) Delete(prescriptionID string, now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(prescriptionID, now)
}

func (s *Scheduler) deleteLocked(prescriptionID string, now time.Time) []Event {
	removed := s.queue.RemoveAll(prescriptionID)
	events := make([]Event, 0, len(removed))
	for _, r := range removed {
		s.ledger.Retract(r.Fingerprint())
		r.State = model.StateDeleted
		r.DisplayedAt = nil
		events = append(events, newEvent(EventDeleted, r, now))
	}
	return events
}

func (s *Scheduler) displayedLocked() *queueItem {
	for _, item := range s.queue.items {
		if item.reminder.State == model.StateDisplayed {
			return item
		}
	}
	return nil
}

func (s *Scheduler) resolveLocked(item *queueItem, state model.State, now time.Time, reason string) Event {
	s.queue.remove(item)
	item.reminder.State = state
	typ := EventCompleted
	if state == model.StateMissed {
		typ = EventMissed
	}
	return terminalEvent(typ, item.reminder, now, reason)
}
