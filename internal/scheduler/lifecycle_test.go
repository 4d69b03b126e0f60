package scheduler

import (
	"reflect"
	"testing"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

func daily(t *testing.T, id string, times ...string) model.Prescription {
	t.Helper()
	occ := model.Occurrence{}
	for _, raw := range times {
		tod, err := model.ParseTimeOfDay(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		occ.Times = append(occ.Times, tod)
	}
	return model.Prescription{
		ID:             id,
		MedicationName: "Med " + id,
		Dose:           "1",
		Unit:           "tablet",
		Route:          "mouth",
		StartDate:      model.DateOf(day),
		Frequency:      model.FrequencyDaily,
		Occurrences:    []model.Occurrence{occ},
		DeferInterval:  15 * time.Minute,
	}
}

func countEvents(events []Event, typ EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func countDisplayed(items []model.Reminder) int {
	n := 0
	for _, r := range items {
		if r.State == model.StateDisplayed {
			n++
		}
	}
	return n
}

func TestGenerateDailyScenario(t *testing.T) {
	s := New(DefaultOptions())
	events := s.Generate([]model.Prescription{daily(t, "rx", "08:00", "20:00")}, at(7, 0))
	if countEvents(events, EventQueued) != 2 {
		t.Fatalf("expected 2 queued events, got %+v", events)
	}
	items := s.Pending()
	if len(items) != 2 || !items[0].ScheduledAt.Equal(at(8, 0)) || !items[1].ScheduledAt.Equal(at(20, 0)) {
		t.Fatalf("unexpected queue: %+v", items)
	}
	for _, r := range items {
		if r.State != model.StatePending {
			t.Fatalf("expected pending, got %s", r.State)
		}
	}
}

func TestGenerateIdempotent(t *testing.T) {
	rx := []model.Prescription{daily(t, "a", "08:00", "20:00"), daily(t, "b", "12:00")}

	once := New(DefaultOptions())
	once.Generate(rx, at(7, 0))

	twice := New(DefaultOptions())
	twice.Generate(rx, at(7, 0))
	if events := twice.Generate(rx, at(7, 0)); len(events) != 0 {
		t.Fatalf("second pass should be silent, got %+v", events)
	}
	if !reflect.DeepEqual(once.Pending(), twice.Pending()) {
		t.Fatalf("queues differ:\n%+v\n%+v", once.Pending(), twice.Pending())
	}
	if !reflect.DeepEqual(once.Snapshot().Ledger, twice.Snapshot().Ledger) {
		t.Fatal("ledgers differ")
	}
}

func TestNoDuplicatesAcrossDay(t *testing.T) {
	s := New(DefaultOptions())
	rx := []model.Prescription{daily(t, "a", "08:00", "12:00", "20:00"), daily(t, "b", "08:00")}

	steps := []struct {
		now    time.Time
		action func(now time.Time)
	}{
		{at(7, 0), nil},
		{at(8, 0), func(now time.Time) { s.Tick(now) }},
		{at(8, 5), func(now time.Time) { s.Complete(now) }},
		{at(8, 6), func(now time.Time) { s.Tick(now) }},
		{at(8, 7), func(now time.Time) { s.Defer(now) }},
		{at(12, 0), func(now time.Time) { s.Tick(now) }},
		{at(12, 1), func(now time.Time) { s.Complete(now) }},
		{at(18, 0), nil},
	}
	for _, step := range steps {
		if step.action != nil {
			step.action(step.now)
		}
		s.Generate(rx, step.now)

		items := s.Pending()
		assertOrdered(t, items)
		seen := make(map[model.Fingerprint]bool)
		for _, r := range items {
			fp := r.Fingerprint()
			if seen[fp] {
				t.Fatalf("duplicate fingerprint at %s: %+v", step.now.Format("15:04"), r)
			}
			seen[fp] = true
		}
	}

	// Both 08:00 doses were completed and the 12:00 one went stale.
	items := s.Pending()
	if len(items) != 1 || !items[0].OriginAt.Equal(at(20, 0)) {
		t.Fatalf("resolved reminders were regenerated: %+v", items)
	}
}

func TestSingleDisplay(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{
		daily(t, "a", "08:00"),
		daily(t, "b", "08:00"),
		daily(t, "c", "08:00"),
	}, at(7, 0))

	check := func(label string) {
		t.Helper()
		if n := countDisplayed(s.Pending()); n > 1 {
			t.Fatalf("%s: %d reminders displayed", label, n)
		}
	}

	events := s.Tick(at(8, 0))
	check("first tick")
	if countEvents(events, EventDue) != 3 || countEvents(events, EventDisplayed) != 1 {
		t.Fatalf("expected 3 due and 1 displayed, got %+v", events)
	}
	shown, ok := s.Displayed()
	if !ok || shown.PrescriptionID != "a" {
		t.Fatalf("expected a displayed first, got %+v", shown)
	}

	s.Tick(at(8, 1))
	check("second tick")
	s.Complete(at(8, 2))
	check("after complete")
	s.Tick(at(8, 2))
	check("after re-tick")
	if shown, _ := s.Displayed(); shown.PrescriptionID != "b" {
		t.Fatalf("expected b displayed next, got %+v", shown)
	}
	s.Defer(at(8, 3))
	s.Tick(at(8, 3))
	check("after defer")
	if shown, _ := s.Displayed(); shown.PrescriptionID != "c" {
		t.Fatalf("expected c displayed after deferring b, got %+v", shown)
	}
}

func TestDeferThreshold(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{daily(t, "a", "08:00")}, at(7, 0))

	now := at(8, 0)
	for i := 1; i <= 3; i++ {
		s.Tick(now)
		events := s.Defer(now)
		if len(events) != 1 || events[0].Type != EventDeferred || events[0].Report != nil {
			t.Fatalf("defer %d: unexpected events %+v", i, events)
		}
		items := s.Pending()
		if len(items) != 1 || items[0].State != model.StatePending || items[0].DeferCount != i {
			t.Fatalf("defer %d: unexpected queue %+v", i, items)
		}
		now = items[0].ScheduledAt
	}

	s.Tick(now)
	events := s.Defer(now)
	if len(events) != 1 || events[0].Type != EventMissed || events[0].Reason != ReasonDeferLimit {
		t.Fatalf("fourth defer should miss, got %+v", events)
	}
	if events[0].Report == nil || events[0].Report.Status != model.StateMissed || events[0].Report.PrescriptionID != "a" {
		t.Fatalf("expected missed report, got %+v", events[0].Report)
	}
	if len(s.Pending()) != 0 {
		t.Fatalf("missed reminder should leave the queue, got %+v", s.Pending())
	}
}

func TestDeferThenResort(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{daily(t, "A", "09:00"), daily(t, "B", "09:30")}, at(8, 0))

	s.Tick(at(9, 0))
	if shown, _ := s.Displayed(); shown.PrescriptionID != "A" {
		t.Fatalf("expected A displayed, got %+v", shown)
	}
	events := s.Defer(at(9, 5))
	if len(events) != 1 || !events[0].Reminder.ScheduledAt.Equal(at(9, 20)) {
		t.Fatalf("expected A re-armed at 09:20, got %+v", events)
	}

	items := s.Pending()
	assertOrdered(t, items)
	if items[0].PrescriptionID != "A" || !items[0].ScheduledAt.Equal(at(9, 20)) ||
		items[1].PrescriptionID != "B" || !items[1].ScheduledAt.Equal(at(9, 30)) {
		t.Fatalf("unexpected order after defer: %+v", items)
	}
	if _, ok := s.Displayed(); ok {
		t.Fatal("deferred reminder must not stay displayed")
	}
}

func TestStalenessSweep(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{daily(t, "a", "04:00")}, at(8, 0))
	if len(s.Pending()) != 1 {
		t.Fatalf("past-due reminder should be queued under include policy")
	}

	events := s.Sweep(at(8, 0))
	if len(events) != 1 || events[0].Type != EventMissed || events[0].Reason != ReasonStale {
		t.Fatalf("expected stale miss, got %+v", events)
	}
	if events[0].Report == nil || !events[0].Report.ReminderAt.Equal(at(4, 0)) {
		t.Fatalf("unexpected report: %+v", events[0].Report)
	}
	if len(s.Pending()) != 0 {
		t.Fatal("stale reminder should be removed")
	}
	if events := s.Generate([]model.Prescription{daily(t, "a", "04:00")}, at(8, 1)); len(events) != 0 {
		t.Fatalf("missed reminder must not be regenerated, got %+v", events)
	}
}

func TestStalenessSkipsDisplayed(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{daily(t, "a", "08:00")}, at(7, 0))
	s.Tick(at(8, 0))
	if events := s.Sweep(at(11, 30)); len(events) != 0 {
		t.Fatalf("displayed reminder is governed by display timeout, got %+v", events)
	}
}

func TestDisplayTimeout(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{daily(t, "a", "08:00"), daily(t, "b", "09:00")}, at(7, 0))
	s.Tick(at(8, 0))

	if events := s.Tick(at(10, 0)); countEvents(events, EventMissed) != 0 {
		t.Fatalf("exactly two hours on screen should not time out, got %+v", events)
	}
	events := s.Tick(at(10, 0).Add(time.Second))
	if countEvents(events, EventMissed) != 1 || events[0].Reason != ReasonDisplayTimeout {
		t.Fatalf("expected timeout miss, got %+v", events)
	}
	shown, ok := s.Displayed()
	if !ok || shown.PrescriptionID != "b" {
		t.Fatalf("next due reminder should be displayed, got %+v", shown)
	}
}

func TestPoke(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{daily(t, "a", "08:00")}, at(7, 0))
	s.Tick(at(8, 0))

	if events := s.Tick(at(8, 10)); countEvents(events, EventPoke) != 0 {
		t.Fatalf("poke too early: %+v", events)
	}
	if events := s.Tick(at(8, 15)); countEvents(events, EventPoke) != 1 {
		t.Fatalf("expected poke at 15 minutes: %+v", events)
	}
	if events := s.Tick(at(8, 16)); countEvents(events, EventPoke) != 0 {
		t.Fatalf("poke should wait another interval: %+v", events)
	}
}

func TestActionsOnEmptyQueueAreNoops(t *testing.T) {
	s := New(DefaultOptions())
	if events := s.Complete(at(9, 0)); events != nil {
		t.Fatalf("complete on empty queue: %+v", events)
	}
	if events := s.Defer(at(9, 0)); events != nil {
		t.Fatalf("defer on empty queue: %+v", events)
	}
	if events := s.Delete("missing", at(9, 0)); len(events) != 0 {
		t.Fatalf("delete on empty queue: %+v", events)
	}

	s.Generate([]model.Prescription{daily(t, "a", "20:00")}, at(7, 0))
	if events := s.Complete(at(9, 0)); events != nil {
		t.Fatalf("complete with nothing displayed: %+v", events)
	}
}

func TestCompleteReportsOnceAndKeepsLedger(t *testing.T) {
	s := New(DefaultOptions())
	rx := []model.Prescription{daily(t, "a", "08:00")}
	s.Generate(rx, at(7, 0))
	s.Tick(at(8, 0))

	events := s.Complete(at(8, 1))
	if len(events) != 1 || events[0].Type != EventCompleted || events[0].Report == nil ||
		events[0].Report.Status != model.StateCompleted {
		t.Fatalf("unexpected completion events: %+v", events)
	}
	if s.LedgerLen() != 1 {
		t.Fatalf("completion must keep the ledger entry, len=%d", s.LedgerLen())
	}
	if events := s.Complete(at(8, 2)); events != nil {
		t.Fatalf("second complete should be a no-op: %+v", events)
	}
	if events := s.Generate(rx, at(8, 3)); len(events) != 0 {
		t.Fatalf("completed reminder must not return: %+v", events)
	}
}

func TestDeleteRetractsLedgerWithoutReport(t *testing.T) {
	s := New(DefaultOptions())
	rx := []model.Prescription{daily(t, "a", "08:00", "20:00"), daily(t, "b", "09:00")}
	s.Generate(rx, at(7, 0))
	s.Tick(at(8, 0))

	events := s.Delete("a", at(8, 1))
	if len(events) != 2 {
		t.Fatalf("expected two deletions, got %+v", events)
	}
	for _, ev := range events {
		if ev.Type != EventDeleted || ev.Report != nil || ev.Reminder.State != model.StateDeleted {
			t.Fatalf("unexpected delete event: %+v", ev)
		}
	}
	if s.LedgerLen() != 1 {
		t.Fatalf("only b's fingerprint should remain, len=%d", s.LedgerLen())
	}
	if events := s.Generate(rx, at(8, 2)); countEvents(events, EventQueued) != 2 {
		t.Fatalf("re-issued prescription should re-queue, got %+v", events)
	}
}

func TestDeferredSurvivesGenerate(t *testing.T) {
	s := New(DefaultOptions())
	rx := []model.Prescription{daily(t, "a", "08:00")}
	s.Generate(rx, at(7, 0))
	s.Tick(at(8, 0))
	s.Defer(at(8, 0))

	s.Generate(rx, at(8, 5))
	items := s.Pending()
	if len(items) != 1 || items[0].DeferCount != 1 || !items[0].ScheduledAt.Equal(at(8, 15)) {
		t.Fatalf("deferred reminder should survive unchanged, got %+v", items)
	}
}

func TestDeferredSurvivesLateRegeneration(t *testing.T) {
	s := New(DefaultOptions())
	rx := []model.Prescription{daily(t, "a", "08:00")}
	s.Generate(rx, at(7, 0))
	s.Tick(at(8, 0))
	s.Defer(at(8, 0))

	events := s.Reconcile(rx, nil, at(12, 30))
	if countEvents(events, EventMissed) != 0 || countEvents(events, EventDeleted) != 0 {
		t.Fatalf("deferred reminder must not be swept as stale, got %+v", events)
	}
	items := s.Pending()
	if len(items) != 1 || items[0].DeferCount != 1 || !items[0].ScheduledAt.Equal(at(8, 15)) {
		t.Fatalf("deferred reminder should survive, got %+v", items)
	}
	if events := s.Tick(at(12, 30)); countEvents(events, EventDisplayed) != 1 {
		t.Fatalf("deferred reminder should be shown again, got %+v", events)
	}
}

func TestReconcile(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{
		daily(t, "keep", "09:00"),
		daily(t, "gone", "10:00"),
		daily(t, "held", "11:00"),
		daily(t, "edit", "12:00"),
	}, at(7, 0))

	edited := daily(t, "edit", "12:00")
	edited.Dose = "2"
	events := s.Reconcile([]model.Prescription{daily(t, "keep", "09:00"), edited}, []string{"held"}, at(7, 30))

	if countEvents(events, EventDeleted) != 2 || countEvents(events, EventQueued) != 1 {
		t.Fatalf("unexpected reconcile events: %+v", events)
	}
	byRx := make(map[string]model.Reminder)
	for _, r := range s.Pending() {
		byRx[r.PrescriptionID] = r
	}
	if _, ok := byRx["gone"]; ok {
		t.Fatal("revoked prescription should be deleted")
	}
	if _, ok := byRx["held"]; !ok {
		t.Fatal("held prescription should be kept")
	}
	if r, ok := byRx["edit"]; !ok || r.Dose != "2" {
		t.Fatalf("edited prescription should be re-queued with new dose, got %+v", r)
	}
}

func TestReconcileScheduleEdits(t *testing.T) {
	cases := []struct {
		name string
		edit func(p *model.Prescription)
		want []time.Time
	}{
		{
			name: "time moved",
			edit: func(p *model.Prescription) { p.Occurrences = daily(t, "rx", "13:00").Occurrences },
			want: []time.Time{at(13, 0)},
		},
		{
			name: "window closed",
			edit: func(p *model.Prescription) {
				end := model.DateOf(day)
				p.EndDate = &end
			},
		},
		{
			name: "frequency changed",
			edit: func(p *model.Prescription) {
				p.Frequency = model.FrequencyWeekly
				p.Occurrences[0].Weekday = day.Weekday() + 1
			},
		},
		{
			name: "defer interval changed",
			edit: func(p *model.Prescription) { p.DeferInterval = 5 * time.Minute },
			want: []time.Time{at(12, 0)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New(DefaultOptions())
			s.Generate([]model.Prescription{daily(t, "rx", "12:00")}, at(7, 0))

			edited := daily(t, "rx", "12:00")
			tc.edit(&edited)
			events := s.Reconcile([]model.Prescription{edited}, nil, at(7, 30))
			if countEvents(events, EventDeleted) != 1 {
				t.Fatalf("old reminder should be deleted, got %+v", events)
			}
			items := s.Pending()
			if len(items) != len(tc.want) {
				t.Fatalf("expected %d reminders, got %+v", len(tc.want), items)
			}
			for i, want := range tc.want {
				if !items[i].ScheduledAt.Equal(want) {
					t.Fatalf("reminder %d at %s, want %s", i, items[i].ScheduledAt, want)
				}
			}
		})
	}
}

func TestReconcileUnchangedIsSilent(t *testing.T) {
	s := New(DefaultOptions())
	rx := []model.Prescription{daily(t, "rx", "08:00", "12:00")}
	s.Generate(rx, at(7, 0))
	if events := s.Reconcile(rx, nil, at(7, 30)); len(events) != 0 {
		t.Fatalf("unchanged prescriptions should not touch the queue, got %+v", events)
	}
	if len(s.Pending()) != 2 {
		t.Fatalf("unexpected queue: %+v", s.Pending())
	}
}

func TestDiscardPolicy(t *testing.T) {
	opts := DefaultOptions()
	opts.PastDue = model.PastDueDiscard
	s := New(opts)
	s.Generate([]model.Prescription{daily(t, "a", "08:00", "20:00")}, at(12, 0))
	items := s.Pending()
	if len(items) != 1 || !items[0].ScheduledAt.Equal(at(20, 0)) {
		t.Fatalf("discard policy should drop past instances, got %+v", items)
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := New(DefaultOptions())
	s.Generate([]model.Prescription{daily(t, "a", "08:00"), daily(t, "b", "09:00")}, at(7, 0))
	s.Tick(at(9, 0))
	snap := s.Snapshot()

	restored := New(DefaultOptions())
	if skipped := restored.Restore(snap); skipped != 0 {
		t.Fatalf("unexpected skipped count %d", skipped)
	}
	if !reflect.DeepEqual(restored.Pending(), s.Pending()) {
		t.Fatalf("restored queue differs:\n%+v\n%+v", restored.Pending(), s.Pending())
	}

	shownAt := at(9, 0)
	bad := snap
	bad.Queue = append(slicesClone(snap.Queue),
		model.Reminder{PrescriptionID: "x"},
		func() model.Reminder {
			r := reminderAt("c", at(9, 0))
			r.State = model.StateDisplayed
			r.DisplayedAt = &shownAt
			return r
		}(),
		func() model.Reminder {
			r := reminderAt("d", at(9, 0))
			r.State = model.StateCompleted
			return r
		}(),
	)
	other := New(DefaultOptions())
	if skipped := other.Restore(bad); skipped != 2 {
		t.Fatalf("expected invalid and terminal reminders skipped, got %d", skipped)
	}
	if n := countDisplayed(other.Pending()); n != 1 {
		t.Fatalf("restore must keep a single displayed reminder, got %d", n)
	}
	if other.LedgerLen() != 3 {
		t.Fatalf("restored reminders must be in the ledger, len=%d", other.LedgerLen())
	}
}

func slicesClone(in []model.Reminder) []model.Reminder {
	return append([]model.Reminder(nil), in...)
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("default options invalid: %v", err)
	}
	bad := DefaultOptions()
	bad.StaleAfter = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero stale-after")
	}
	bad = DefaultOptions()
	bad.DeferThreshold = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero defer threshold")
	}
	bad = DefaultOptions()
	bad.PastDue = "sometimes"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}
