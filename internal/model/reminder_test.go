package model

import (
	"errors"
	"testing"
	"time"
)

func sampleReminder() Reminder {
	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	return Reminder{
		PrescriptionID: "rx-1",
		MedicationName: "Metformin",
		Dose:           "500",
		Unit:           "mg",
		Route:          "mouth",
		OriginAt:       at,
		ScheduledAt:    at,
		DeferInterval:  15 * time.Minute,
		State:          StatePending,
	}
}

func TestReminderValidateSuccess(t *testing.T) {
	if err := sampleReminder().Validate(); err != nil {
		t.Fatalf("expected valid reminder, got error: %v", err)
	}
}

func TestReminderValidateInvalidState(t *testing.T) {
	rem := sampleReminder()
	rem.State = State("snoozed")
	err := rem.Validate()
	if err == nil || !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got: %v", err)
	}
}

func TestReminderValidateDisplayedNeedsTimestamp(t *testing.T) {
	rem := sampleReminder()
	rem.State = StateDisplayed
	if err := rem.Validate(); err == nil {
		t.Fatal("expected error for displayed reminder without displayed_at")
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateCompleted, StateMissed, StateDeleted} {
		if !s.Terminal() {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	for _, s := range []State{StatePending, StateDue, StateDisplayed} {
		if s.Terminal() {
			t.Fatalf("expected %q to be non-terminal", s)
		}
	}
}

func TestFingerprintIgnoresLifecycle(t *testing.T) {
	a := sampleReminder()
	b := a
	b.DeferCount = 2
	b.State = StateDisplayed
	b.ScheduledAt = a.ScheduledAt.Add(30 * time.Minute)
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("fingerprint must not depend on defer count, state or deferred time")
	}
}

func TestFingerprintDistinguishesFields(t *testing.T) {
	base := sampleReminder()
	variants := []func(r *Reminder){
		func(r *Reminder) { r.PrescriptionID = "rx-2" },
		func(r *Reminder) { r.MedicationName = "Aspirin" },
		func(r *Reminder) { r.Dose = "1000" },
		func(r *Reminder) { r.Unit = "g" },
		func(r *Reminder) { r.Route = "" },
		func(r *Reminder) { r.OriginAt = r.OriginAt.Add(time.Minute) },
	}
	seen := map[Fingerprint]bool{base.Fingerprint(): true}
	for i, mutate := range variants {
		r := base
		mutate(&r)
		fp := r.Fingerprint()
		if seen[fp] {
			t.Fatalf("variant %d collided: %s", i, fp)
		}
		seen[fp] = true
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	a := FingerprintOf("rx-1", "ab", "c", "mg", "", at)
	b := FingerprintOf("rx-1", "a", "bc", "mg", "", at)
	if a == b {
		t.Fatal("adjacent fields must not run together")
	}
}

func TestFingerprintStableAcrossZones(t *testing.T) {
	at := time.Date(2026, 2, 9, 8, 0, 0, 0, time.UTC)
	local := at.In(time.FixedZone("UTC-5", -5*3600))
	if FingerprintOf("rx", "m", "1", "u", "r", at) != FingerprintOf("rx", "m", "1", "u", "r", local) {
		t.Fatal("same instant in another zone must hash the same")
	}
}

func TestParseFingerprintRoundTrip(t *testing.T) {
	fp := sampleReminder().Fingerprint()
	got, err := ParseFingerprint(fp.String())
	if err != nil || got != fp {
		t.Fatalf("round trip failed: %s -> %s (%v)", fp, got, err)
	}
	if _, err := ParseFingerprint("zz"); !errors.Is(err, ErrInvalidFingerprint) {
		t.Fatalf("expected ErrInvalidFingerprint, got %v", err)
	}
}
