package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrInvalidState       = errors.New("model: invalid reminder state")
	ErrInvalidFingerprint = errors.New("model: invalid fingerprint")
)

type State string

const (
	StatePending   State = "pending"
	StateDue       State = "due"
	StateDisplayed State = "displayed"
	StateCompleted State = "completed"
	StateMissed    State = "missed"
	StateDeleted   State = "deleted"
)

func (s State) IsValid() bool {
	switch s {
	case StatePending, StateDue, StateDisplayed, StateCompleted, StateMissed, StateDeleted:
		return true
	default:
		return false
	}
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateMissed || s == StateDeleted
}

// Reminder is one concrete, one-shot notification derived from a single
// prescription time. Medication fields are copied at creation so later
// prescription edits never rewrite a queued reminder.
type Reminder struct {
	PrescriptionID string
	MedicationName string
	Dose           string
	Unit           string
	Route          string
	// OriginAt is the instant the reminder was generated for. It never
	// changes and is the time component of the fingerprint.
	OriginAt time.Time
	// ScheduledAt starts equal to OriginAt and moves forward on defer.
	ScheduledAt   time.Time
	DeferCount    int
	DeferInterval time.Duration
	State         State
	DisplayedAt   *time.Time
}

func NewReminder(p Prescription, at time.Time) Reminder {
	return Reminder{
		PrescriptionID: p.ID,
		MedicationName: p.MedicationName,
		Dose:           p.Dose,
		Unit:           p.Unit,
		Route:          p.Route,
		OriginAt:       at,
		ScheduledAt:    at,
		DeferInterval:  p.DeferInterval,
		State:          StatePending,
	}
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.PrescriptionID) == "" {
		return errors.New("model: reminder prescription_id is required")
	}
	if r.OriginAt.IsZero() || r.ScheduledAt.IsZero() {
		return errors.New("model: reminder scheduled time is required")
	}
	if r.DeferCount < 0 {
		return errors.New("model: reminder defer count must not be negative")
	}
	if !r.State.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, r.State)
	}
	if r.State == StateDisplayed && r.DisplayedAt == nil {
		return errors.New("model: displayed_at is required when reminder is displayed")
	}
	return nil
}

// Due reports whether the reminder's scheduled time has arrived.
func (r Reminder) Due(now time.Time) bool {
	return !r.ScheduledAt.After(now)
}

// Fingerprint identifies the reminder independent of defer count and state.
func (r Reminder) Fingerprint() Fingerprint {
	return FingerprintOf(r.PrescriptionID, r.MedicationName, r.Dose, r.Unit, r.Route, r.OriginAt)
}

// Fingerprint is a stable 64-bit identity hash of a reminder's defining fields.
type Fingerprint uint64

// FingerprintOf hashes a length-prefixed canonical encoding of the fields so
// that adjacent values can never run together into the same input.
func FingerprintOf(prescriptionID, medication, dose, unit, route string, at time.Time) Fingerprint {
	d := xxhash.New()
	for _, field := range []string{
		prescriptionID,
		medication,
		dose,
		unit,
		route,
		at.UTC().Format(time.RFC3339Nano),
	} {
		_, _ = d.WriteString(strconv.Itoa(len(field)))
		_, _ = d.WriteString(":")
		_, _ = d.WriteString(field)
	}
	return Fingerprint(d.Sum64())
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFingerprint, s)
	}
	return Fingerprint(v), nil
}
