package storage

import "time"

// queuedReminder is the row shape of queued_reminders. Durations are kept in
// milliseconds and instants as UTC RFC3339Nano text.
type queuedReminder struct {
	Position        int
	Fingerprint     string
	PrescriptionID  string
	MedicationName  string
	Dose            string
	Unit            string
	Route           string
	OriginAt        time.Time
	ScheduledAt     time.Time
	DeferCount      int
	DeferIntervalMS int64
	State           string
	DisplayedAt     *time.Time
}

type ReportListFilter struct {
	PrescriptionID string
	Status         string
	// Undelivered limits the list to reports not yet marked delivered.
	Undelivered bool
	Limit       int
	Offset      int
}
