package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidStatus = errors.New("model: invalid report status")

// LedgerEntry records when a fingerprint was first admitted to the queue.
type LedgerEntry struct {
	Fingerprint Fingerprint
	RecordedAt  time.Time
}

// StatusReport is the outbound record of a reminder reaching a terminal
// clinical status. ID and CreatedAt are assigned by the outbox on append.
type StatusReport struct {
	ID             string
	PrescriptionID string
	ReminderAt     time.Time
	Status         State
	CreatedAt      time.Time
	DeliveredAt    *time.Time
}

func (r StatusReport) Validate() error {
	if strings.TrimSpace(r.PrescriptionID) == "" {
		return errors.New("model: report prescription_id is required")
	}
	if r.ReminderAt.IsZero() {
		return errors.New("model: report reminder time is required")
	}
	if r.Status != StateCompleted && r.Status != StateMissed {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	return nil
}

func (r StatusReport) Delivered() bool {
	return r.DeliveredAt != nil
}
