package scheduler

import (
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

type EventType string

const (
	EventQueued    EventType = "queued"
	EventDue       EventType = "due"
	EventDisplayed EventType = "displayed"
	EventPoke      EventType = "poke"
	EventDeferred  EventType = "deferred"
	EventCompleted EventType = "completed"
	EventMissed    EventType = "missed"
	EventDeleted   EventType = "deleted"
)

// Reasons attached to missed events.
const (
	ReasonDeferLimit     = "defer_limit"
	ReasonDisplayTimeout = "display_timeout"
	ReasonStale          = "stale"
)

// Event describes one lifecycle transition. Report is set only for the
// terminal completed and missed transitions, exactly once per reminder.
type Event struct {
	Type     EventType
	Reminder model.Reminder
	At       time.Time
	Reason   string
	Report   *model.StatusReport
}

func newEvent(typ EventType, r model.Reminder, now time.Time) Event {
	return Event{Type: typ, Reminder: r, At: now}
}

func terminalEvent(typ EventType, r model.Reminder, now time.Time, reason string) Event {
	ev := newEvent(typ, r, now)
	ev.Reason = reason
	ev.Report = &model.StatusReport{
		PrescriptionID: r.PrescriptionID,
		ReminderAt:     r.ScheduledAt,
		Status:         r.State,
	}
	return ev
}
