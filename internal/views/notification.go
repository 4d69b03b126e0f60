package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

// FormatNotification renders the patient-facing prompt for r in loc, e.g.
// "Take 500 mg of Metformin by mouth at 8:00 AM on Mon Oct 19".
func FormatNotification(r model.Reminder, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	at := r.ScheduledAt.In(loc)
	route := ""
	if strings.TrimSpace(r.Route) != "" {
		route = fmt.Sprintf("by %s ", strings.TrimSpace(r.Route))
	}
	return fmt.Sprintf("Take %s %s of %s %sat %s on %s",
		r.Dose, r.Unit, r.MedicationName, route,
		at.Format("3:04 PM"), at.Format("Mon Jan 2"))
}

// FormatClock renders the clock face time in 12h or 24h style.
func FormatClock(now time.Time, use24h bool) string {
	if use24h {
		return now.Format("15:04")
	}
	return now.Format("3:04")
}
