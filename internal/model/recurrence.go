package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	biweeklyCadenceDays = 14
	// Months are approximated by a fixed four-week cadence.
	monthlyCadenceDays = 28
)

// PastDuePolicy decides what happens to an instance whose time of day has
// already passed when it is expanded.
type PastDuePolicy string

const (
	// PastDueInclude keeps past instances so they can fire immediately.
	PastDueInclude PastDuePolicy = "include"
	// PastDueDiscard drops them. Kept for the older scheduling-from-scratch
	// behaviour.
	PastDueDiscard PastDuePolicy = "discard"
)

func (p PastDuePolicy) IsValid() bool {
	return p == PastDueInclude || p == PastDueDiscard
}

func ParsePastDuePolicy(raw string) (PastDuePolicy, error) {
	p := PastDuePolicy(strings.ToLower(strings.TrimSpace(raw)))
	if p == "" {
		return PastDueInclude, nil
	}
	if !p.IsValid() {
		return "", fmt.Errorf("model: invalid past-due policy %q", raw)
	}
	return p, nil
}

type Expander struct {
	PastDue PastDuePolicy
}

// Expand produces the reminders p should have on the calendar day of now, in
// occurrence-list order. Reminder times are resolved in now's location.
func (e Expander) Expand(p Prescription, now time.Time) []Reminder {
	today := DateOf(now)
	if !p.Active(today) {
		return nil
	}

	out := make([]Reminder, 0)
	for _, occ := range p.Occurrences {
		if !occursOn(p.Frequency, occ, today) {
			continue
		}
		for _, tod := range occ.Times {
			at := today.At(tod, now.Location())
			if e.PastDue == PastDueDiscard && at.Before(now) {
				continue
			}
			out = append(out, NewReminder(p, at))
		}
	}
	return out
}

func occursOn(freq Frequency, occ Occurrence, today Date) bool {
	switch freq {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return occ.Weekday == today.Weekday()
	case FrequencyBiweekly:
		return occ.Weekday == today.Weekday() && DaysBetween(today, occ.Anchor)%biweeklyCadenceDays == 0
	case FrequencyMonthly:
		return occ.Weekday == today.Weekday() && DaysBetween(today, occ.Anchor)%monthlyCadenceDays == 0
	case FrequencyCustom:
		return occ.Date.Equal(today)
	default:
		return false
	}
}

// Expand uses the default include-past-due policy.
func Expand(p Prescription, now time.Time) []Reminder {
	return Expander{PastDue: PastDueInclude}.Expand(p, now)
}
