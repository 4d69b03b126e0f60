package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDate      = errors.New("model: invalid date")
	ErrInvalidTimeOfDay = errors.New("model: invalid time of day")
	ErrInvalidWeekday   = errors.New("model: invalid weekday")
)

const dateLayout = "2006-01-02"

// Date is a calendar date with no clock or zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate accepts either a bare "2006-01-02" date or a full RFC3339
// timestamp. Timestamps are reduced to their UTC calendar date, which is how
// the upstream server encodes start/end dates.
func ParseDate(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Date{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return DateOf(t.UTC()), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// At returns the instant on d at the given clock time in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, 0, 0, loc)
}

func (d Date) Before(o Date) bool {
	return d.ordinal() < o.ordinal()
}

func (d Date) Equal(o Date) bool {
	return d.ordinal() == o.ordinal()
}

func (d Date) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

func (d Date) String() string {
	return d.midnightUTC().Format(dateLayout)
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) ordinal() int64 {
	return d.midnightUTC().Unix() / 86400
}

// DaysBetween returns the absolute number of whole days separating a and b.
func DaysBetween(a, b Date) int {
	diff := a.ordinal() - b.ordinal()
	if diff < 0 {
		diff = -diff
	}
	return int(diff)
}

// TimeOfDay is a wall-clock "HH:MM" value.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, raw)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func ParseWeekday(raw string) (time.Weekday, error) {
	if d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return d, nil
	}
	return time.Sunday, fmt.Errorf("%w: %q", ErrInvalidWeekday, raw)
}
