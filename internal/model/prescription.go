package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrIncompletePrescription = errors.New("model: incomplete prescription")
	ErrInvalidPrescription    = errors.New("model: invalid prescription")
	ErrInvalidFrequency       = errors.New("model: invalid frequency")
)

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
	FrequencyCustom   Frequency = "custom"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly, FrequencyCustom:
		return true
	default:
		return false
	}
}

// FlexString decodes a JSON string or number into its textual form. The
// server sends doses and ids as either.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("model: expected string or number, got %s", data)
	}
	*s = FlexString(n.String())
	return nil
}

// PrescriptionRecord is the prescription as delivered by upstream sync,
// before any validation.
type PrescriptionRecord struct {
	ID             FlexString         `json:"id"`
	MedicationName string             `json:"medicationName"`
	Dose           FlexString         `json:"dose"`
	Unit           string             `json:"unit"`
	Route          string             `json:"route,omitempty"`
	StartDate      string             `json:"startDate"`
	EndDate        string             `json:"endDate,omitempty"`
	Frequency      string             `json:"frequency"`
	Occurrences    []OccurrenceRecord `json:"occurrences"`
	DeferInterval  *float64           `json:"deferInterval"`
	CreatedAt      string             `json:"createdAt,omitempty"`
	UpdatedAt      string             `json:"updatedAt,omitempty"`
}

type OccurrenceRecord struct {
	Day      string   `json:"day,omitempty"`
	Starting string   `json:"starting,omitempty"`
	Times    []string `json:"times"`
}

// Occurrence is one resolved occurrence rule. Which fields are meaningful
// depends on the owning prescription's frequency: Weekday for weekly-style
// rules, Anchor additionally for biweekly/monthly, Date for custom.
type Occurrence struct {
	Weekday time.Weekday
	Anchor  Date
	Date    Date
	Times   []TimeOfDay
}

type Prescription struct {
	ID             string
	MedicationName string
	Dose           string
	Unit           string
	Route          string
	StartDate      Date
	EndDate        *Date
	Frequency      Frequency
	Occurrences    []Occurrence
	DeferInterval  time.Duration
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RejectionError explains why a record was not accepted as a prescription.
// Reason is ErrIncompletePrescription or ErrInvalidPrescription.
type RejectionError struct {
	PrescriptionID string
	Reason         error
	Detail         string
	Cause          error
}

func (e *RejectionError) Error() string {
	id := e.PrescriptionID
	if id == "" {
		id = "<no id>"
	}
	msg := fmt.Sprintf("prescription %s rejected: %v: %s", id, e.Reason, e.Detail)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RejectionError) Unwrap() []error {
	out := []error{e.Reason}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// Incomplete reports whether the record was merely missing fields, as opposed
// to carrying values that could not be parsed.
func (e *RejectionError) Incomplete() bool {
	return errors.Is(e.Reason, ErrIncompletePrescription)
}

func incomplete(id, detail string) *RejectionError {
	return &RejectionError{PrescriptionID: id, Reason: ErrIncompletePrescription, Detail: detail}
}

func invalid(id, detail string, cause error) *RejectionError {
	return &RejectionError{PrescriptionID: id, Reason: ErrInvalidPrescription, Detail: detail, Cause: cause}
}

// ParsePrescription validates every required field of rec and returns the
// typed prescription, or a *RejectionError. Nothing downstream re-checks.
func ParsePrescription(rec PrescriptionRecord) (Prescription, error) {
	id := strings.TrimSpace(string(rec.ID))
	if id == "" {
		return Prescription{}, incomplete("", "id is required")
	}
	out := Prescription{
		ID:             id,
		MedicationName: strings.TrimSpace(rec.MedicationName),
		Dose:           strings.TrimSpace(string(rec.Dose)),
		Unit:           strings.TrimSpace(rec.Unit),
		Route:          strings.TrimSpace(rec.Route),
		Frequency:      Frequency(strings.ToLower(strings.TrimSpace(rec.Frequency))),
	}
	switch {
	case out.MedicationName == "":
		return Prescription{}, incomplete(id, "medicationName is required")
	case out.Dose == "":
		return Prescription{}, incomplete(id, "dose is required")
	case out.Unit == "":
		return Prescription{}, incomplete(id, "unit is required")
	case strings.TrimSpace(rec.StartDate) == "":
		return Prescription{}, incomplete(id, "startDate is required")
	case rec.Frequency == "":
		return Prescription{}, incomplete(id, "frequency is required")
	case len(rec.Occurrences) == 0:
		return Prescription{}, incomplete(id, "occurrences are required")
	case rec.DeferInterval == nil:
		return Prescription{}, incomplete(id, "deferInterval is required")
	}
	if !out.Frequency.IsValid() {
		return Prescription{}, invalid(id, "frequency", fmt.Errorf("%w: %q", ErrInvalidFrequency, rec.Frequency))
	}
	if *rec.DeferInterval <= 0 {
		return Prescription{}, invalid(id, "deferInterval must be positive", nil)
	}
	out.DeferInterval = time.Duration(*rec.DeferInterval * float64(time.Minute))

	start, err := ParseDate(rec.StartDate)
	if err != nil {
		return Prescription{}, invalid(id, "startDate", err)
	}
	out.StartDate = start
	if strings.TrimSpace(rec.EndDate) != "" {
		end, err := ParseDate(rec.EndDate)
		if err != nil {
			return Prescription{}, invalid(id, "endDate", err)
		}
		out.EndDate = &end
	}

	occurrences := rec.Occurrences
	if out.Frequency == FrequencyDaily {
		occurrences = occurrences[:1]
	}
	for i, occ := range occurrences {
		parsed, rej := parseOccurrence(id, i, out.Frequency, occ)
		if rej != nil {
			return Prescription{}, rej
		}
		out.Occurrences = append(out.Occurrences, parsed)
	}

	if out.CreatedAt, err = parseAuditTime(rec.CreatedAt); err != nil {
		return Prescription{}, invalid(id, "createdAt", err)
	}
	if out.UpdatedAt, err = parseAuditTime(rec.UpdatedAt); err != nil {
		return Prescription{}, invalid(id, "updatedAt", err)
	}
	return out, nil
}

func parseOccurrence(id string, idx int, freq Frequency, rec OccurrenceRecord) (Occurrence, *RejectionError) {
	field := "occurrences[" + strconv.Itoa(idx) + "]"
	var out Occurrence
	if len(rec.Times) == 0 {
		return Occurrence{}, incomplete(id, field+".times are required")
	}
	for _, raw := range rec.Times {
		tod, err := ParseTimeOfDay(raw)
		if err != nil {
			return Occurrence{}, invalid(id, field+".times", err)
		}
		out.Times = append(out.Times, tod)
	}

	switch freq {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		if strings.TrimSpace(rec.Day) == "" {
			return Occurrence{}, incomplete(id, field+".day is required")
		}
		wd, err := ParseWeekday(rec.Day)
		if err != nil {
			return Occurrence{}, invalid(id, field+".day", err)
		}
		out.Weekday = wd
		if freq == FrequencyWeekly {
			break
		}
		if strings.TrimSpace(rec.Starting) == "" {
			return Occurrence{}, incomplete(id, field+".starting is required")
		}
		anchor, err := ParseDate(rec.Starting)
		if err != nil {
			return Occurrence{}, invalid(id, field+".starting", err)
		}
		out.Anchor = anchor
	case FrequencyCustom:
		if strings.TrimSpace(rec.Day) == "" {
			return Occurrence{}, incomplete(id, field+".day is required")
		}
		date, err := ParseDate(rec.Day)
		if err != nil {
			return Occurrence{}, invalid(id, field+".day", err)
		}
		out.Date = date
	}
	return out, nil
}

func parseAuditTime(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
}

// ParsePrescriptions parses every record independently. A rejected record
// never prevents the others from being returned.
func ParsePrescriptions(recs []PrescriptionRecord) ([]Prescription, []*RejectionError) {
	out := make([]Prescription, 0, len(recs))
	var rejected []*RejectionError
	for _, rec := range recs {
		p, err := ParsePrescription(rec)
		if err != nil {
			var rej *RejectionError
			if errors.As(err, &rej) {
				rejected = append(rejected, rej)
				continue
			}
			rejected = append(rejected, invalid(string(rec.ID), "unexpected", err))
			continue
		}
		out = append(out, p)
	}
	return out, rejected
}

// Active reports whether the prescription's window covers day. The end date
// is exclusive and a missing end date is unbounded.
func (p Prescription) Active(day Date) bool {
	if day.Before(p.StartDate) {
		return false
	}
	if p.EndDate != nil && !day.Before(*p.EndDate) {
		return false
	}
	return true
}
