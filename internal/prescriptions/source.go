// Package prescriptions reads the prescription payload synced from upstream
// and turns it into validated model.Prescription values.
package prescriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sandeepkv93/medremind/internal/logging"
	"github.com/sandeepkv93/medremind/internal/model"
)

var ErrMalformedPayload = errors.New("prescriptions: malformed payload")

// Payload is the document written by the sync companion.
type Payload struct {
	PatientID     model.FlexString  `json:"patientId"`
	Prescriptions []json.RawMessage `json:"prescriptions"`
}

// Batch is the outcome of parsing one payload.
type Batch struct {
	PatientID     string
	Prescriptions []model.Prescription
	Rejected      []*model.RejectionError
}

// Held returns the ids of rejected records that carried an id. Their queued
// reminders are left alone until a valid version arrives.
func (b Batch) Held() []string {
	out := make([]string, 0, len(b.Rejected))
	for _, rej := range b.Rejected {
		if rej.PrescriptionID != "" {
			out = append(out, rej.PrescriptionID)
		}
	}
	return out
}

// Decode reads a payload. Records are decoded one at a time so a record with
// a wrong JSON shape is rejected alone.
func Decode(r io.Reader) (Batch, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Batch{}, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return Batch{}, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	records := make([]model.PrescriptionRecord, 0, len(payload.Prescriptions))
	var rejected []*model.RejectionError
	for i, item := range payload.Prescriptions {
		var rec model.PrescriptionRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			rejected = append(rejected, &model.RejectionError{
				PrescriptionID: peekID(item),
				Reason:         model.ErrInvalidPrescription,
				Detail:         fmt.Sprintf("record %d", i),
				Cause:          err,
			})
			continue
		}
		records = append(records, rec)
	}

	parsed, parseRejected := model.ParsePrescriptions(records)
	return Batch{
		PatientID:     strings.TrimSpace(string(payload.PatientID)),
		Prescriptions: parsed,
		Rejected:      append(rejected, parseRejected...),
	}, nil
}

func peekID(raw json.RawMessage) string {
	var probe struct {
		ID model.FlexString `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(string(probe.ID))
}

type RejectionObserver interface {
	ObserveRejection(incomplete bool)
}

// FileSource loads prescriptions from a JSON file on every call.
type FileSource struct {
	path     string
	log      logging.Logger
	observer RejectionObserver
}

func NewFileSource(path string, log logging.Logger, observer RejectionObserver) *FileSource {
	if log == nil {
		log = logging.NewNop()
	}
	return &FileSource{path: path, log: log, observer: observer}
}

func (s *FileSource) Path() string {
	return s.path
}

// Load satisfies scheduler.Source. A missing file is an error rather than an
// empty list so that an unsynced device never cancels its queue.
func (s *FileSource) Load(ctx context.Context) ([]model.Prescription, []string, error) {
	batch, err := s.LoadBatch(ctx)
	if err != nil {
		return nil, nil, err
	}
	return batch.Prescriptions, batch.Held(), nil
}

func (s *FileSource) LoadBatch(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return Batch{}, fmt.Errorf("open prescriptions: %w", err)
	}
	defer f.Close()

	batch, err := Decode(f)
	if err != nil {
		return Batch{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	for _, rej := range batch.Rejected {
		fields := []logging.Field{
			logging.String("prescription_id", rej.PrescriptionID),
			logging.String("detail", rej.Detail),
			logging.Err(rej),
		}
		if rej.Incomplete() {
			s.log.Warn("skipping incomplete prescription", fields...)
		} else {
			s.log.Error("skipping invalid prescription", fields...)
		}
		if s.observer != nil {
			s.observer.ObserveRejection(rej.Incomplete())
		}
	}
	return batch, nil
}
