package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

var (
	ErrNotFound      = errors.New("storage: not found")
	ErrCorruptRecord = errors.New("storage: corrupt record")
)

type Repository interface {
	SaveQueue(ctx context.Context, reminders []model.Reminder) error
	LoadQueue(ctx context.Context) ([]model.Reminder, error)

	SaveLedger(ctx context.Context, entries []model.LedgerEntry) error
	LoadLedger(ctx context.Context) ([]model.LedgerEntry, error)

	AppendStatusReport(ctx context.Context, report model.StatusReport) (model.StatusReport, error)
	GetStatusReport(ctx context.Context, id string) (model.StatusReport, error)
	ListStatusReports(ctx context.Context, filter ReportListFilter) ([]model.StatusReport, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
}
