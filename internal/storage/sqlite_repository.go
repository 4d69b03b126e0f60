package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/medremind/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*SQLiteRepository)(nil)

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// OpenSQLite opens path, applies migrations, and returns the repository.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// SaveQueue replaces the stored queue with reminders, keeping their order.
func (r *SQLiteRepository) SaveQueue(ctx context.Context, reminders []model.Reminder) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queued_reminders`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO queued_reminders (position, fingerprint, prescription_id, medication_name, dose, unit, route,
				origin_at, scheduled_at, defer_count, defer_interval_ms, state, displayed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, rem := range reminders {
			if _, err := stmt.ExecContext(ctx,
				i, rem.Fingerprint().String(), rem.PrescriptionID, rem.MedicationName, rem.Dose, rem.Unit, rem.Route,
				mustTime(rem.OriginAt), mustTime(rem.ScheduledAt), rem.DeferCount, rem.DeferInterval.Milliseconds(),
				string(rem.State), nullTime(rem.DisplayedAt),
			); err != nil {
				return fmt.Errorf("insert reminder %d: %w", i, err)
			}
		}
		return nil
	})
}

// LoadQueue returns the stored queue in saved order. A row whose stored
// fingerprint no longer matches its fields fails with ErrCorruptRecord.
func (r *SQLiteRepository) LoadQueue(ctx context.Context) ([]model.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT position, fingerprint, prescription_id, medication_name, dose, unit, route,
			origin_at, scheduled_at, defer_count, defer_interval_ms, state, displayed_at
		FROM queued_reminders ORDER BY position ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Reminder, 0)
	for rows.Next() {
		row, scanErr := scanQueuedReminder(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rem := row.toModel()
		if rem.Fingerprint().String() != row.Fingerprint {
			return nil, fmt.Errorf("%w: queued reminder at position %d", ErrCorruptRecord, row.Position)
		}
		out = append(out, rem)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveLedger(ctx context.Context, entries []model.LedgerEntry) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries`); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_entries (fingerprint, recorded_at) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.Fingerprint.String(), mustTime(e.RecordedAt)); err != nil {
				return fmt.Errorf("insert ledger entry %s: %w", e.Fingerprint, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) LoadLedger(ctx context.Context) ([]model.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT fingerprint, recorded_at FROM ledger_entries ORDER BY recorded_at ASC, fingerprint ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.LedgerEntry, 0)
	for rows.Next() {
		var fp, recorded string
		if err := rows.Scan(&fp, &recorded); err != nil {
			return nil, err
		}
		parsed, err := model.ParseFingerprint(fp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		recordedAt, err := parseRequiredTime(recorded)
		if err != nil {
			return nil, err
		}
		out = append(out, model.LedgerEntry{Fingerprint: parsed, RecordedAt: recordedAt})
	}
	return out, rows.Err()
}

// AppendStatusReport stores report in the outbox, assigning an id and a
// creation time when missing.
func (r *SQLiteRepository) AppendStatusReport(ctx context.Context, report model.StatusReport) (model.StatusReport, error) {
	if err := report.Validate(); err != nil {
		return model.StatusReport{}, err
	}
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = r.now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO status_reports (id, prescription_id, reminder_at, status, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, report.PrescriptionID, mustTime(report.ReminderAt), string(report.Status),
		mustTime(report.CreatedAt), nullTime(report.DeliveredAt),
	)
	if err != nil {
		return model.StatusReport{}, err
	}
	return report, nil
}

func (r *SQLiteRepository) GetStatusReport(ctx context.Context, id string) (model.StatusReport, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, prescription_id, reminder_at, status, created_at, delivered_at
		FROM status_reports WHERE id = ?`, id)
	report, err := scanStatusReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StatusReport{}, ErrNotFound
		}
		return model.StatusReport{}, err
	}
	return report, nil
}

func (r *SQLiteRepository) ListStatusReports(ctx context.Context, filter ReportListFilter) ([]model.StatusReport, error) {
	query := `SELECT id, prescription_id, reminder_at, status, created_at, delivered_at FROM status_reports`
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if filter.PrescriptionID != "" {
		clauses = append(clauses, "prescription_id = ?")
		args = append(args, filter.PrescriptionID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Undelivered {
		clauses = append(clauses, "delivered_at IS NULL")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.StatusReport, 0)
	for rows.Next() {
		item, scanErr := scanStatusReport(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE status_reports SET delivered_at = ? WHERE id = ?`, mustTime(at), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			sql += " LIMIT -1"
		}
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQueuedReminder(s scanner) (queuedReminder, error) {
	var out queuedReminder
	var origin, scheduled string
	var displayed sql.NullString
	if err := s.Scan(&out.Position, &out.Fingerprint, &out.PrescriptionID, &out.MedicationName, &out.Dose, &out.Unit, &out.Route,
		&origin, &scheduled, &out.DeferCount, &out.DeferIntervalMS, &out.State, &displayed); err != nil {
		return queuedReminder{}, err
	}
	originAt, err := parseRequiredTime(origin)
	if err != nil {
		return queuedReminder{}, err
	}
	scheduledAt, err := parseRequiredTime(scheduled)
	if err != nil {
		return queuedReminder{}, err
	}
	displayedAt, err := parseNullableTime(displayed)
	if err != nil {
		return queuedReminder{}, err
	}
	out.OriginAt = originAt
	out.ScheduledAt = scheduledAt
	out.DisplayedAt = displayedAt
	return out, nil
}

func (q queuedReminder) toModel() model.Reminder {
	return model.Reminder{
		PrescriptionID: q.PrescriptionID,
		MedicationName: q.MedicationName,
		Dose:           q.Dose,
		Unit:           q.Unit,
		Route:          q.Route,
		OriginAt:       q.OriginAt,
		ScheduledAt:    q.ScheduledAt,
		DeferCount:     q.DeferCount,
		DeferInterval:  time.Duration(q.DeferIntervalMS) * time.Millisecond,
		State:          model.State(q.State),
		DisplayedAt:    q.DisplayedAt,
	}
}

func scanStatusReport(s scanner) (model.StatusReport, error) {
	var out model.StatusReport
	var reminder, status, created string
	var delivered sql.NullString
	if err := s.Scan(&out.ID, &out.PrescriptionID, &reminder, &status, &created, &delivered); err != nil {
		return model.StatusReport{}, err
	}
	reminderAt, err := parseRequiredTime(reminder)
	if err != nil {
		return model.StatusReport{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.StatusReport{}, err
	}
	deliveredAt, err := parseNullableTime(delivered)
	if err != nil {
		return model.StatusReport{}, err
	}
	out.ReminderAt = reminderAt
	out.Status = model.State(status)
	out.CreatedAt = createdAt
	out.DeliveredAt = deliveredAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
