package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

// timestamps are stored as fixed-width UTC text so they sort in both dialects
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const defaultListLimit = 50

type RunRepository interface {
	SaveRun(ctx context.Context, run *entity.RunRecord) error
	GetRun(ctx context.Context, id uuid.UUID) (*entity.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*entity.RunRecord, error)
}

type runRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewRunRepository(db *DB, logger *slog.Logger) RunRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &runRepository{db: db, logger: logger}
}

// SaveRun inserts the run, or replaces it when the id already exists.
func (r *runRepository) SaveRun(ctx context.Context, run *entity.RunRecord) error {
	if run == nil || run.ID == uuid.Nil {
		return common.InvalidInputErrorf("run id is required")
	}

	var draft sql.NullString
	if run.Draft != nil {
		raw, err := json.Marshal(run.Draft)
		if err != nil {
			return fmt.Errorf("encode draft: %w", err)
		}
		draft = sql.NullString{String: string(raw), Valid: true}
	}

	q := r.db.rebind(`INSERT INTO bill_runs (
		id, source_path, content_hash, invoice_number, vendor_id, mode, status,
		degraded, draft, bill_id, error_message, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		status = excluded.status,
		degraded = excluded.degraded,
		draft = excluded.draft,
		bill_id = excluded.bill_id,
		error_message = excluded.error_message,
		finished_at = excluded.finished_at`)

	_, err := r.db.SQL.ExecContext(ctx, q,
		run.ID.String(),
		run.SourcePath,
		run.ContentHash,
		run.InvoiceNumber,
		run.VendorID,
		string(run.Mode),
		string(run.Status),
		run.Degraded,
		draft,
		run.BillID,
		run.ErrorMessage,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
	)
	if err != nil {
		r.logger.Error("failed to save run", "run_id", run.ID.String(), "error", err)
		return fmt.Errorf("%w: save run: %v", common.ErrDatabase, err)
	}
	r.logger.Debug("run saved", "run_id", run.ID.String(), "status", string(run.Status))
	return nil
}

const selectRuns = `SELECT id, source_path, content_hash, invoice_number, vendor_id, mode, status,
	degraded, draft, bill_id, error_message, started_at, finished_at FROM bill_runs`

func (r *runRepository) GetRun(ctx context.Context, id uuid.UUID) (*entity.RunRecord, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.rebind(selectRuns+` WHERE id = ?`), id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get run", "run_id", id.String(), "error", err)
		return nil, fmt.Errorf("%w: get run: %v", common.ErrDatabase, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 uses a default.
func (r *runRepository) ListRuns(ctx context.Context, limit int) ([]*entity.RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(selectRuns+` ORDER BY started_at DESC, id LIMIT ?`), limit)
	if err != nil {
		r.logger.Error("failed to list runs", "error", err)
		return nil, fmt.Errorf("%w: list runs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var runs []*entity.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan run: %v", common.ErrDatabase, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list runs: %v", common.ErrDatabase, err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*entity.RunRecord, error) {
	var (
		run               entity.RunRecord
		id, mode, status  string
		draft             sql.NullString
		started, finished string
	)
	err := s.Scan(&id, &run.SourcePath, &run.ContentHash, &run.InvoiceNumber, &run.VendorID,
		&mode, &status, &run.Degraded, &draft, &run.BillID, &run.ErrorMessage, &started, &finished)
	if err != nil {
		return nil, err
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	run.Mode = constants.MatchMode(mode)
	run.Status = constants.RunStatus(status)
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}
	if draft.Valid && draft.String != "" {
		run.Draft = &entity.BillDraft{}
		if err := json.Unmarshal([]byte(draft.String), run.Draft); err != nil {
			return nil, fmt.Errorf("decode draft for run %s: %w", id, err)
		}
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
