package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/quotanorm/internal/domain"
)

const (
	insertRunLogSQL = `INSERT INTO run_logs (run_id, job, row_number, error_message)
VALUES (@run_id, @job, @row_number, @error_message)`

	listRunLogsSQL = `SELECT id, run_id, job, row_number, error_message, created_at
FROM run_logs
WHERE run_id = @run_id
ORDER BY id
LIMIT @limit OFFSET @offset`
)

var errRunLogsUnavailable = errors.New("run log repository not initialized")

type runLogRepository struct {
	pool *pgxpool.Pool
}

// NewRunLogRepository wires a repository backed by pgxpool.
func NewRunLogRepository(pool *pgxpool.Pool) RunLogRepository {
	return &runLogRepository{pool: pool}
}

func (r *runLogRepository) Record(ctx context.Context, entry domain.RunLogEntry) error {
	if r.pool == nil {
		return errRunLogsUnavailable
	}
	args := pgx.NamedArgs{
		"run_id":        entry.RunID,
		"job":           entry.Job,
		"row_number":    entry.RowNumber,
		"error_message": entry.ErrorMessage,
	}
	if _, err := r.pool.Exec(ctx, insertRunLogSQL, args); err != nil {
		return fmt.Errorf("failed to record %s run log: %w", entry.Job, err)
	}
	return nil
}

// List returns the entries of one run in the order they were written.
func (r *runLogRepository) List(ctx context.Context, runID uuid.UUID, limit int, offset int) ([]domain.RunLogEntry, error) {
	if r.pool == nil {
		return nil, errRunLogsUnavailable
	}
	page := NewPage(limit, offset)
	rows, err := r.pool.Query(ctx, listRunLogsSQL, pgx.NamedArgs{
		"run_id": runID,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs for %s: %w", runID, err)
	}
	entries, err := pgx.CollectRows(rows, scanRunLog)
	if err != nil {
		return nil, fmt.Errorf("failed to read run logs for %s: %w", runID, err)
	}
	return entries, nil
}

func scanRunLog(row pgx.CollectableRow) (domain.RunLogEntry, error) {
	var (
		entry     domain.RunLogEntry
		rowNumber *int32
	)
	if err := row.Scan(&entry.ID, &entry.RunID, &entry.Job, &rowNumber, &entry.ErrorMessage, &entry.CreatedAt); err != nil {
		return domain.RunLogEntry{}, err
	}
	if rowNumber != nil {
		n := int(*rowNumber)
		entry.RowNumber = &n
	}
	return entry, nil
}
