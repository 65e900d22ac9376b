package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/quotanorm/internal/domain"
)

// undefinedTable is the postgres error code for a missing relation.
const undefinedTable = "42P01"

type columnSequenceRepository struct {
	pool *pgxpool.Pool
}

// NewColumnSequenceRepository wires a repository backed by pgxpool.
func NewColumnSequenceRepository(pool *pgxpool.Pool) ColumnSequenceRepository {
	return &columnSequenceRepository{pool: pool}
}

// List returns the ordering table. A missing table yields nil, nil.
func (r *columnSequenceRepository) List(ctx context.Context) ([]domain.ColumnSequenceEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("column sequence repository not initialized")
	}

	rows, err := r.pool.Query(ctx, `SELECT cat1_name, cat2_name, process, seq FROM column_sequence ORDER BY id`)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query column sequence: %w", err)
	}
	defer rows.Close()

	entries := []domain.ColumnSequenceEntry{}
	for rows.Next() {
		var entry domain.ColumnSequenceEntry
		if err := rows.Scan(&entry.Category1, &entry.Category2, &entry.Process, &entry.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan column sequence: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to iterate column sequence: %w", err)
	}
	return entries, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
