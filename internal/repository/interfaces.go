package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/quotanorm/internal/domain"
)

// CatalogReader reads raw quota rows from the source catalog.
type CatalogReader interface {
	ListRecords(ctx context.Context) ([]domain.CatalogRow, error)
}

// DistinctValueReader lists the distinct values of one source column.
type DistinctValueReader interface {
	DistinctValues(ctx context.Context, table, column string) ([]string, error)
}

// DictionaryRepository reads and extends the name/code reference tables.
type DictionaryRepository interface {
	Entries(ctx context.Context, d domain.DictionaryDomain) ([]domain.DictionaryEntry, error)
	Insert(ctx context.Context, d domain.DictionaryDomain, entries []domain.DictionaryEntry, now time.Time) (int64, error)
}

// ColumnSequenceRepository reads the report column ordering table.
type ColumnSequenceRepository interface {
	List(ctx context.Context) ([]domain.ColumnSequenceEntry, error)
}

// QuotaRepository stores resolved quota rows.
type QuotaRepository interface {
	// Append bulk inserts rows inside tx.
	Append(ctx context.Context, tx pgx.Tx, rows []domain.ResolvedQuotaRow) (int64, error)
	List(ctx context.Context) ([]domain.ResolvedQuotaRow, error)
}

// RunLogRepository stores batch run problems for later inspection.
type RunLogRepository interface {
	Record(ctx context.Context, entry domain.RunLogEntry) error
	List(ctx context.Context, runID uuid.UUID, limit int, offset int) ([]domain.RunLogEntry, error)
}

// Transactor runs fn inside a single database transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}
