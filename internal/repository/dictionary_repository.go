package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/quotanorm/internal/domain"
)

// ChunkSize is the number of rows sent per COPY round trip.
const ChunkSize = 100

type dictionaryTable struct {
	name       string
	codeColumn string
}

var dictionaryTables = map[domain.DictionaryDomain]dictionaryTable{
	domain.DomainCategory1: {name: "process_cat1", codeColumn: "cat1_code"},
	domain.DomainCategory2: {name: "process_cat2", codeColumn: "cat2_code"},
	domain.DomainModel:     {name: "motor_models", codeColumn: "model_code"},
	domain.DomainProcess:   {name: "processes", codeColumn: "process_code"},
	domain.DomainWorker:    {name: "workers", codeColumn: "worker_code"},
}

func tableFor(d domain.DictionaryDomain) (dictionaryTable, error) {
	table, ok := dictionaryTables[d]
	if !ok {
		return dictionaryTable{}, fmt.Errorf("unknown dictionary domain %q", d)
	}
	return table, nil
}

type dictionaryRepository struct {
	pool *pgxpool.Pool
}

// NewDictionaryRepository wires a repository backed by pgxpool.
func NewDictionaryRepository(pool *pgxpool.Pool) DictionaryRepository {
	return &dictionaryRepository{pool: pool}
}

// Entries returns the raw name/code rows of d in insertion order. Duplicate
// names are returned as stored so the caller can detect them.
func (r *dictionaryRepository) Entries(ctx context.Context, d domain.DictionaryDomain) ([]domain.DictionaryEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("dictionary repository not initialized")
	}
	table, err := tableFor(d)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s, name FROM %s ORDER BY id`,
		pgx.Identifier{table.codeColumn}.Sanitize(),
		pgx.Identifier{table.name}.Sanitize(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table.name, err)
	}
	defer rows.Close()

	entries := []domain.DictionaryEntry{}
	for rows.Next() {
		var entry domain.DictionaryEntry
		if err := rows.Scan(&entry.Code, &entry.Name); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table.name, err)
		}
		entry.Code = strings.TrimSpace(entry.Code)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", table.name, err)
	}
	return entries, nil
}

// Insert appends entries to the table of d in one transaction.
func (r *dictionaryRepository) Insert(ctx context.Context, d domain.DictionaryDomain, entries []domain.DictionaryEntry, now time.Time) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("dictionary repository not initialized")
	}
	table, err := tableFor(d)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	columns := []string{table.codeColumn, "name", "description", "created_at", "updated_at"}
	var total int64
	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, chunk := range chunks(entries, ChunkSize) {
			n, err := tx.CopyFrom(ctx, pgx.Identifier{table.name}, columns, pgx.CopyFromRows(dictionaryCopyRows(chunk, now)))
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table.name, err)
	}
	return total, nil
}

func dictionaryCopyRows(entries []domain.DictionaryEntry, now time.Time) [][]any {
	rows := make([][]any, len(entries))
	for i, entry := range entries {
		rows[i] = []any{entry.Code, entry.Name, "", now, now}
	}
	return rows
}

// chunks splits items into consecutive slices of at most size elements.
func chunks[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(items)
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
