package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rpattn/quotanorm/internal/domain"
)

var quotaColumns = []string{
	"cat1_code",
	"cat2_code",
	"model_code",
	"process_code",
	"unit_price",
	"effective_date",
	"obsolete_date",
	"created_by",
	"created_at",
}

type quotaRepository struct {
	pool *pgxpool.Pool
}

// NewQuotaRepository wires a repository backed by pgxpool.
func NewQuotaRepository(pool *pgxpool.Pool) QuotaRepository {
	return &quotaRepository{pool: pool}
}

// Append copies rows into quotas in chunks of ChunkSize. The caller owns tx,
// so a failing chunk leaves nothing behind once tx rolls back.
func (r *quotaRepository) Append(ctx context.Context, tx pgx.Tx, rows []domain.ResolvedQuotaRow) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("quota append requires a transaction")
	}
	var total int64
	for i, chunk := range chunks(rows, ChunkSize) {
		copyRows, err := quotaCopyRows(chunk)
		if err != nil {
			return total, err
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"quotas"}, quotaColumns, pgx.CopyFromRows(copyRows))
		if err != nil {
			return total, fmt.Errorf("failed to copy quota chunk %d: %w", i+1, err)
		}
		total += n
	}
	return total, nil
}

func quotaCopyRows(rows []domain.ResolvedQuotaRow) ([][]any, error) {
	out := make([][]any, len(rows))
	for i, row := range rows {
		var price pgtype.Numeric
		if err := price.Scan(row.UnitPrice.String()); err != nil {
			return nil, fmt.Errorf("encode unit price %s: %w", row.UnitPrice, err)
		}
		out[i] = []any{
			row.Cat1Code,
			row.Cat2Code,
			row.ModelCode,
			row.ProcessCode,
			price,
			row.EffectiveDate,
			row.ObsoleteDate,
			row.CreatedBy,
			row.CreatedAt,
		}
	}
	return out, nil
}

// List returns every stored quota row ordered by sheet (category1, date).
func (r *quotaRepository) List(ctx context.Context) ([]domain.ResolvedQuotaRow, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("quota repository not initialized")
	}

	rows, err := r.pool.Query(ctx, `
		SELECT cat1_code, cat2_code, model_code, process_code, unit_price::text,
		       effective_date, obsolete_date, created_by, created_at
		FROM quotas
		ORDER BY cat1_code, effective_date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotas: %w", err)
	}
	defer rows.Close()

	result := []domain.ResolvedQuotaRow{}
	for rows.Next() {
		var (
			row   domain.ResolvedQuotaRow
			price string
		)
		if err := rows.Scan(
			&row.Cat1Code,
			&row.Cat2Code,
			&row.ModelCode,
			&row.ProcessCode,
			&price,
			&row.EffectiveDate,
			&row.ObsoleteDate,
			&row.CreatedBy,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quota: %w", err)
		}
		row.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("failed to parse unit price %q: %w", price, err)
		}
		row.EffectiveDate = strings.TrimSpace(row.EffectiveDate)
		row.ObsoleteDate = strings.TrimSpace(row.ObsoleteDate)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quotas: %w", err)
	}
	return result, nil
}
