package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/rpattn/quotanorm/internal/domain"
)

// Source catalog column names.
const (
	columnSourceCode = "代码"
	columnCategory1  = "类别1"
	columnCategory2  = "类别2"
	columnModel      = "型号"
	columnProcess    = "加工工序"
	columnUnitPrice  = "定额"
	columnEffective  = "effected_from"
)

// SQLiteCatalog reads the raw quota table of a sqlite catalog file.
type SQLiteCatalog struct {
	db    *sql.DB
	table string
}

// OpenSQLiteCatalog opens the catalog at path; table defaults to "quota".
func OpenSQLiteCatalog(ctx context.Context, path, table string) (*SQLiteCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("catalog path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewSQLiteCatalog(db, table), nil
}

// NewSQLiteCatalog wraps an already open handle.
func NewSQLiteCatalog(db *sql.DB, table string) *SQLiteCatalog {
	if strings.TrimSpace(table) == "" {
		table = "quota"
	}
	return &SQLiteCatalog{db: db, table: table}
}

func (c *SQLiteCatalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ListRecords returns every catalog row ordered by the catalog row code.
func (c *SQLiteCatalog) ListRecords(ctx context.Context) ([]domain.CatalogRow, error) {
	if c.db == nil {
		return nil, fmt.Errorf("catalog reader not initialized")
	}

	query := fmt.Sprintf(
		`SELECT %s, %s, %s, %s, %s, %s, %s FROM %s ORDER BY %s`,
		quoteIdent(columnSourceCode),
		quoteIdent(columnCategory1),
		quoteIdent(columnCategory2),
		quoteIdent(columnModel),
		quoteIdent(columnProcess),
		quoteIdent(columnUnitPrice),
		quoteIdent(columnEffective),
		quoteIdent(c.table),
		quoteIdent(columnSourceCode),
	)
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []domain.CatalogRow{}
	for rows.Next() {
		position := len(records) + 1
		var code, cat1, cat2, model, process, price, effective any
		if err := rows.Scan(&code, &cat1, &cat2, &model, &process, &price, &effective); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}

		record := domain.QuotaRecord{
			Category1: textValue(cat1),
			Category2: textValue(cat2),
			Model:     textValue(model),
			Process:   textValue(process),
		}
		record.UnitPrice, err = decimalValue(price)
		if err != nil {
			return nil, &domain.DataFormatError{Field: "unit_price", Value: textValue(price), Key: record.Key(), Row: position, Err: err}
		}
		record.EffectiveFrom = dateValue(effective)

		records = append(records, domain.CatalogRow{SourceCode: textValue(code), Record: record})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate catalog rows: %w", err)
	}
	return records, nil
}

func textValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []byte:
		return string(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case time.Time:
		return value.Format(time.RFC3339)
	default:
		return fmt.Sprint(value)
	}
}

func decimalValue(v any) (decimal.Decimal, error) {
	switch value := v.(type) {
	case nil:
		return decimal.Decimal{}, fmt.Errorf("missing price")
	case int64:
		return decimal.NewFromInt(value), nil
	case float64:
		return decimal.NewFromFloat(value), nil
	default:
		return decimal.NewFromString(strings.TrimSpace(textValue(value)))
	}
}

// dateValue renders an effective date stored as text, integer, real or
// date column as YYYYMMDD text; validation happens in the calculator.
func dateValue(v any) string {
	switch value := v.(type) {
	case float64:
		return strconv.FormatFloat(value, 'f', 0, 64)
	case time.Time:
		return domain.FormatDate(value)
	default:
		return strings.TrimSpace(textValue(value))
	}
}

// DistinctValues returns the non-blank distinct values of column in table,
// sorted ascending.
func (c *SQLiteCatalog) DistinctValues(ctx context.Context, table, column string) ([]string, error) {
	if c.db == nil {
		return nil, fmt.Errorf("catalog reader not initialized")
	}
	col := quoteIdent(column)
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s`,
		col, quoteIdent(table), col, col,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct %s.%s: %w", table, column, err)
	}
	defer func() { _ = rows.Close() }()

	values := []string{}
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s.%s: %w", table, column, err)
		}
		if value := strings.TrimSpace(textValue(raw)); value != "" {
			values = append(values, value)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s.%s: %w", table, column, err)
	}
	return values, nil
}
