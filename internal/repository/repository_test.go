package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/rpattn/quotanorm/internal/domain"
)

func TestChunks(t *testing.T) {
	items := make([]int, 250)
	got := chunks(items, ChunkSize)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if len(got[0]) != 100 || len(got[1]) != 100 || len(got[2]) != 50 {
		t.Fatalf("unexpected chunk sizes %d %d %d", len(got[0]), len(got[1]), len(got[2]))
	}
	if chunks([]int{}, ChunkSize) != nil {
		t.Fatalf("expected nil for empty input")
	}
	if len(chunks([]int{1, 2}, 0)) != 1 {
		t.Fatalf("expected a single chunk when size is not positive")
	}
}

func TestQuotaCopyRowsEncodesPrice(t *testing.T) {
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	rows, err := quotaCopyRows([]domain.ResolvedQuotaRow{{
		Cat1Code:      "C01",
		Cat2Code:      "2RXZ",
		ModelCode:     "100-2",
		ProcessCode:   "P01",
		UnitPrice:     decimal.RequireFromString("10.55"),
		EffectiveDate: "20230101",
		ObsoleteDate:  domain.SentinelDate,
		CreatedBy:     domain.DefaultCreatedBy,
		CreatedAt:     created,
	}})
	if err != nil {
		t.Fatalf("copy rows: %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != len(quotaColumns) {
		t.Fatalf("unexpected row shape %v", rows)
	}
	price, ok := rows[0][4].(pgtype.Numeric)
	if !ok || !price.Valid {
		t.Fatalf("expected valid numeric price, got %#v", rows[0][4])
	}
	if got := decimal.NewFromBigInt(price.Int, price.Exp); !got.Equal(decimal.RequireFromString("10.55")) {
		t.Fatalf("unexpected numeric %s", got)
	}
	if rows[0][8] != created {
		t.Fatalf("expected created_at to pass through")
	}
}

func TestTableFor(t *testing.T) {
	table, err := tableFor(domain.DomainModel)
	if err != nil {
		t.Fatalf("table for model: %v", err)
	}
	if table.name != "motor_models" || table.codeColumn != "model_code" {
		t.Fatalf("unexpected table %+v", table)
	}
	if _, err := tableFor("unknown"); err == nil {
		t.Fatalf("expected error for unknown domain")
	}
}

func TestUninitializedRepositoriesFail(t *testing.T) {
	ctx := context.Background()
	if _, err := NewDictionaryRepository(nil).Entries(ctx, domain.DomainModel); err == nil {
		t.Fatalf("expected dictionary repository error")
	}
	if _, err := NewColumnSequenceRepository(nil).List(ctx); err == nil {
		t.Fatalf("expected column sequence repository error")
	}
	if _, err := NewQuotaRepository(nil).List(ctx); err == nil {
		t.Fatalf("expected quota repository error")
	}
	if _, err := NewQuotaRepository(nil).Append(ctx, nil, nil); err == nil {
		t.Fatalf("expected append without transaction to fail")
	}
	if err := NewRunLogRepository(nil).Record(ctx, domain.RunLogEntry{}); err == nil {
		t.Fatalf("expected run log repository error")
	}
	if _, err := NewRunLogRepository(nil).List(ctx, uuid.New(), 10, 0); err == nil {
		t.Fatalf("expected run log list error")
	}
}

func TestNewPage(t *testing.T) {
	cases := []struct {
		limit, offset int
		want          Page
	}{
		{limit: 0, offset: 0, want: Page{Limit: 200}},
		{limit: -5, offset: -1, want: Page{Limit: 200}},
		{limit: 50, offset: 100, want: Page{Limit: 50, Offset: 100}},
		{limit: 100000, offset: 3, want: Page{Limit: 5000, Offset: 3}},
	}
	for _, tc := range cases {
		if got := NewPage(tc.limit, tc.offset); got != tc.want {
			t.Fatalf("NewPage(%d, %d) = %+v, want %+v", tc.limit, tc.offset, got, tc.want)
		}
	}
}
