package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rpattn/quotanorm/internal/domain"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "data format", err: &domain.DataFormatError{Field: "effective_from", Value: "x"}, want: ReasonDataFormat},
		{name: "integrity", err: fmt.Errorf("load: %w", &domain.DictionaryIntegrityError{Domain: domain.DomainModel}), want: ReasonDictionaryIntegrity},
		{name: "unresolved", err: &domain.UnresolvedLabelError{}, want: ReasonUnresolvedLabel},
		{name: "export", err: &domain.ExportError{Err: errors.New("disk")}, want: ReasonExport},
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: ReasonUniqueViolation},
		{name: "db", err: &pgconn.PgError{Code: "08006"}, want: ReasonDB},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveRunCountsOutcomes(t *testing.T) {
	m := New(Config{})
	m.ObserveRun(JobLoad, time.Now(), nil)
	m.ObserveRun(JobLoad, time.Now(), &domain.UnresolvedLabelError{})
	m.AddRecords(JobLoad, "loaded", 3)
	m.AddRecords(JobLoad, "loaded", 0)

	if got := testutil.ToFloat64(m.runs.WithLabelValues(JobLoad, "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues(JobLoad, ReasonUnresolvedLabel)); got != 1 {
		t.Fatalf("expected 1 unresolved failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.records.WithLabelValues(JobLoad, "loaded")); got != 3 {
		t.Fatalf("expected 3 records, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New(Config{ServiceName: "test"})
	m.ObserveRun(JobReport, time.Now(), nil)

	path := filepath.Join(t.TempDir(), "quotanorm.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `quotanorm_job_runs_total{job="report",outcome="success",service="test"} 1`) {
		t.Fatalf("unexpected textfile contents:\n%s", data)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *BatchMetrics
	m.ObserveRun(JobLoad, time.Now(), errors.New("x"))
	m.AddRecords(JobLoad, "loaded", 1)
	if err := m.WriteTextfile("/nonexistent/file.prom"); err != nil {
		t.Fatalf("expected nil metrics to skip writing, got %v", err)
	}
}
