// Package metrics records batch job outcomes and writes them in the
// Prometheus text format for the node exporter textfile collector.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rpattn/quotanorm/internal/domain"
)

const (
	JobLoad   = "load"
	JobReport = "report"
	JobCodes  = "codes"
)

const (
	ReasonDataFormat          = "data_format"
	ReasonDictionaryIntegrity = "dictionary_integrity"
	ReasonUnresolvedLabel     = "unresolved_label"
	ReasonExport              = "export"
	ReasonDeadlineExceeded    = "deadline_exceeded"
	ReasonUniqueViolation     = "unique_violation"
	ReasonDB                  = "db"
	ReasonUnknown             = "unknown"
)

type Config struct {
	ServiceName string
}

// BatchMetrics holds the counters of one process run. A nil *BatchMetrics
// records nothing.
type BatchMetrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	errors      *prometheus.CounterVec
	records     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func New(cfg Config) *BatchMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "quotanorm"
	}
	constLabels := prometheus.Labels{"service": serviceName}

	m := &BatchMetrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotanorm_job_runs_total",
			Help:        "Batch job runs by outcome.",
			ConstLabels: constLabels,
		}, []string{"job", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotanorm_job_errors_total",
			Help:        "Batch job failures by reason.",
			ConstLabels: constLabels,
		}, []string{"job", "reason"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quotanorm_records_total",
			Help:        "Records handled per pipeline stage.",
			ConstLabels: constLabels,
		}, []string{"job", "stage"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "quotanorm_job_duration_seconds",
			Help:        "Batch job wall time.",
			Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "quotanorm_job_last_success_timestamp_seconds",
			Help:        "Unix time of the last successful run.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}
	m.registry.MustRegister(m.runs, m.errors, m.records, m.duration, m.lastSuccess)
	return m
}

func (m *BatchMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddRecords counts n records passing stage of job.
func (m *BatchMetrics) AddRecords(job, stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(job, stage).Add(float64(n))
}

// ObserveRun records the outcome and duration of one job run.
func (m *BatchMetrics) ObserveRun(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, "failure").Inc()
		m.errors.WithLabelValues(job, ClassifyReason(err)).Inc()
		return
	}
	m.runs.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

// WriteTextfile writes every metric to path atomically. An empty path is a no-op.
func (m *BatchMetrics) WriteTextfile(path string) error {
	if m == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// ClassifyReason maps an error to a low-cardinality reason label.
func ClassifyReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrDataFormat):
		return ReasonDataFormat
	case errors.Is(err, domain.ErrDictionaryIntegrity):
		return ReasonDictionaryIntegrity
	case errors.Is(err, domain.ErrUnresolvedLabel):
		return ReasonUnresolvedLabel
	case errors.Is(err, domain.ErrExport):
		return ReasonExport
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ReasonUniqueViolation
		}
		return ReasonDB
	}
	return ReasonUnknown
}
