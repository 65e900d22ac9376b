// Package export renders the stored quotas as a cross-tab workbook and
// writes it to the configured blob store.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/quotanorm/internal/blob"
	"github.com/rpattn/quotanorm/internal/domain"
	"github.com/rpattn/quotanorm/internal/logging"
	"github.com/rpattn/quotanorm/internal/metrics"
	"github.com/rpattn/quotanorm/internal/report"
	"github.com/rpattn/quotanorm/internal/repository"
	"github.com/rpattn/quotanorm/internal/retry"
)

const (
	// WorkbookContentType is the media type of generated workbooks.
	WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultOutput = "quota_report"
)

type Service struct {
	quotas    repository.QuotaRepository
	dicts     repository.DictionaryRepository
	sequences repository.ColumnSequenceRepository
	store     blob.Store
	runLogs   repository.RunLogRepository

	retry       *retry.Policy
	metrics     *metrics.BatchMetrics
	logger      *zap.Logger
	cornerLabel string
	now         func() time.Time
}

type Option func(*Service)

func WithRunLog(repo repository.RunLogRepository) Option {
	return func(s *Service) { s.runLogs = repo }
}

func WithRetry(policy *retry.Policy) Option {
	return func(s *Service) { s.retry = policy }
}

func WithMetrics(m *metrics.BatchMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCornerLabel sets the header above the model column of each section.
func WithCornerLabel(text string) Option {
	return func(s *Service) {
		if strings.TrimSpace(text) != "" {
			s.cornerLabel = text
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(
	quotas repository.QuotaRepository,
	dicts repository.DictionaryRepository,
	sequences repository.ColumnSequenceRepository,
	store blob.Store,
	opts ...Option,
) *Service {
	service := &Service{
		quotas:    quotas,
		dicts:     dicts,
		sequences: sequences,
		store:     store,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.retry == nil {
		service.retry = retry.New(retry.DefaultConfig(), service.logger)
	}
	return service
}

// Request names the workbook to produce. Any extension on Output is
// replaced by .xlsx.
type Request struct {
	Output string
}

// Result describes a written workbook.
type Result struct {
	RunID    uuid.UUID `json:"runId"`
	Key      string    `json:"key"`
	Location string    `json:"location"`
	Rows     int       `json:"rows"`
	Sheets   []string  `json:"sheets"`
	Size     int64     `json:"size"`
}

// Run builds the report for every stored quota row. Nothing is written to
// the store unless the whole workbook rendered.
func (s *Service) Run(ctx context.Context, req Request) (result Result, err error) {
	result.RunID = uuid.New()
	log := logging.WithRun(s.logger, result.RunID.String())
	started := time.Now()
	defer func() { s.metrics.ObserveRun(metrics.JobReport, started, err) }()

	if s.quotas == nil || s.dicts == nil || s.store == nil {
		return result, errors.New("export service not initialized")
	}
	result.Key = ObjectKey(req.Output)

	rows, err := retry.Do(ctx, s.retry, "list quotas", s.quotas.List)
	if err != nil {
		err = fmt.Errorf("failed to list quotas: %w", err)
		s.logFailure(ctx, result.RunID, err)
		return result, err
	}
	result.Rows = len(rows)
	s.metrics.AddRecords(metrics.JobReport, "read", len(rows))

	names, err := s.loadNames(ctx)
	if err != nil {
		s.logFailure(ctx, result.RunID, err)
		return result, err
	}

	seq, err := s.loadSequence(ctx)
	if err != nil {
		s.logFailure(ctx, result.RunID, err)
		return result, err
	}

	workbook, err := report.ExportWorkbook(rows, names, seq,
		report.WithCornerLabel(s.cornerLabel),
		report.WithLogger(log),
	)
	if err != nil {
		s.logFailure(ctx, result.RunID, err)
		return result, err
	}
	defer func() { _ = workbook.Close() }()
	result.Sheets = workbook.SheetNames()

	var buf bytes.Buffer
	if _, err = workbook.WriteTo(&buf); err != nil {
		err = &domain.ExportError{Err: fmt.Errorf("encode workbook: %w", err)}
		s.logFailure(ctx, result.RunID, err)
		return result, err
	}

	payload := buf.Bytes()
	opts := blob.PutOptions{
		ContentType: WorkbookContentType,
		Metadata: map[string]string{
			"run-id":       result.RunID.String(),
			"rows":         strconv.Itoa(len(rows)),
			"generated-at": s.now().UTC().Format(time.RFC3339),
		},
	}
	info, err := retry.Do(ctx, s.retry, "store workbook", func(ctx context.Context) (blob.Info, error) {
		return s.store.Put(ctx, result.Key, bytes.NewReader(payload), opts)
	})
	if err != nil {
		err = &domain.ExportError{Err: fmt.Errorf("store workbook %s: %w", result.Key, err)}
		s.logFailure(ctx, result.RunID, err)
		return result, err
	}
	result.Location = info.Location
	result.Size = info.Size
	s.metrics.AddRecords(metrics.JobReport, "exported", len(rows))

	log.Info("report written",
		zap.String("key", result.Key),
		zap.String("location", result.Location),
		zap.Int("rows", result.Rows),
		zap.Int("sheets", len(result.Sheets)),
	)
	return result, nil
}

func (s *Service) loadNames(ctx context.Context) (report.Names, error) {
	reversed := make(map[domain.DictionaryDomain]map[string]string, len(domain.AllDomains))
	for _, d := range domain.AllDomains {
		entries, err := retry.Do(ctx, s.retry, fmt.Sprintf("load %s dictionary", d), func(ctx context.Context) ([]domain.DictionaryEntry, error) {
			return s.dicts.Entries(ctx, d)
		})
		if err != nil {
			return report.Names{}, fmt.Errorf("failed to load %s dictionary: %w", d, err)
		}
		reversed[d] = reverseEntries(entries)
	}
	return report.Names{
		Category1: reversed[domain.DomainCategory1],
		Category2: reversed[domain.DomainCategory2],
		Model:     reversed[domain.DomainModel],
		Process:   reversed[domain.DomainProcess],
	}, nil
}

// loadSequence returns nil when no column sequence rows exist.
func (s *Service) loadSequence(ctx context.Context) (*report.ColumnSequence, error) {
	if s.sequences == nil {
		return nil, nil
	}
	entries, err := retry.Do(ctx, s.retry, "load column sequence", s.sequences.List)
	if err != nil {
		return nil, fmt.Errorf("failed to load column sequence: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return report.NewColumnSequence(entries), nil
}

// reverseEntries maps each code to the first name stored for it.
func reverseEntries(entries []domain.DictionaryEntry) map[string]string {
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		if _, exists := out[entry.Code]; !exists {
			out[entry.Code] = entry.Name
		}
	}
	return out
}

func (s *Service) logFailure(ctx context.Context, runID uuid.UUID, err error) {
	if s.runLogs == nil || err == nil {
		return
	}
	entry := domain.RunLogEntry{RunID: runID, Job: metrics.JobReport, ErrorMessage: err.Error()}
	if logErr := s.runLogs.Record(context.WithoutCancel(ctx), entry); logErr != nil {
		s.logger.Warn("failed to record run log", zap.Error(logErr))
	}
}

// ObjectKey turns an output name into a blob key: every path segment is
// sanitized and the extension becomes .xlsx.
func ObjectKey(output string) string {
	output = strings.ReplaceAll(strings.TrimSpace(output), `\`, "/")
	ext := path.Ext(output)
	output = strings.TrimSuffix(output, ext)

	segments := make([]string, 0, 4)
	for _, segment := range strings.Split(output, "/") {
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		if clean := sanitizeFileComponent(segment); clean != "" {
			segments = append(segments, clean)
		}
	}
	if len(segments) == 0 {
		segments = append(segments, defaultOutput)
	}
	return report.NormalizeExtension(path.Join(segments...))
}

func sanitizeFileComponent(value string) string {
	value = strings.TrimSpace(value)
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			builder.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-.")
}
