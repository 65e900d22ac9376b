package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/quotanorm/internal/codegen"
	"github.com/rpattn/quotanorm/internal/domain"
	"github.com/rpattn/quotanorm/internal/logging"
	"github.com/rpattn/quotanorm/internal/metrics"
	"github.com/rpattn/quotanorm/internal/repository"
	"github.com/rpattn/quotanorm/internal/retry"
)

const (
	// WorkerCodePrefix and WorkerCodeWidth shape generated worker codes (W001).
	WorkerCodePrefix = "W"
	WorkerCodeWidth  = 3

	defaultNameColumn = "name"
	defaultCodeColumn = "code"
)

// DictionaryImporter adds new names to a reference dictionary, generating
// codes for names that arrive without one.
type DictionaryImporter struct {
	dicts   repository.DictionaryRepository
	runLogs repository.RunLogRepository
	retry   *retry.Policy
	metrics *metrics.BatchMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewDictionaryImporter wires an importer. Only the run log, retry, metrics,
// logger and clock options apply.
func NewDictionaryImporter(dicts repository.DictionaryRepository, opts ...Option) *DictionaryImporter {
	p := &Pipeline{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.retry == nil {
		p.retry = retry.New(retry.DefaultConfig(), p.logger)
	}
	return &DictionaryImporter{
		dicts:   dicts,
		runLogs: p.runLogs,
		retry:   p.retry,
		metrics: p.metrics,
		logger:  p.logger,
		now:     p.now,
	}
}

// ImportRequest describes a name sheet upload.
type ImportRequest struct {
	Domain   domain.DictionaryDomain
	FileName string
	// Sheet selects the worksheet of an XLSX file; empty means the first.
	Sheet string
	// NameColumn defaults to "name". When the domain's own label header
	// (for example 类别2) is used, pass it here.
	NameColumn string
	// CodeColumn defaults to "code"; it is optional in the file.
	CodeColumn string
	Data       io.Reader
}

// ImportSummary reports what one import did.
type ImportSummary struct {
	RunID     uuid.UUID                `json:"runId"`
	Rows      int                      `json:"rows"`
	Skipped   int                      `json:"skipped"`
	Generated int                      `json:"generated"`
	Inserted  int64                    `json:"inserted"`
	Entries   []domain.DictionaryEntry `json:"entries"`
}

// ImportFile reads names (and optional codes) from a CSV or XLSX file.
func (i *DictionaryImporter) ImportFile(ctx context.Context, req ImportRequest) (ImportSummary, error) {
	if req.Data == nil {
		return ImportSummary{}, errors.New("data reader is required")
	}
	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return ImportSummary{}, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, req.Sheet, payload)
	if err != nil {
		return ImportSummary{}, err
	}

	nameColumn := strings.TrimSpace(req.NameColumn)
	if nameColumn == "" {
		nameColumn = defaultNameColumn
	}
	nameIdx := table.column(nameColumn)
	if nameIdx < 0 {
		return ImportSummary{}, fmt.Errorf("column %q not found in %s", nameColumn, req.FileName)
	}
	codeColumn := strings.TrimSpace(req.CodeColumn)
	if codeColumn == "" {
		codeColumn = defaultCodeColumn
	}
	codeIdx := table.column(codeColumn)

	candidates := make([]domain.DictionaryEntry, 0, len(table.rows))
	for _, row := range table.rows {
		entry := domain.DictionaryEntry{Name: strings.TrimSpace(row[nameIdx])}
		if codeIdx >= 0 {
			entry.Code = strings.TrimSpace(row[codeIdx])
		}
		candidates = append(candidates, entry)
	}
	return i.Import(ctx, req.Domain, candidates)
}

// ImportDistinct imports the distinct values of a source column, such as
// the employee names of a payroll table.
func (i *DictionaryImporter) ImportDistinct(ctx context.Context, d domain.DictionaryDomain, reader repository.DistinctValueReader, table, column string) (ImportSummary, error) {
	if reader == nil {
		return ImportSummary{}, errors.New("distinct value reader is required")
	}
	values, err := retry.Do(ctx, i.retry, "read distinct values", func(ctx context.Context) ([]string, error) {
		return reader.DistinctValues(ctx, table, column)
	})
	if err != nil {
		return ImportSummary{}, err
	}
	candidates := make([]domain.DictionaryEntry, len(values))
	for idx, value := range values {
		candidates[idx] = domain.DictionaryEntry{Name: value}
	}
	return i.Import(ctx, d, candidates)
}

// Import inserts every candidate whose name is not stored yet. Blank names
// and repeated names are skipped. Missing codes are generated: worker codes
// continue the W001 sequence, other domains use the pinyin initials of the
// name. Generated codes never collide with stored ones.
func (i *DictionaryImporter) Import(ctx context.Context, d domain.DictionaryDomain, candidates []domain.DictionaryEntry) (summary ImportSummary, err error) {
	summary.RunID = uuid.New()
	summary.Rows = len(candidates)
	log := logging.WithRun(i.logger, summary.RunID.String()).With(zap.String("domain", string(d)))
	started := time.Now()
	defer func() { i.metrics.ObserveRun(metrics.JobCodes, started, err) }()

	if i.dicts == nil {
		return summary, errors.New("dictionary importer not initialized")
	}

	existing, err := retry.Do(ctx, i.retry, fmt.Sprintf("load %s dictionary", d), func(ctx context.Context) ([]domain.DictionaryEntry, error) {
		return i.dicts.Entries(ctx, d)
	})
	if err != nil {
		err = fmt.Errorf("failed to load %s dictionary: %w", d, err)
		i.logFailure(ctx, summary.RunID, err)
		return summary, err
	}

	known := make(map[string]struct{}, len(existing)+len(candidates))
	for _, entry := range existing {
		known[entry.Name] = struct{}{}
	}
	fresh := make([]domain.DictionaryEntry, 0, len(candidates))
	for _, candidate := range candidates {
		name := strings.TrimSpace(candidate.Name)
		if name == "" {
			summary.Skipped++
			continue
		}
		if _, dup := known[name]; dup {
			summary.Skipped++
			continue
		}
		known[name] = struct{}{}
		fresh = append(fresh, domain.DictionaryEntry{Name: name, Code: strings.TrimSpace(candidate.Code)})
	}
	if len(fresh) == 0 {
		log.Info("no new dictionary names", zap.Int("skipped", summary.Skipped))
		return summary, nil
	}

	entries, generated, err := assignCodes(d, existing, fresh)
	if err != nil {
		i.logFailure(ctx, summary.RunID, err)
		return summary, err
	}
	summary.Generated = generated
	i.metrics.AddRecords(metrics.JobCodes, "generated", generated)

	now := i.now()
	summary.Inserted, err = retry.Do(ctx, i.retry, fmt.Sprintf("insert %s dictionary", d), func(ctx context.Context) (int64, error) {
		n, insertErr := i.dicts.Insert(ctx, d, entries, now)
		if isConstraintViolation(insertErr) {
			return n, retry.Permanent(insertErr)
		}
		return n, insertErr
	})
	if err != nil {
		summary.Inserted = 0
		i.logFailure(ctx, summary.RunID, err)
		return summary, err
	}
	summary.Entries = entries
	i.metrics.AddRecords(metrics.JobCodes, "loaded", int(summary.Inserted))

	log.Info("dictionary import complete",
		zap.Int("rows", summary.Rows),
		zap.Int("skipped", summary.Skipped),
		zap.Int("generated", summary.Generated),
		zap.Int64("inserted", summary.Inserted),
	)
	return summary, nil
}

// assignCodes fills in missing codes of fresh and makes every code unique
// against existing ones, returning the number of codes generated.
func assignCodes(d domain.DictionaryDomain, existing, fresh []domain.DictionaryEntry) ([]domain.DictionaryEntry, int, error) {
	var sequence []string
	if d == domain.DomainWorker {
		sequence = codegen.Sequential(WorkerCodePrefix, len(existing)+len(fresh), WorkerCodeWidth)[len(existing):]
	}

	generated := 0
	codes := make([]string, 0, len(existing)+len(fresh))
	for _, entry := range existing {
		codes = append(codes, entry.Code)
	}
	for idx, entry := range fresh {
		code := entry.Code
		if code == "" {
			if sequence != nil {
				code = sequence[idx]
			} else {
				code = codegen.Encode(entry.Name)
			}
			if code == "" {
				return nil, 0, fmt.Errorf("cannot derive a %s code from name %q", d, entry.Name)
			}
			generated++
		}
		codes = append(codes, code)
	}

	unique := codegen.Dedupe(codes)[len(existing):]
	out := make([]domain.DictionaryEntry, len(fresh))
	for idx, entry := range fresh {
		out[idx] = domain.DictionaryEntry{Name: entry.Name, Code: unique[idx]}
	}
	return out, generated, nil
}

func (i *DictionaryImporter) logFailure(ctx context.Context, runID uuid.UUID, err error) {
	if i.runLogs == nil || err == nil {
		return
	}
	entry := domain.RunLogEntry{RunID: runID, Job: metrics.JobCodes, ErrorMessage: err.Error()}
	if logErr := i.runLogs.Record(context.WithoutCancel(ctx), entry); logErr != nil {
		i.logger.Warn("failed to record run log", zap.Error(logErr))
	}
}
