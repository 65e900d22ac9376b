package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/rpattn/quotanorm/internal/domain"
	"github.com/rpattn/quotanorm/internal/logging"
	"github.com/rpattn/quotanorm/internal/metrics"
	"github.com/rpattn/quotanorm/internal/repository"
	"github.com/rpattn/quotanorm/internal/resolution"
	"github.com/rpattn/quotanorm/internal/retry"
	"github.com/rpattn/quotanorm/internal/validity"
)

// ErrEmptyDictionary is returned when a reference table holds no rows.
var ErrEmptyDictionary = errors.New("no dictionary data found")

// Pipeline loads the source catalog into the quotas table.
type Pipeline struct {
	catalog repository.CatalogReader
	dicts   repository.DictionaryRepository
	quotas  repository.QuotaRepository
	tx      repository.Transactor
	runLogs repository.RunLogRepository
	retry   *retry.Policy
	metrics *metrics.BatchMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRunLog records run failures in repo.
func WithRunLog(repo repository.RunLogRepository) Option {
	return func(p *Pipeline) { p.runLogs = repo }
}

// WithRetry replaces the default retry policy for store access.
func WithRetry(policy *retry.Policy) Option {
	return func(p *Pipeline) { p.retry = policy }
}

func WithMetrics(m *metrics.BatchMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock fixes the creation timestamp stamped on loaded rows.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPipeline wires a load pipeline.
func NewPipeline(
	catalog repository.CatalogReader,
	dicts repository.DictionaryRepository,
	quotas repository.QuotaRepository,
	tx repository.Transactor,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		catalog: catalog,
		dicts:   dicts,
		quotas:  quotas,
		tx:      tx,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retry == nil {
		p.retry = retry.New(retry.DefaultConfig(), p.logger)
	}
	return p
}

// Summary reports what one load run did.
type Summary struct {
	RunID     uuid.UUID `json:"runId"`
	Records   int       `json:"records"`
	Loaded    int64     `json:"loaded"`
	Groups    int       `json:"groups"`
	OpenEnded int       `json:"openEnded"`
}

// Run reads every catalog row, closes its validity interval, resolves the
// labels to codes and appends the result to the quotas table in one
// transaction. An empty catalog loads nothing and is not an error.
func (p *Pipeline) Run(ctx context.Context) (summary Summary, err error) {
	summary.RunID = uuid.New()
	log := logging.WithRun(p.logger, summary.RunID.String())
	started := time.Now()
	defer func() { p.metrics.ObserveRun(metrics.JobLoad, started, err) }()

	if p.catalog == nil || p.dicts == nil || p.quotas == nil || p.tx == nil {
		return summary, errors.New("load pipeline not initialized")
	}

	rows, err := retry.Do(ctx, p.retry, "read catalog", p.catalog.ListRecords)
	if err != nil {
		err = fmt.Errorf("failed to read catalog: %w", err)
		p.logFailure(ctx, summary.RunID, offendingRow(nil, err), err)
		return summary, err
	}
	summary.Records = len(rows)
	p.metrics.AddRecords(metrics.JobLoad, "read", len(rows))
	if len(rows) == 0 {
		log.Info("catalog is empty, nothing to load")
		return summary, nil
	}
	log.Info("catalog read", zap.Int("records", len(rows)))

	records := make([]domain.QuotaRecord, len(rows))
	for i, row := range rows {
		records[i] = row.Record
	}
	intervals, err := validity.CalculateInSourceOrder(records)
	if err != nil {
		p.logFailure(ctx, summary.RunID, offendingRow(records, err), err)
		return summary, err
	}
	stats := validity.Summarize(intervals)
	summary.Groups = stats.Groups
	summary.OpenEnded = stats.OpenEnded

	dicts, err := p.loadDictionaries(ctx, log)
	if err != nil {
		p.logFailure(ctx, summary.RunID, nil, err)
		return summary, err
	}

	engine := resolution.NewEngine(resolution.WithClock(p.now))
	resolved, err := engine.Resolve(intervals, dicts)
	if err != nil {
		p.logFailure(ctx, summary.RunID, nil, err)
		return summary, err
	}
	p.metrics.AddRecords(metrics.JobLoad, "resolved", len(resolved))

	err = retry.Run(ctx, p.retry, "append quotas", func(ctx context.Context) error {
		return p.tx.WithTx(ctx, func(tx pgx.Tx) error {
			n, appendErr := p.quotas.Append(ctx, tx, resolved)
			if appendErr != nil {
				if isConstraintViolation(appendErr) {
					return retry.Permanent(appendErr)
				}
				return appendErr
			}
			summary.Loaded = n
			return nil
		})
	})
	if err != nil {
		summary.Loaded = 0
		err = fmt.Errorf("failed to load quotas: %w", err)
		p.logFailure(ctx, summary.RunID, nil, err)
		return summary, err
	}
	p.metrics.AddRecords(metrics.JobLoad, "loaded", int(summary.Loaded))

	log.Info("load complete",
		zap.Int("records", summary.Records),
		zap.Int64("loaded", summary.Loaded),
		zap.Int("groups", summary.Groups),
		zap.Int("open_ended", summary.OpenEnded),
	)
	return summary, nil
}

func (p *Pipeline) loadDictionaries(ctx context.Context, log *zap.Logger) (resolution.Dictionaries, error) {
	entries := make(map[domain.DictionaryDomain][]domain.DictionaryEntry, len(domain.AllDomains))
	for _, d := range domain.AllDomains {
		loaded, err := retry.Do(ctx, p.retry, fmt.Sprintf("load %s dictionary", d), func(ctx context.Context) ([]domain.DictionaryEntry, error) {
			return p.dicts.Entries(ctx, d)
		})
		if err != nil {
			return resolution.Dictionaries{}, fmt.Errorf("failed to load %s dictionary: %w", d, err)
		}
		if len(loaded) == 0 {
			return resolution.Dictionaries{}, fmt.Errorf("%w: %s", ErrEmptyDictionary, d)
		}
		log.Debug("dictionary loaded", zap.String("domain", string(d)), zap.Int("entries", len(loaded)))
		entries[d] = loaded
	}
	return resolution.NewDictionaries(entries)
}

func (p *Pipeline) logFailure(ctx context.Context, runID uuid.UUID, rowNumber *int, err error) {
	if p.runLogs == nil || err == nil {
		return
	}
	entry := domain.RunLogEntry{
		RunID:        runID,
		Job:          metrics.JobLoad,
		RowNumber:    rowNumber,
		ErrorMessage: err.Error(),
	}
	if logErr := p.runLogs.Record(context.WithoutCancel(ctx), entry); logErr != nil {
		p.logger.Warn("failed to record run log", zap.Error(logErr))
	}
}

// offendingRow returns the 1-based catalog position of the record a
// DataFormatError points at.
func offendingRow(records []domain.QuotaRecord, err error) *int {
	var formatErr *domain.DataFormatError
	if !errors.As(err, &formatErr) {
		return nil
	}
	if formatErr.Row > 0 {
		row := formatErr.Row
		return &row
	}
	for i, record := range records {
		if record.Key() == formatErr.Key && record.EffectiveFrom == formatErr.Value {
			row := i + 1
			return &row
		}
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23")
}
