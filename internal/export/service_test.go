package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/quotanorm/internal/blob"
	"github.com/rpattn/quotanorm/internal/domain"
	"github.com/rpattn/quotanorm/internal/retry"
)

func quotaRow(cat1, cat2, model, process, price, date string) domain.ResolvedQuotaRow {
	return domain.ResolvedQuotaRow{
		Cat1Code:      cat1,
		Cat2Code:      cat2,
		ModelCode:     model,
		ProcessCode:   process,
		UnitPrice:     decimal.RequireFromString(price),
		EffectiveDate: date,
		ObsoleteDate:  domain.SentinelDate,
		CreatedBy:     domain.DefaultCreatedBy,
		CreatedAt:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testDictionaries() *stubDictionaryRepo {
	return &stubDictionaryRepo{entries: map[domain.DictionaryDomain][]domain.DictionaryEntry{
		domain.DomainCategory1: {{Name: "机加", Code: "C01"}},
		domain.DomainCategory2: {{Name: "2人校正", Code: "2RXZ"}},
		domain.DomainModel:     {{Name: "Y2-100L", Code: "100-2"}},
		domain.DomainProcess:   {{Name: "绕线", Code: "P01"}, {Name: "嵌线", Code: "P02"}},
	}}
}

func newTestService(t *testing.T, quotas *stubQuotaRepo, seq *stubSequenceRepo, opts ...Option) (*Service, *blob.FSStore) {
	t.Helper()
	store, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)
	opts = append([]Option{WithRetry(retry.New(retry.Config{MaxRetries: 1}, nil)), WithCornerLabel("型号")}, opts...)
	return NewService(quotas, testDictionaries(), seq, store, opts...), store
}

func TestServiceRunWritesWorkbook(t *testing.T) {
	quotas := &stubQuotaRepo{rows: []domain.ResolvedQuotaRow{
		quotaRow("C01", "2RXZ", "100-2", "P02", "7.5", "20230101"),
		quotaRow("C01", "2RXZ", "100-2", "P01", "10", "20230101"),
	}}
	seq := &stubSequenceRepo{entries: []domain.ColumnSequenceEntry{
		{Category1: "机加", Category2: "2人校正", Process: "嵌线", Seq: 1},
		{Category1: "机加", Category2: "2人校正", Process: "绕线", Seq: 2},
	}}
	service, store := newTestService(t, quotas, seq)

	result, err := service.Run(context.Background(), Request{Output: "reports/定额 报表.xls"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, result.RunID)
	assert.Equal(t, "reports/定额-报表.xlsx", result.Key)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, []string{"机加 C01 20230101"}, result.Sheets)
	assert.Positive(t, result.Size)

	info, err := store.Head(context.Background(), result.Key)
	require.NoError(t, err)
	assert.Equal(t, WorkbookContentType, info.ContentType)
	assert.Equal(t, result.RunID.String(), info.Metadata["run-id"])
	assert.Equal(t, "2", info.Metadata["rows"])

	f, err := excelize.OpenFile(result.Location)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	title, err := f.GetCellValue("机加 C01 20230101", "A1")
	require.NoError(t, err)
	assert.Equal(t, "2人校正 (2RXZ)", title)

	corner, err := f.GetCellValue("机加 C01 20230101", "A2")
	require.NoError(t, err)
	assert.Equal(t, "型号", corner)

	first, err := f.GetCellValue("机加 C01 20230101", "B2")
	require.NoError(t, err)
	assert.Equal(t, "嵌线", first, "column sequence puts 嵌线 first")
}

func TestServiceRunWithoutSequenceWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	quotas := &stubQuotaRepo{rows: []domain.ResolvedQuotaRow{quotaRow("C01", "2RXZ", "100-2", "P01", "10", "20230101")}}
	service, _ := newTestService(t, quotas, &stubSequenceRepo{}, WithLogger(zap.New(core)))

	_, err := service.Run(context.Background(), Request{Output: "quota"})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("column sequence table not supplied, ordering columns by process code").Len())
}

func TestServiceRunStoresNothingOnFailure(t *testing.T) {
	quotas := &stubQuotaRepo{err: errors.New("connection refused")}
	logs := &stubRunLogRepo{}
	service, store := newTestService(t, quotas, &stubSequenceRepo{}, WithRunLog(logs))

	_, err := service.Run(context.Background(), Request{Output: "quota"})
	require.Error(t, err)
	assert.Equal(t, 2, quotas.calls, "list is retried once")

	_, headErr := store.Head(context.Background(), "quota.xlsx")
	assert.Error(t, headErr)
	require.Len(t, logs.entries, 1)
	assert.Equal(t, "report", logs.entries[0].Job)
}

func TestServiceRunRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil).Run(context.Background(), Request{})
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	cases := map[string]string{
		"":                       "quota_report.xlsx",
		"quota_report.xls":       "quota_report.xlsx",
		"out/../quota":           "out/quota.xlsx",
		`C:\reports\机加 定额.csv`: "C/reports/机加-定额.xlsx",
		"  ?? ":                  "quota_report.xlsx",
	}
	for in, want := range cases {
		assert.Equal(t, want, ObjectKey(in), "input %q", in)
	}
}

func TestReverseEntriesKeepsFirstName(t *testing.T) {
	got := reverseEntries([]domain.DictionaryEntry{{Name: "绕线", Code: "P01"}, {Name: "绕线(旧)", Code: "P01"}})
	assert.Equal(t, map[string]string{"P01": "绕线"}, got)
}

type stubQuotaRepo struct {
	rows  []domain.ResolvedQuotaRow
	err   error
	calls int
}

func (s *stubQuotaRepo) Append(ctx context.Context, tx pgx.Tx, rows []domain.ResolvedQuotaRow) (int64, error) {
	return 0, errors.New("not supported")
}

func (s *stubQuotaRepo) List(ctx context.Context) ([]domain.ResolvedQuotaRow, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

type stubDictionaryRepo struct {
	entries map[domain.DictionaryDomain][]domain.DictionaryEntry
}

func (s *stubDictionaryRepo) Entries(ctx context.Context, d domain.DictionaryDomain) ([]domain.DictionaryEntry, error) {
	return s.entries[d], nil
}

func (s *stubDictionaryRepo) Insert(ctx context.Context, d domain.DictionaryDomain, entries []domain.DictionaryEntry, now time.Time) (int64, error) {
	return 0, errors.New("not supported")
}

type stubSequenceRepo struct {
	entries []domain.ColumnSequenceEntry
}

func (s *stubSequenceRepo) List(ctx context.Context) ([]domain.ColumnSequenceEntry, error) {
	return s.entries, nil
}

type stubRunLogRepo struct {
	entries []domain.RunLogEntry
}

func (s *stubRunLogRepo) Record(ctx context.Context, entry domain.RunLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubRunLogRepo) List(ctx context.Context, runID uuid.UUID, limit int, offset int) ([]domain.RunLogEntry, error) {
	return s.entries, nil
}
