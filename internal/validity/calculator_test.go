package validity

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/quotanorm/internal/domain"
)

func record(cat1, cat2, model, process string, price int64, effective string) domain.QuotaRecord {
	return domain.QuotaRecord{
		Category1:     cat1,
		Category2:     cat2,
		Model:         model,
		Process:       process,
		UnitPrice:     decimal.NewFromInt(price),
		EffectiveFrom: effective,
	}
}

func TestCalculateEmptyInput(t *testing.T) {
	intervals, err := Calculate(nil)
	require.NoError(t, err)
	assert.Empty(t, intervals)
}

func TestCalculateTwoRecordExample(t *testing.T) {
	intervals, err := Calculate([]domain.QuotaRecord{
		record("A", "X", "M1", "P1", 12, "20230601"),
		record("A", "X", "M1", "P1", 10, "20230101"),
	})
	require.NoError(t, err)
	require.Len(t, intervals, 2)

	assert.Equal(t, "20230101", intervals[0].EffectiveFrom)
	assert.Equal(t, "20230531", intervals[0].ObsoleteDate)
	assert.True(t, intervals[0].UnitPrice.Equal(decimal.NewFromInt(10)))

	assert.Equal(t, "20230601", intervals[1].EffectiveFrom)
	assert.Equal(t, domain.SentinelDate, intervals[1].ObsoleteDate)
	assert.True(t, intervals[1].IsOpenEnded())
}

func TestCalculateSingletonGroupsAreOpenEnded(t *testing.T) {
	intervals, err := Calculate([]domain.QuotaRecord{
		record("A", "X", "M1", "P1", 10, "20230101"),
		record("A", "X", "M1", "P2", 11, "20230301"),
		record("B", "X", "M1", "P1", 12, "20230101"),
	})
	require.NoError(t, err)
	require.Len(t, intervals, 3)
	for _, interval := range intervals {
		assert.Equal(t, "99991231", interval.ObsoleteDate)
	}
}

func TestCalculateChainsObsoleteDates(t *testing.T) {
	records := []domain.QuotaRecord{
		record("A", "X", "M1", "P1", 13, "20240301"),
		record("A", "X", "M1", "P1", 10, "20230101"),
		record("A", "X", "M1", "P1", 11, "20230601"),
	}
	intervals, err := Calculate(records)
	require.NoError(t, err)
	require.Len(t, intervals, 3)

	for i := 0; i < len(intervals)-1; i++ {
		want, err := domain.DayBefore(intervals[i+1].EffectiveFrom)
		require.NoError(t, err)
		assert.Equal(t, want, intervals[i].ObsoleteDate)
	}
	assert.Equal(t, "20240229", intervals[1].ObsoleteDate)
	assert.Equal(t, domain.SentinelDate, intervals[2].ObsoleteDate)
}

func TestCalculateKeepsCoincidingDates(t *testing.T) {
	intervals, err := Calculate([]domain.QuotaRecord{
		record("A", "X", "M1", "P1", 10, "20230101"),
		record("A", "X", "M1", "P1", 11, "20230101"),
	})
	require.NoError(t, err)
	require.Len(t, intervals, 2)

	// stable: input order decides which duplicate closes first
	assert.True(t, intervals[0].UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "20221231", intervals[0].ObsoleteDate)
	assert.Equal(t, domain.SentinelDate, intervals[1].ObsoleteDate)
}

func TestCalculateRejectsMalformedDates(t *testing.T) {
	_, err := Calculate([]domain.QuotaRecord{
		record("A", "X", "M1", "P1", 10, "20230101"),
		record("A", "X", "M1", "P1", 11, "2023-06-01"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataFormat)

	var formatErr *domain.DataFormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, "2023-06-01", formatErr.Value)
	assert.Equal(t, domain.GroupKey{Category1: "A", Category2: "X", Model: "M1", Process: "P1"}, formatErr.Key)
	assert.Equal(t, 2, formatErr.Row)
}

func TestCalculateIsPermutationInvariant(t *testing.T) {
	records := []domain.QuotaRecord{
		record("A", "X", "M1", "P1", 10, "20230101"),
		record("A", "X", "M1", "P1", 12, "20230601"),
		record("A", "X", "M1", "P1", 14, "20231201"),
		record("A", "X", "M2", "P1", 20, "20230101"),
		record("A", "Y", "M1", "P1", 30, "20230101"),
		record("A", "Y", "M1", "P1", 31, "20230215"),
		record("B", "X", "M1", "P2", 40, "20221001"),
	}
	baseline, err := Calculate(records)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.QuotaRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := Calculate(shuffled)
		require.NoError(t, err)
		assert.Equal(t, canonical(baseline), canonical(got))
	}
}

func TestCalculateInSourceOrder(t *testing.T) {
	records := []domain.QuotaRecord{
		record("A", "X", "M1", "P1", 12, "20230601"),
		record("B", "X", "M1", "P1", 50, "20230101"),
		record("A", "X", "M1", "P1", 10, "20230101"),
	}
	intervals, err := CalculateInSourceOrder(records)
	require.NoError(t, err)
	require.Len(t, intervals, 3)

	for i := range records {
		assert.Equal(t, records[i], intervals[i].QuotaRecord)
	}
	assert.Equal(t, domain.SentinelDate, intervals[0].ObsoleteDate)
	assert.Equal(t, domain.SentinelDate, intervals[1].ObsoleteDate)
	assert.Equal(t, "20230531", intervals[2].ObsoleteDate)
}

func TestPartitionKeepsFirstAppearanceOrder(t *testing.T) {
	groups := Partition([]domain.QuotaRecord{
		record("B", "X", "M1", "P1", 1, "20230101"),
		record("A", "X", "M1", "P1", 2, "20230101"),
		record("B", "X", "M1", "P1", 3, "20230201"),
	})
	require.Len(t, groups, 2)
	assert.Equal(t, "B", groups[0].Key.Category1)
	assert.Len(t, groups[0].Records, 2)
	assert.Equal(t, "A", groups[1].Key.Category1)
}

func TestSummarize(t *testing.T) {
	intervals, err := Calculate([]domain.QuotaRecord{
		record("A", "X", "M1", "P1", 10, "20230101"),
		record("A", "X", "M1", "P1", 12, "20230601"),
		record("B", "X", "M1", "P1", 12, "20230601"),
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{Records: 3, Groups: 2, OpenEnded: 2}, Summarize(intervals))
}

func canonical(intervals []domain.ValidityInterval) []string {
	out := make([]string, len(intervals))
	for i, interval := range intervals {
		out[i] = interval.Key().String() + "|" + interval.UnitPrice.String() + "|" + interval.EffectiveFrom + "|" + interval.ObsoleteDate
	}
	sort.Strings(out)
	return out
}
