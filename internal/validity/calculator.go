// Package validity turns point-in-time quota records into closed validity intervals.
package validity

import (
	"sort"
	"time"

	"github.com/rpattn/quotanorm/internal/domain"
)

// Group is every record sharing one grouping key, in input order.
type Group struct {
	Key     domain.GroupKey
	Records []domain.QuotaRecord
	// positions holds the input index of each record.
	positions []int
}

// Partition splits records by grouping key. Groups are returned in order of first appearance.
func Partition(records []domain.QuotaRecord) []Group {
	index := make(map[domain.GroupKey]int)
	groups := make([]Group, 0)
	for pos, record := range records {
		key := record.Key()
		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, Group{Key: key})
		}
		groups[idx].Records = append(groups[idx].Records, record)
		groups[idx].positions = append(groups[idx].positions, pos)
	}
	return groups
}

type datedRecord struct {
	record    domain.QuotaRecord
	effective time.Time
	position  int
}

// Assign sorts one group by effective date (stable) and closes every interval
// the day before its successor starts. The last interval stays open-ended.
func Assign(group Group) ([]domain.ValidityInterval, error) {
	intervals, _, err := assign(group)
	return intervals, err
}

func assign(group Group) ([]domain.ValidityInterval, []int, error) {
	dated := make([]datedRecord, len(group.Records))
	for i, record := range group.Records {
		position := i
		if i < len(group.positions) {
			position = group.positions[i]
		}
		effective, err := domain.ParseDate(record.EffectiveFrom)
		if err != nil {
			formatErr := &domain.DataFormatError{
				Field: "effective_from",
				Value: record.EffectiveFrom,
				Key:   group.Key,
				Err:   err,
			}
			if i < len(group.positions) {
				formatErr.Row = position + 1
			}
			return nil, nil, formatErr
		}
		dated[i] = datedRecord{record: record, effective: effective, position: position}
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].effective.Before(dated[j].effective)
	})

	intervals := make([]domain.ValidityInterval, len(dated))
	positions := make([]int, len(dated))
	for i, current := range dated {
		obsolete := domain.SentinelDate
		if i+1 < len(dated) {
			obsolete = domain.FormatDate(dated[i+1].effective.AddDate(0, 0, -1))
		}
		intervals[i] = domain.ValidityInterval{QuotaRecord: current.record, ObsoleteDate: obsolete}
		positions[i] = current.position
	}
	return intervals, positions, nil
}

// Calculate partitions records and assigns obsolete dates to every group.
// The result is ordered by group (first appearance) and then by effective date.
func Calculate(records []domain.QuotaRecord) ([]domain.ValidityInterval, error) {
	out := make([]domain.ValidityInterval, 0, len(records))
	for _, group := range Partition(records) {
		intervals, err := Assign(group)
		if err != nil {
			return nil, err
		}
		out = append(out, intervals...)
	}
	return out, nil
}

// CalculateInSourceOrder returns the same intervals as Calculate, re-ordered so
// that interval i corresponds to records[i].
func CalculateInSourceOrder(records []domain.QuotaRecord) ([]domain.ValidityInterval, error) {
	out := make([]domain.ValidityInterval, len(records))
	for _, group := range Partition(records) {
		intervals, positions, err := assign(group)
		if err != nil {
			return nil, err
		}
		for i, interval := range intervals {
			out[positions[i]] = interval
		}
	}
	return out, nil
}

// Stats summarizes a calculated batch.
type Stats struct {
	Records   int
	Groups    int
	OpenEnded int
}

// Summarize counts groups and open-ended intervals.
func Summarize(intervals []domain.ValidityInterval) Stats {
	groups := make(map[domain.GroupKey]struct{})
	stats := Stats{Records: len(intervals)}
	for _, interval := range intervals {
		groups[interval.Key()] = struct{}{}
		if interval.IsOpenEnded() {
			stats.OpenEnded++
		}
	}
	stats.Groups = len(groups)
	return stats
}
