package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateLayout is the compact YYYYMMDD form used for effective and obsolete dates.
	DateLayout = "20060102"
	// SentinelDate marks an interval that is still in effect.
	SentinelDate = "99991231"
	// CreatedAtLayout is the text form of ResolvedQuotaRow.CreatedAt in the quotas table.
	CreatedAtLayout = "2006-01-02 15:04:05"
	// DefaultCreatedBy is the audit user stamped on every resolved row.
	DefaultCreatedBy = 1
)

// GroupKey identifies one evolving price line.
type GroupKey struct {
	Category1 string `json:"category1"`
	Category2 string `json:"category2"`
	Model     string `json:"model"`
	Process   string `json:"process"`
}

func (k GroupKey) String() string {
	return fmt.Sprintf("(%s, %s, %s, %s)", k.Category1, k.Category2, k.Model, k.Process)
}

// QuotaRecord is one priced unit at one point in time, still carrying text labels.
type QuotaRecord struct {
	Category1     string          `json:"category1"`
	Category2     string          `json:"category2"`
	Model         string          `json:"model"`
	Process       string          `json:"process"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	EffectiveFrom string          `json:"effective_from"`
}

// Key returns the grouping key of the record.
func (r QuotaRecord) Key() GroupKey {
	return GroupKey{
		Category1: r.Category1,
		Category2: r.Category2,
		Model:     r.Model,
		Process:   r.Process,
	}
}

// ValidityInterval is a QuotaRecord closed by the day before its successor takes effect.
type ValidityInterval struct {
	QuotaRecord
	ObsoleteDate string `json:"obsolete_date"`
}

// IsOpenEnded reports whether the interval carries the sentinel obsolete date.
func (v ValidityInterval) IsOpenEnded() bool {
	return v.ObsoleteDate == SentinelDate
}

// CatalogRow is a QuotaRecord as read from the source catalog, with the
// catalog's own row code.
type CatalogRow struct {
	SourceCode string
	Record     QuotaRecord
}

// ResolvedQuotaRow is a ValidityInterval whose labels were replaced by dictionary codes.
type ResolvedQuotaRow struct {
	Cat1Code      string          `json:"cat1_code"`
	Cat2Code      string          `json:"cat2_code"`
	ModelCode     string          `json:"model_code"`
	ProcessCode   string          `json:"process_code"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	EffectiveDate string          `json:"effective_date"`
	ObsoleteDate  string          `json:"obsolete_date"`
	CreatedBy     int             `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CreatedAtText renders CreatedAt the way the quotas table stores it.
func (r ResolvedQuotaRow) CreatedAtText() string {
	return r.CreatedAt.Format(CreatedAtLayout)
}

// ColumnSequenceEntry is an ordering preference for one process column of a report section.
type ColumnSequenceEntry struct {
	Category1 string `json:"category1"`
	Category2 string `json:"category2"`
	Process   string `json:"process"`
	Seq       int    `json:"seq"`
}

// ParseDate parses a YYYYMMDD value.
func ParseDate(value string) (time.Time, error) {
	return time.Parse(DateLayout, value)
}

// FormatDate renders t as YYYYMMDD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DayBefore returns the YYYYMMDD value one calendar day before value.
func DayBefore(value string) (string, error) {
	t, err := ParseDate(value)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, -1)), nil
}
