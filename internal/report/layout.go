// Package report pivots resolved quota rows into a cross-tabulated workbook:
// one sheet per (category1, effective date), one stacked model x process
// section per category2.
package report

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rpattn/quotanorm/internal/domain"
)

// MaxSequence is the ordering key of a column that has no column-sequence entry.
const MaxSequence = math.MaxInt

// Names holds the reversed (code -> name) dictionaries used for labels.
type Names struct {
	Category1 map[string]string
	Category2 map[string]string
	Model     map[string]string
	Process   map[string]string
}

func label(names map[string]string, code string) string {
	if name, ok := names[code]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	return code
}

type sequenceKey struct {
	category1 string
	category2 string
	process   string
}

// ColumnSequence is the optional column ordering table. A nil *ColumnSequence
// means no table was supplied.
type ColumnSequence struct {
	seq map[sequenceKey]int
}

// NewColumnSequence indexes entries; a later entry for the same key wins.
func NewColumnSequence(entries []domain.ColumnSequenceEntry) *ColumnSequence {
	cs := &ColumnSequence{seq: make(map[sequenceKey]int, len(entries))}
	for _, entry := range entries {
		cs.seq[sequenceKey{entry.Category1, entry.Category2, entry.Process}] = entry.Seq
	}
	return cs
}

func (c *ColumnSequence) Len() int {
	if c == nil {
		return 0
	}
	return len(c.seq)
}

// Lookup returns the sequence for a process column, trying the process name
// first and the process code second. Absent columns get MaxSequence.
func (c *ColumnSequence) Lookup(cat1Name, cat2Name, processName, processCode string) (int, bool) {
	if c == nil {
		return MaxSequence, false
	}
	if seq, ok := c.seq[sequenceKey{cat1Name, cat2Name, processName}]; ok {
		return seq, true
	}
	if seq, ok := c.seq[sequenceKey{cat1Name, cat2Name, processCode}]; ok {
		return seq, true
	}
	return MaxSequence, false
}

// ModelSortKey is the integer before the first hyphen of a model code
// ("100-2" -> 100). Codes that do not parse sort as 0.
func ModelSortKey(code string) int {
	prefix := code
	if idx := strings.Index(code, "-"); idx >= 0 {
		prefix = code[:idx]
	}
	key, err := strconv.Atoi(strings.TrimSpace(prefix))
	if err != nil {
		return 0
	}
	return key
}

// Report is the full workbook layout.
type Report struct {
	Sheets []Sheet
	// SequenceSupplied is false when no column-sequence table was given.
	SequenceSupplied bool
	// UnsequencedColumns lists section columns that fell back to MaxSequence.
	UnsequencedColumns []UnsequencedColumn
}

type UnsequencedColumn struct {
	Sheet       string
	Category2   string
	ProcessCode string
	ProcessName string
}

type Sheet struct {
	Name          string
	Cat1Code      string
	Cat1Name      string
	EffectiveDate string
	Sections      []Section
}

// Section is one category2 matrix: rows are models, columns are processes.
type Section struct {
	Cat2Code string
	Cat2Name string
	Columns  []Column
	Rows     []Row
}

// Title is the section header text.
func (s Section) Title() string {
	return s.Cat2Name + " (" + s.Cat2Code + ")"
}

// Height is the number of sheet rows the section occupies including spacers.
func (s Section) Height() int {
	return 1 + 1 + len(s.Rows) + spacerRows
}

type Column struct {
	Code     string
	Label    string
	Sequence int
}

type Row struct {
	ModelCode string
	Label     string
	SortKey   int
	// Cells is aligned with Section.Columns; nil means no price for that pair.
	Cells []*decimal.Decimal
}

type sheetKey struct {
	cat1Code string
	date     string
}

// Build lays rows out into sheets and sections. seq may be nil.
func Build(rows []domain.ResolvedQuotaRow, names Names, seq *ColumnSequence) Report {
	bySheet := make(map[sheetKey][]domain.ResolvedQuotaRow)
	keys := make([]sheetKey, 0)
	for _, row := range rows {
		key := sheetKey{cat1Code: row.Cat1Code, date: row.EffectiveDate}
		if _, ok := bySheet[key]; !ok {
			keys = append(keys, key)
		}
		bySheet[key] = append(bySheet[key], row)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cat1Code != keys[j].cat1Code {
			return keys[i].cat1Code < keys[j].cat1Code
		}
		return keys[i].date < keys[j].date
	})

	report := Report{Sheets: make([]Sheet, 0, len(keys)), SequenceSupplied: seq != nil}
	sheetNames := newNameRegistry()
	for _, key := range keys {
		cat1Name := label(names.Category1, key.cat1Code)
		sheet := Sheet{
			Name:          sheetNames.claim(SheetName(cat1Name, key.cat1Code, key.date)),
			Cat1Code:      key.cat1Code,
			Cat1Name:      cat1Name,
			EffectiveDate: key.date,
		}
		sheet.Sections = buildSections(bySheet[key], names, seq, cat1Name, sheet.Name, &report)
		report.Sheets = append(report.Sheets, sheet)
	}
	return report
}

func buildSections(rows []domain.ResolvedQuotaRow, names Names, seq *ColumnSequence, cat1Name, sheetName string, report *Report) []Section {
	byCat2 := make(map[string][]domain.ResolvedQuotaRow)
	cat2Codes := make([]string, 0)
	for _, row := range rows {
		if _, ok := byCat2[row.Cat2Code]; !ok {
			cat2Codes = append(cat2Codes, row.Cat2Code)
		}
		byCat2[row.Cat2Code] = append(byCat2[row.Cat2Code], row)
	}
	sort.Strings(cat2Codes)

	sections := make([]Section, 0, len(cat2Codes))
	for _, cat2Code := range cat2Codes {
		section := Section{Cat2Code: cat2Code, Cat2Name: label(names.Category2, cat2Code)}
		members := byCat2[cat2Code]

		columnIndex := make(map[string]int)
		rowIndex := make(map[string]int)
		for _, row := range members {
			if _, ok := columnIndex[row.ProcessCode]; !ok {
				processName := label(names.Process, row.ProcessCode)
				// without a table every column shares sequence 0 and falls back to code order
				sequence := 0
				if seq != nil {
					var found bool
					sequence, found = seq.Lookup(cat1Name, section.Cat2Name, processName, row.ProcessCode)
					if !found {
						report.UnsequencedColumns = append(report.UnsequencedColumns, UnsequencedColumn{
							Sheet:       sheetName,
							Category2:   cat2Code,
							ProcessCode: row.ProcessCode,
							ProcessName: processName,
						})
					}
				}
				columnIndex[row.ProcessCode] = len(section.Columns)
				section.Columns = append(section.Columns, Column{Code: row.ProcessCode, Label: processName, Sequence: sequence})
			}
			if _, ok := rowIndex[row.ModelCode]; !ok {
				rowIndex[row.ModelCode] = len(section.Rows)
				section.Rows = append(section.Rows, Row{
					ModelCode: row.ModelCode,
					Label:     label(names.Model, row.ModelCode),
					SortKey:   ModelSortKey(row.ModelCode),
				})
			}
		}

		sort.SliceStable(section.Columns, func(i, j int) bool {
			a, b := section.Columns[i], section.Columns[j]
			if a.Sequence != b.Sequence {
				return a.Sequence < b.Sequence
			}
			return a.Code < b.Code
		})
		sort.SliceStable(section.Rows, func(i, j int) bool {
			a, b := section.Rows[i], section.Rows[j]
			if a.SortKey != b.SortKey {
				return a.SortKey < b.SortKey
			}
			return a.ModelCode < b.ModelCode
		})

		columnIndex = make(map[string]int, len(section.Columns))
		for i, column := range section.Columns {
			columnIndex[column.Code] = i
		}
		for i, row := range section.Rows {
			rowIndex[row.ModelCode] = i
			section.Rows[i].Cells = make([]*decimal.Decimal, len(section.Columns))
		}
		for _, row := range members {
			price := row.UnitPrice
			section.Rows[rowIndex[row.ModelCode]].Cells[columnIndex[row.ProcessCode]] = &price
		}
		sections = append(sections, section)
	}
	return sections
}
