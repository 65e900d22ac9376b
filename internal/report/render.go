package report

import (
	"errors"
	"math"

	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"

	"github.com/rpattn/quotanorm/internal/domain"
)

// CellStyle names the presentation roles a SheetWriter must be able to draw.
type CellStyle int

const (
	StyleSectionHeader CellStyle = iota + 1
	StyleColumnHeader
	StyleRowIndex
)

// SheetWriter is the tabular sheet capability the report is rendered through.
// Rows and columns are 1-based.
type SheetWriter interface {
	AddSheet(name string) error
	SetCell(sheet string, col, row int, value any) error
	SetCellStyle(sheet string, col, row int, style CellStyle) error
	SetRowHeight(sheet string, row int, height float64) error
	SetColumnWidth(sheet string, col int, width float64) error
}

const (
	headerRowHeight = 24
	widthFactor     = 1.2
	widthPadding    = 2
	maxColumnWidth  = 60
	spacerRows      = 2
)

var errNoWriter = errors.New("no sheet writer configured")

type settings struct {
	cornerLabel string
	logger      *zap.Logger
}

type Option func(*settings)

// WithCornerLabel sets the text above the model column of every section.
func WithCornerLabel(text string) Option {
	return func(s *settings) {
		s.cornerLabel = text
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{cornerLabel: "Model", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Export builds the layout for rows and renders it through w. Any failure
// aborts the whole export with a *domain.ExportError.
func Export(rows []domain.ResolvedQuotaRow, names Names, seq *ColumnSequence, w SheetWriter, opts ...Option) error {
	s := newSettings(opts)
	report := Build(rows, names, seq)

	if !report.SequenceSupplied {
		s.logger.Warn("column sequence table not supplied, ordering columns by process code")
	}
	for _, column := range report.UnsequencedColumns {
		s.logger.Warn("no column sequence entry, placing column last",
			zap.String("sheet", column.Sheet),
			zap.String("cat2_code", column.Category2),
			zap.String("process_code", column.ProcessCode),
			zap.String("process_name", column.ProcessName),
		)
	}

	return render(report, w, s)
}

// Render draws an already built report through w.
func Render(report Report, w SheetWriter, opts ...Option) error {
	return render(report, w, newSettings(opts))
}

func render(report Report, w SheetWriter, s settings) error {
	if w == nil {
		return &domain.ExportError{Err: errNoWriter}
	}
	for _, sheet := range report.Sheets {
		if err := renderSheet(sheet, w, s); err != nil {
			return &domain.ExportError{Sheet: sheet.Name, Err: err}
		}
		s.logger.Debug("rendered sheet", zap.String("sheet", sheet.Name), zap.Int("sections", len(sheet.Sections)))
	}
	return nil
}

func renderSheet(sheet Sheet, w SheetWriter, s settings) error {
	if err := w.AddSheet(sheet.Name); err != nil {
		return err
	}

	widths := map[int]int{}
	track := func(col int, text string) {
		if width := runewidth.StringWidth(text); width > widths[col] {
			widths[col] = width
		}
	}

	start := 1
	for _, section := range sheet.Sections {
		title := section.Title()
		if err := w.SetCell(sheet.Name, 1, start, title); err != nil {
			return err
		}
		if err := w.SetCellStyle(sheet.Name, 1, start, StyleSectionHeader); err != nil {
			return err
		}

		headerRow := start + 1
		if err := w.SetCell(sheet.Name, 1, headerRow, s.cornerLabel); err != nil {
			return err
		}
		if err := w.SetCellStyle(sheet.Name, 1, headerRow, StyleColumnHeader); err != nil {
			return err
		}
		track(1, s.cornerLabel)
		for i, column := range section.Columns {
			col := i + 2
			if err := w.SetCell(sheet.Name, col, headerRow, column.Label); err != nil {
				return err
			}
			if err := w.SetCellStyle(sheet.Name, col, headerRow, StyleColumnHeader); err != nil {
				return err
			}
			track(col, column.Label)
		}
		if err := w.SetRowHeight(sheet.Name, headerRow, headerRowHeight); err != nil {
			return err
		}

		for r, row := range section.Rows {
			sheetRow := headerRow + 1 + r
			if err := w.SetCell(sheet.Name, 1, sheetRow, row.Label); err != nil {
				return err
			}
			if err := w.SetCellStyle(sheet.Name, 1, sheetRow, StyleRowIndex); err != nil {
				return err
			}
			track(1, row.Label)
			for c, cell := range row.Cells {
				if cell == nil {
					continue
				}
				if err := w.SetCell(sheet.Name, c+2, sheetRow, cell.InexactFloat64()); err != nil {
					return err
				}
				track(c+2, cell.String())
			}
		}

		start += section.Height()
	}

	for col, width := range widths {
		if err := w.SetColumnWidth(sheet.Name, col, columnWidth(width)); err != nil {
			return err
		}
	}
	return nil
}

func columnWidth(displayWidth int) float64 {
	return math.Min(float64(displayWidth)*widthFactor+widthPadding, maxColumnWidth)
}
