package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/quotanorm/internal/domain"
)

// WorkbookExtension is the suffix every saved workbook carries.
const WorkbookExtension = ".xlsx"

// ExcelWriter is a SheetWriter that builds an in-memory xlsx workbook.
type ExcelWriter struct {
	file   *excelize.File
	styles map[CellStyle]int
	sheets []string
}

func NewExcelWriter() *ExcelWriter {
	return &ExcelWriter{
		file:   excelize.NewFile(),
		styles: make(map[CellStyle]int),
	}
}

// ExportWorkbook renders rows into a new workbook. The caller owns the returned
// writer and must Close it.
func ExportWorkbook(rows []domain.ResolvedQuotaRow, names Names, seq *ColumnSequence, opts ...Option) (*ExcelWriter, error) {
	w := NewExcelWriter()
	if err := Export(rows, names, seq, w, opts...); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func (w *ExcelWriter) AddSheet(name string) error {
	if len(w.sheets) == 0 {
		// reuse the default sheet created with the file
		if err := w.file.SetSheetName(w.file.GetSheetName(0), name); err != nil {
			return fmt.Errorf("rename default sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheets = append(w.sheets, name)
	return nil
}

func (w *ExcelWriter) SetCell(sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return w.file.SetCellValue(sheet, cell, value)
}

func (w *ExcelWriter) SetCellStyle(sheet string, col, row int, style CellStyle) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	id, err := w.style(style)
	if err != nil {
		return err
	}
	return w.file.SetCellStyle(sheet, cell, cell, id)
}

func (w *ExcelWriter) SetRowHeight(sheet string, row int, height float64) error {
	return w.file.SetRowHeight(sheet, row, height)
}

func (w *ExcelWriter) SetColumnWidth(sheet string, col int, width float64) error {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return err
	}
	return w.file.SetColWidth(sheet, name, name, width)
}

func (w *ExcelWriter) style(style CellStyle) (int, error) {
	if id, ok := w.styles[style]; ok {
		return id, nil
	}
	definition, err := styleDefinition(style)
	if err != nil {
		return 0, err
	}
	id, err := w.file.NewStyle(definition)
	if err != nil {
		return 0, fmt.Errorf("register style: %w", err)
	}
	w.styles[style] = id
	return id, nil
}

func styleDefinition(style CellStyle) (*excelize.Style, error) {
	switch style {
	case StyleSectionHeader:
		return &excelize.Style{
			Font: &excelize.Font{Bold: true, Size: 12, Color: "1F4E78"},
		}, nil
	case StyleColumnHeader:
		return &excelize.Style{
			Font:      &excelize.Font{Bold: true},
			Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		}, nil
	case StyleRowIndex:
		return &excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"F2F2F2"}},
		}, nil
	default:
		return nil, fmt.Errorf("unknown cell style %d", style)
	}
}

// SheetNames lists the sheets added so far, in order.
func (w *ExcelWriter) SheetNames() []string {
	return append([]string(nil), w.sheets...)
}

// File exposes the underlying workbook.
func (w *ExcelWriter) File() *excelize.File {
	return w.file
}

func (w *ExcelWriter) WriteTo(out io.Writer) (int64, error) {
	return w.file.WriteTo(out)
}

// Save writes the workbook to path with its extension normalized to .xlsx and
// returns the path actually written.
func (w *ExcelWriter) Save(path string) (string, error) {
	target := NormalizeExtension(path)
	if err := w.file.SaveAs(target); err != nil {
		return "", fmt.Errorf("save workbook %s: %w", target, err)
	}
	return target, nil
}

func (w *ExcelWriter) Close() error {
	return w.file.Close()
}

// NormalizeExtension replaces any extension of path with .xlsx.
func NormalizeExtension(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + WorkbookExtension
}
