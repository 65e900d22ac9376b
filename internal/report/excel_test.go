package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/quotanorm/internal/domain"
)

func TestExportWorkbookWritesReadableSheets(t *testing.T) {
	rows := []domain.ResolvedQuotaRow{
		row("C01", "2RXZ", "100-2", "P01", "10.5", "20230101"),
		row("C02", "Y2HZ", "63-1", "P02", "12", "20230601"),
	}
	w, err := ExportWorkbook(rows, testNames(), nil)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, []string{"机加 C01 20230101", "装配 C02 20230601"}, w.SheetNames())

	var buf bytes.Buffer
	_, err = w.WriteTo(&buf)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"机加 C01 20230101", "装配 C02 20230601"}, f.GetSheetList())

	title, err := f.GetCellValue("机加 C01 20230101", "A1")
	require.NoError(t, err)
	assert.Equal(t, "2人校正 (2RXZ)", title)

	header, err := f.GetCellValue("机加 C01 20230101", "B2")
	require.NoError(t, err)
	assert.Equal(t, "绕线", header)

	price, err := f.GetCellValue("机加 C01 20230101", "B3")
	require.NoError(t, err)
	assert.Equal(t, "10.5", price)

	model, err := f.GetCellValue("装配 C02 20230601", "A3")
	require.NoError(t, err)
	assert.Equal(t, "Y2-63M", model)

	height, err := f.GetRowHeight("机加 C01 20230101", 2)
	require.NoError(t, err)
	assert.Equal(t, float64(headerRowHeight), height)
}

func TestExcelWriterReusesStyles(t *testing.T) {
	w := NewExcelWriter()
	defer w.Close()
	require.NoError(t, w.AddSheet("one"))

	first, err := w.style(StyleColumnHeader)
	require.NoError(t, err)
	second, err := w.style(StyleColumnHeader)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = w.style(CellStyle(99))
	assert.Error(t, err)
}

func TestExcelWriterSaveNormalizesExtension(t *testing.T) {
	w, err := ExportWorkbook([]domain.ResolvedQuotaRow{
		row("C01", "2RXZ", "100-2", "P01", "1", "20230101"),
	}, testNames(), nil)
	require.NoError(t, err)
	defer w.Close()

	path, err := w.Save(filepath.Join(t.TempDir(), "quota.xls"))
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", filepath.Ext(path))

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestNormalizeExtension(t *testing.T) {
	assert.Equal(t, "report.xlsx", NormalizeExtension("report"))
	assert.Equal(t, "report.xlsx", NormalizeExtension("report.xlsx"))
	assert.Equal(t, "out/report.xlsx", NormalizeExtension("out/report.csv"))
}
