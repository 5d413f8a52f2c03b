package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxSheet       = "Report"
	xlsxMinColWidth = 10.0
	xlsxMaxColWidth = 60.0
)

// XLSXExporter renders datasets into a single-sheet Excel workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) Extension() string { return "xlsx" }
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Render writes headers to row 1 followed by one row per record.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(xlsxSheet, "A1", &data.Headers); err != nil {
		return nil, fmt.Errorf("write xlsx headers: %w", err)
	}
	for i, row := range data.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		record := data.Record(row)
		values := make([]interface{}, len(record))
		for j, v := range record {
			values[j] = v
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write xlsx row: %w", err)
		}
	}

	if err := applyDefaultFormatting(f, data); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// applyDefaultFormatting bolds the header, adds an autofilter and sizes
// columns by content length.
func applyDefaultFormatting(f *excelize.File, data Dataset) error {
	lastCol, err := excelize.ColumnNumberToName(len(data.Headers))
	if err != nil {
		return err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(xlsxSheet, "A1", lastCol+"1", style)
	}
	_ = f.AutoFilter(xlsxSheet, fmt.Sprintf("A1:%s1", lastCol), nil)

	widths := make([]float64, len(data.Headers))
	for i, header := range data.Headers {
		widths[i] = columnWidth(header) + 1.5
	}
	for _, row := range data.Rows {
		for i, value := range data.Record(row) {
			if w := columnWidth(value); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if w < xlsxMinColWidth {
			w = xlsxMinColWidth
		}
		if w > xlsxMaxColWidth {
			w = xlsxMaxColWidth
		}
		if err := f.SetColWidth(xlsxSheet, col, col, w); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	return nil
}

func columnWidth(s string) float64 {
	n := 0
	for _, r := range s {
		if r == '\t' {
			n += 4
		} else {
			n++
		}
	}
	return float64(n) * 1.1
}
