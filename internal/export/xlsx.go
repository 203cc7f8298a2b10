package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"materialflow/internal/domain"
)

const sheetName = "Results"

// XLSXWriter buffers rows in a workbook and writes it on Close.
type XLSXWriter struct {
	out  io.Writer
	file *excelize.File
	row  int
}

// NewXLSXWriter creates an XLSXWriter that writes the workbook to w.
func NewXLSXWriter(w io.Writer) *XLSXWriter {
	f := excelize.NewFile()
	_ = f.SetSheetName("Sheet1", sheetName)
	return &XLSXWriter{out: w, file: f}
}

func (w *XLSXWriter) WriteHeader() error {
	if err := w.writeRow(columns); err != nil {
		return err
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := w.file.SetCellStyle(sheetName, "A1", last, style); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}
	return w.file.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (w *XLSXWriter) WriteResults(results []domain.Result) error {
	for i := range results {
		for _, row := range resultRows(&results[i]) {
			if err := w.writeRow(row); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *XLSXWriter) writeRow(values []string) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	if err := w.file.SetSheetRow(sheetName, cell, &row); err != nil {
		return fmt.Errorf("writing row %d: %w", w.row, err)
	}
	return nil
}

func (w *XLSXWriter) Close() error {
	defer w.file.Close()
	if _, err := w.file.WriteTo(w.out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
