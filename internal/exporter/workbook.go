package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"etaanalyzer/pkg/contracts/domain"
)

// Workbook sheet names
const (
	ElementsSheet = "Elements"
	SummarySheet  = "Summary"
)

// textual columns of the Elements sheet: Event, Category, AriaLabel
var textualElementColumns = map[int]bool{1: true, 2: true, 8: true}

// WorkbookReporter streams stage-4 rows into an xlsx workbook and appends
// the category summary when written out.
type WorkbookReporter struct {
	file   *excelize.File
	stream *excelize.StreamWriter
	bold   int
	row    int
}

// NewWorkbookReporter creates the workbook with both sheets and writes the Elements header
func NewWorkbookReporter() (*WorkbookReporter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), ElementsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	sw, err := f.NewStreamWriter(ElementsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open stream writer: %w", err)
	}
	// AriaLabel carries free text
	if err := sw.SetColWidth(9, 9, 40); err != nil {
		f.Close()
		return nil, err
	}

	wr := &WorkbookReporter{file: f, stream: sw, bold: bold, row: 1}
	if err := sw.SetRow("A1", toCells(domain.ElementHeader), excelize.RowOpts{StyleID: bold}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return wr, nil
}

// AddElement appends one stage-4 row with numeric cells typed
func (wr *WorkbookReporter) AddElement(rec domain.ElementRecord) error {
	wr.row++
	fields := rec.Fields()
	values := make([]interface{}, len(fields))
	for i, field := range fields {
		values[i] = cellValue(field, textualElementColumns[i])
	}

	cell, err := excelize.CoordinatesToCellName(1, wr.row)
	if err != nil {
		return err
	}
	return wr.stream.SetRow(cell, values)
}

// Rows is the number of element rows added
func (wr *WorkbookReporter) Rows() int {
	return wr.row - 1
}

// WriteTo finishes the Elements sheet, fills the Summary sheet and writes the xlsx to w
func (wr *WorkbookReporter) WriteTo(w io.Writer, summary *CategorySummary) error {
	if err := wr.stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush elements sheet: %w", err)
	}
	if summary != nil {
		if err := wr.writeSummary(summary); err != nil {
			return err
		}
	}
	if _, err := wr.file.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (wr *WorkbookReporter) writeSummary(summary *CategorySummary) error {
	header := toCells(SummaryHeader)
	if err := wr.file.SetSheetRow(SummarySheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}
	if err := wr.file.SetCellStyle(SummarySheet, "A1", "G1", wr.bold); err != nil {
		return err
	}
	if err := wr.file.SetColWidth(SummarySheet, "A", "A", 24); err != nil {
		return err
	}

	for i, c := range summary.Categories {
		row := []interface{}{
			c.Category,
			c.Fixations,
			c.TotalFixationTime,
			optionalCell(c.MeanFixationTime),
			c.Elements,
			optionalCell(c.MeanLFHF),
			c.TotalLFHFDelta,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := wr.file.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	return nil
}

// Close releases the workbook's temporary files
func (wr *WorkbookReporter) Close() error {
	return wr.file.Close()
}

// WriteWorkbook writes rows and summary as a complete workbook
func WriteWorkbook(w io.Writer, rows []domain.ElementRecord, summary *CategorySummary) error {
	wr, err := NewWorkbookReporter()
	if err != nil {
		return err
	}
	defer wr.Close()

	for _, rec := range rows {
		if err := wr.AddElement(rec); err != nil {
			return err
		}
	}
	return wr.WriteTo(w, summary)
}

func toCells(fields []string) []interface{} {
	cells := make([]interface{}, len(fields))
	for i, f := range fields {
		cells[i] = f
	}
	return cells
}

func optionalCell(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
