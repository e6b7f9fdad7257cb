// Package exporter turns a run's stage-4 element file into reports.
//
// SummaryBuilder aggregates element rows per category (fixation count,
// total and mean fixation time, element count, mean LF/HF and total LF/HF
// delta), ordered by the category dictionary. WriteSummaryCSV renders the
// step 5 CSV, and WorkbookReporter streams the rows and the summary into an
// xlsx workbook with "Elements" and "Summary" sheets.
package exporter
