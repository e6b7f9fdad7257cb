package exporter

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// writeLines writes comma-joined rows without quoting, matching the stage files
func writeLines(w io.Writer, header []string, rows [][]string) error {
	bw := bufio.NewWriter(w)
	for _, fields := range append([][]string{header}, rows...) {
		if _, err := bw.WriteString(strings.Join(fields, ",")); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// cellValue types a CSV field for a spreadsheet cell. Empty fields stay
// empty; numeric text becomes a number unless the column is textual.
func cellValue(field string, textual bool) interface{} {
	if field == "" {
		return nil
	}
	if textual {
		return field
	}
	if i, err := strconv.ParseInt(field, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil {
		return f
	}
	return field
}
