package tabular

import (
	"context"
	"strings"
)

// Row is one data row keyed by header name. Values are the raw cell strings.
type Row map[string]string

// Get returns the trimmed cell value for a column, or "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Store is one worksheet: an ordered sequence of rows below a fixed header row.
// Implementations do not lock across calls; callers that need read-modify-write
// consistency must serialize access themselves.
type Store interface {
	// ReadAllRows returns every data row keyed by the header, in sheet order.
	// Blank rows come back as empty Rows so indexes still map to sheet rows.
	ReadAllRows(ctx context.Context) ([]Row, error)

	// ReadColumn returns the raw cells of a 1-based column, header cell included.
	ReadColumn(ctx context.Context, col int) ([]string, error)

	// AppendRow adds a row after the last row.
	AppendRow(ctx context.Context, values []any) error

	// InsertRowAt inserts a row at a 1-based sheet row, shifting later rows down.
	InsertRowAt(ctx context.Context, values []any, row int) error

	// UpdateRange overwrites the cells of an A1 range such as "E5:G5".
	UpdateRange(ctx context.Context, a1 string, values [][]any) error
}

// FirstDataRow is the sheet row right below the header.
const FirstDataRow = 2

// SheetRow converts a 0-based index into ReadAllRows' result into a 1-based sheet row.
func SheetRow(index int) int {
	return index + FirstDataRow
}

// RowsFromValues keys raw values by the first row, skipping rows whose cells are all blank.
// canon, when non-nil, rewrites header names (legacy spellings).
func RowsFromValues(values [][]string, canon func(string) string) []Row {
	if len(values) == 0 {
		return nil
	}
	header := make([]string, len(values[0]))
	for i, h := range values[0] {
		h = strings.TrimSpace(h)
		if canon != nil {
			h = canon(h)
		}
		header[i] = h
	}

	rows := make([]Row, 0, len(values)-1)
	for _, raw := range values[1:] {
		row := make(Row, len(header))
		blank := true
		for i, h := range header {
			v := ""
			if i < len(raw) {
				v = raw[i]
			}
			if strings.TrimSpace(v) != "" {
				blank = false
			}
			row[h] = v
		}
		if blank {
			// keep the slot so indexes still map to sheet rows
			row = Row{}
		}
		rows = append(rows, row)
	}
	return rows
}
