// Package sheets implements tabular.Store on top of one Google Sheets worksheet.
package sheets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/tabular"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	// rawInput stores values exactly as sent; the sheet must not reinterpret "1,5" or dates.
	rawInput = "RAW"

	// Numbers are read unformatted so grouping separators ("1,234") never reach the
	// comma-decimal parser. Date cells still come back as text.
	unformattedValue = "UNFORMATTED_VALUE"
	formattedDates   = "FORMATTED_STRING"
)

// Table is one worksheet (tab) of a spreadsheet. It holds a shared Sheets service
// so every call reuses the same authenticated client.
type Table struct {
	svc           *sheets.Service
	spreadsheetID string
	title         string
	header        []string
	canon         func(string) string

	sheetID int64
}

// Option configures a Table.
type Option func(*Table)

// WithHeaderCanon rewrites legacy header names on every read.
func WithHeaderCanon(canon func(string) string) Option {
	return func(t *Table) { t.canon = canon }
}

// NewService creates a Sheets service. credentialsFile may be empty to use
// Application Default Credentials.
func NewService(ctx context.Context, credentialsFile string) (*sheets.Service, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, option.WithScopes(sheets.SpreadsheetsScope))

	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewService: creating sheets service: %w", err)
	}
	return svc, nil
}

// NewTable opens the worksheet named title, creating it with header when it does not exist.
func NewTable(ctx context.Context, svc *sheets.Service, spreadsheetID, title string, header []string, opts ...Option) (*Table, error) {
	t := &Table{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		title:         title,
		header:        header,
	}
	for _, o := range opts {
		o(t)
	}
	if err := t.EnsureHeader(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// EnsureHeader creates the worksheet when missing and writes the header when row 1 is empty.
func (t *Table) EnsureHeader(ctx context.Context) error {
	ss, err := t.svc.Spreadsheets.Get(t.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return t.fail("EnsureHeader", "loading spreadsheet", err)
	}

	found := false
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == t.title {
			t.sheetID = s.Properties.SheetId
			found = true
			break
		}
	}

	if !found {
		resp, err := t.svc.Spreadsheets.BatchUpdate(t.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: t.title},
				},
			}},
		}).Context(ctx).Do()
		if err != nil {
			return t.fail("EnsureHeader", "adding worksheet", err)
		}
		if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
			t.sheetID = resp.Replies[0].AddSheet.Properties.SheetId
		}
	}

	if len(t.header) == 0 {
		return nil
	}
	vr, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, t.a1("1:1")).Context(ctx).Do()
	if err != nil {
		return t.fail("EnsureHeader", "reading header", err)
	}
	if len(vr.Values) > 0 && len(vr.Values[0]) > 0 {
		return nil
	}

	row := make([]any, len(t.header))
	for i, h := range t.header {
		row[i] = h
	}
	_, err = t.svc.Spreadsheets.Values.Update(t.spreadsheetID, t.a1("A1"), &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption(rawInput).Context(ctx).Do()
	if err != nil {
		return t.fail("EnsureHeader", "writing header", err)
	}
	return nil
}

// ReadAllRows implements tabular.Store.
func (t *Table) ReadAllRows(ctx context.Context) ([]tabular.Row, error) {
	vr, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, t.a1("A:ZZ")).
		ValueRenderOption(unformattedValue).DateTimeRenderOption(formattedDates).Context(ctx).Do()
	if err != nil {
		return nil, t.fail("ReadAllRows", "reading values", err)
	}
	return tabular.RowsFromValues(stringify(vr.Values), t.canon), nil
}

// ReadColumn implements tabular.Store.
func (t *Table) ReadColumn(ctx context.Context, col int) ([]string, error) {
	letter := tabular.ColumnLetter(col)
	if letter == "" {
		return nil, fmt.Errorf("ReadColumn: column %d out of range", col)
	}
	vr, err := t.svc.Spreadsheets.Values.Get(t.spreadsheetID, t.a1(letter+":"+letter)).
		MajorDimension("COLUMNS").ValueRenderOption(unformattedValue).DateTimeRenderOption(formattedDates).
		Context(ctx).Do()
	if err != nil {
		return nil, t.fail("ReadColumn", "reading column "+letter, err)
	}
	cols := stringify(vr.Values)
	if len(cols) == 0 {
		return nil, nil
	}
	return cols[0], nil
}

// AppendRow implements tabular.Store.
func (t *Table) AppendRow(ctx context.Context, values []any) error {
	_, err := t.svc.Spreadsheets.Values.Append(t.spreadsheetID, t.a1("A1"), &sheets.ValueRange{Values: [][]any{values}}).
		ValueInputOption(rawInput).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return t.fail("AppendRow", "appending row", err)
	}
	return nil
}

// InsertRowAt implements tabular.Store. It inserts an empty row, then fills it.
func (t *Table) InsertRowAt(ctx context.Context, values []any, row int) error {
	if row < 1 {
		return fmt.Errorf("InsertRowAt: row %d out of range", row)
	}
	_, err := t.svc.Spreadsheets.BatchUpdate(t.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			InsertDimension: &sheets.InsertDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    t.sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row - 1),
					EndIndex:   int64(row),
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return t.fail("InsertRowAt", "inserting row", err)
	}

	ref := tabular.RangeRef(1, max(len(values), 1), row)
	if err := t.UpdateRange(ctx, ref, [][]any{values}); err != nil {
		return fmt.Errorf("InsertRowAt: %w", err)
	}
	return nil
}

// UpdateRange implements tabular.Store.
func (t *Table) UpdateRange(ctx context.Context, a1 string, values [][]any) error {
	_, err := t.svc.Spreadsheets.Values.Update(t.spreadsheetID, t.a1(a1), &sheets.ValueRange{Values: values}).
		ValueInputOption(rawInput).Context(ctx).Do()
	if err != nil {
		return t.fail("UpdateRange", "updating "+a1, err)
	}
	return nil
}

// Title returns the worksheet name.
func (t *Table) Title() string {
	return t.title
}

func (t *Table) a1(ref string) string {
	return fmt.Sprintf("'%s'!%s", t.title, ref)
}

func (t *Table) fail(op, doing string, err error) error {
	return fmt.Errorf("%s: %s %s: %w: %w", op, doing, t.title, domain.ErrStoreUnavailable, err)
}

func stringify(values [][]any) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			switch x := v.(type) {
			case nil:
			case float64:
				out[i][j] = strconv.FormatFloat(x, 'f', -1, 64)
			default:
				out[i][j] = fmt.Sprint(x)
			}
		}
	}
	return out
}

// Ensure Table implements tabular.Store.
var _ tabular.Store = (*Table)(nil)
