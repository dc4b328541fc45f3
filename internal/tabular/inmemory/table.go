package inmemory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/dvloznov/finance-ledger/internal/tabular"
)

// Table is an in-memory implementation of tabular.Store.
// It is safe for concurrent use and is meant for tests and local runs;
// data is lost when the process exits.
type Table struct {
	mu     sync.RWMutex
	header []string
	rows   [][]string

	// Canon, when set, rewrites header names on read.
	Canon func(string) string

	// ReadErr and WriteErr, when set, make every read or write fail.
	ReadErr  error
	WriteErr error

	writes int
}

// NewTable creates an empty table with the given header.
func NewTable(header []string) *Table {
	h := make([]string, len(header))
	copy(h, header)
	return &Table{header: h}
}

// Seed appends raw string rows, bypassing failure injection.
func (t *Table) Seed(rows ...[]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		t.rows = append(t.rows, padded(r, len(t.header)))
	}
}

// Values returns a copy of every row, header first.
func (t *Table) Values() [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([][]string, 0, len(t.rows)+1)
	out = append(out, append([]string(nil), t.header...))
	for _, r := range t.rows {
		out = append(out, append([]string(nil), r...))
	}
	return out
}

// Cell returns the raw value at a 1-based sheet row and column.
func (t *Table) Cell(row, col int) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if row == 1 {
		if col-1 < len(t.header) {
			return t.header[col-1]
		}
		return ""
	}
	i := row - tabular.FirstDataRow
	if i < 0 || i >= len(t.rows) || col-1 >= len(t.rows[i]) {
		return ""
	}
	return t.rows[i][col-1]
}

// Writes counts successful write calls.
func (t *Table) Writes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.writes
}

// ReadAllRows implements tabular.Store.
func (t *Table) ReadAllRows(ctx context.Context) ([]tabular.Row, error) {
	if t.ReadErr != nil {
		return nil, t.ReadErr
	}
	return tabular.RowsFromValues(t.Values(), t.Canon), nil
}

// ReadColumn implements tabular.Store.
func (t *Table) ReadColumn(ctx context.Context, col int) ([]string, error) {
	if t.ReadErr != nil {
		return nil, t.ReadErr
	}
	if col < 1 {
		return nil, fmt.Errorf("ReadColumn: column %d out of range", col)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.rows)+1)
	if col-1 < len(t.header) {
		out = append(out, t.header[col-1])
	}
	for _, r := range t.rows {
		if col-1 < len(r) {
			out = append(out, r[col-1])
		} else {
			out = append(out, "")
		}
	}
	return out, nil
}

// AppendRow implements tabular.Store.
func (t *Table) AppendRow(ctx context.Context, values []any) error {
	if t.WriteErr != nil {
		return t.WriteErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = append(t.rows, padded(render(values), len(t.header)))
	t.writes++
	return nil
}

// InsertRowAt implements tabular.Store.
func (t *Table) InsertRowAt(ctx context.Context, values []any, row int) error {
	if t.WriteErr != nil {
		return t.WriteErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	i := row - tabular.FirstDataRow
	if i < 0 || i > len(t.rows) {
		return fmt.Errorf("InsertRowAt: row %d out of range", row)
	}
	r := padded(render(values), len(t.header))
	t.rows = append(t.rows, nil)
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = r
	t.writes++
	return nil
}

// UpdateRange implements tabular.Store.
func (t *Table) UpdateRange(ctx context.Context, a1 string, values [][]any) error {
	if t.WriteErr != nil {
		return t.WriteErr
	}
	rng, err := tabular.ParseRange(a1)
	if err != nil {
		return fmt.Errorf("UpdateRange: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for dr, vals := range values {
		row := rng.FromRow + dr
		if row > rng.ToRow {
			break
		}
		i := row - tabular.FirstDataRow
		if i < 0 || i >= len(t.rows) {
			return fmt.Errorf("UpdateRange: row %d out of range", row)
		}
		for dc, v := range render(vals) {
			col := rng.FromCol + dc
			if col > rng.ToCol {
				break
			}
			for len(t.rows[i]) < col {
				t.rows[i] = append(t.rows[i], "")
			}
			t.rows[i][col-1] = v
		}
	}
	t.writes++
	return nil
}

func render(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = x
		case float64:
			out[i] = strconv.FormatFloat(x, 'f', -1, 64)
		case int:
			out[i] = strconv.Itoa(x)
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}

func padded(r []string, n int) []string {
	out := make([]string, n)
	copy(out, r)
	if len(r) > n {
		out = append(out, r[n:]...)
	}
	return out
}

// Ensure Table implements tabular.Store.
var _ tabular.Store = (*Table)(nil)
