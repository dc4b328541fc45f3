package tabular

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnLetter converts a 1-based column index into its A1 letters (1 -> A, 27 -> AA).
func ColumnLetter(col int) string {
	if col < 1 {
		return ""
	}
	var b []byte
	for col > 0 {
		col--
		b = append([]byte{byte('A' + col%26)}, b...)
		col /= 26
	}
	return string(b)
}

// CellRef builds an A1 reference such as "E5".
func CellRef(col, row int) string {
	return ColumnLetter(col) + strconv.Itoa(row)
}

// RangeRef builds an A1 range spanning fromCol..toCol on one row, e.g. "E5:G5".
func RangeRef(fromCol, toCol, row int) string {
	if fromCol == toCol {
		return CellRef(fromCol, row)
	}
	return CellRef(fromCol, row) + ":" + CellRef(toCol, row)
}

// Range is a parsed, inclusive A1 range with 1-based coordinates.
type Range struct {
	FromCol, FromRow int
	ToCol, ToRow     int
}

// ParseRange parses "E5", "E5:G5" or "Sheet!E5:G5".
func ParseRange(a1 string) (Range, error) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	parts := strings.Split(strings.ToUpper(strings.TrimSpace(a1)), ":")
	if len(parts) == 0 || len(parts) > 2 {
		return Range{}, fmt.Errorf("ParseRange: bad range %q", a1)
	}

	fc, fr, err := parseCell(parts[0])
	if err != nil {
		return Range{}, fmt.Errorf("ParseRange: %w", err)
	}
	r := Range{FromCol: fc, FromRow: fr, ToCol: fc, ToRow: fr}
	if len(parts) == 2 {
		tc, tr, err := parseCell(parts[1])
		if err != nil {
			return Range{}, fmt.Errorf("ParseRange: %w", err)
		}
		r.ToCol, r.ToRow = tc, tr
	}
	if r.ToCol < r.FromCol || r.ToRow < r.FromRow {
		return Range{}, fmt.Errorf("ParseRange: inverted range %q", a1)
	}
	return r, nil
}

func parseCell(ref string) (col, row int, err error) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		col = col*26 + int(ref[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, fmt.Errorf("bad cell %q", ref)
	}
	row, err = strconv.Atoi(ref[i:])
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("bad cell %q", ref)
	}
	return col, row, nil
}
