package tabular

import "testing"

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		col  int
		want string
	}{
		{1, "A"},
		{5, "E"},
		{26, "Z"},
		{27, "AA"},
		{52, "AZ"},
		{0, ""},
	}
	for _, tt := range tests {
		if got := ColumnLetter(tt.col); got != tt.want {
			t.Errorf("ColumnLetter(%d) = %q, want %q", tt.col, got, tt.want)
		}
	}
}

func TestRangeRef(t *testing.T) {
	if got := RangeRef(5, 7, 4); got != "E4:G4" {
		t.Errorf("RangeRef(5, 7, 4) = %q, want E4:G4", got)
	}
	if got := RangeRef(9, 9, 3); got != "I3" {
		t.Errorf("RangeRef(9, 9, 3) = %q, want I3", got)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		a1      string
		want    Range
		wantErr bool
	}{
		{"E5", Range{5, 5, 5, 5}, false},
		{"E5:G5", Range{5, 5, 7, 5}, false},
		{"Debts!A2:J2", Range{1, 2, 10, 2}, false},
		{"aa10", Range{27, 10, 27, 10}, false},
		{"G5:E5", Range{}, true},
		{"5E", Range{}, true},
		{"E", Range{}, true},
		{"E0", Range{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.a1, func(t *testing.T) {
			got, err := ParseRange(tt.a1)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRange(%q) error = %v, wantErr %v", tt.a1, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRange(%q) = %+v, want %+v", tt.a1, got, tt.want)
			}
		})
	}
}

func TestRowsFromValues(t *testing.T) {
	values := [][]string{
		{"ID", "Fecha"},
		{"DEBT-1", "2025-01-01"},
		{"", "  "},
		{"DEBT-2"},
	}
	canon := func(h string) string {
		if h == "Fecha" {
			return "Date"
		}
		return h
	}

	rows := RowsFromValues(values, canon)
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0].Get("Date") != "2025-01-01" {
		t.Errorf("rows[0].Date = %q", rows[0].Get("Date"))
	}
	if len(rows[1]) != 0 {
		t.Errorf("blank row should be empty, got %v", rows[1])
	}
	if rows[2].Get("ID") != "DEBT-2" || rows[2].Get("Date") != "" {
		t.Errorf("short row = %v", rows[2])
	}
	if SheetRow(2) != 4 {
		t.Errorf("SheetRow(2) = %d, want 4", SheetRow(2))
	}
}
