package bigquery

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_second.sql":       {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.b` (x INT64);")},
		"0001_first.sql":        {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.a` (x INT64);")},
		"001_invalid.sql":       {Data: []byte("wrong number format")},
		"0003_no_extension":     {Data: []byte("missing .sql")},
		"0004.sql":              {Data: []byte("missing name")},
		"invalid_0005_test.sql": {Data: []byte("wrong order")},
		"README.md":             {Data: []byte("docs")},
	}

	got, err := ReadMigrations(fsys, "proj", "ledger")
	if err != nil {
		t.Fatalf("ReadMigrations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d migrations, want 2: %+v", len(got), got)
	}
	if got[0].Version != 1 || got[0].Name != "first" || got[1].Version != 2 || got[1].Name != "second" {
		t.Errorf("order = %d_%s, %d_%s", got[0].Version, got[0].Name, got[1].Version, got[1].Name)
	}
	if want := "CREATE TABLE `proj.ledger.a` (x INT64);"; got[0].SQL != want {
		t.Errorf("SQL = %q, want %q", got[0].SQL, want)
	}

	// checksum ignores the target dataset
	other, err := ReadMigrations(fsys, "other", "elsewhere")
	if err != nil {
		t.Fatalf("ReadMigrations() error = %v", err)
	}
	if other[0].Checksum != got[0].Checksum {
		t.Error("checksum changed with the target dataset")
	}
	if got[0].Checksum == got[1].Checksum {
		t.Error("different files share a checksum")
	}
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1")},
		"0001_b.sql": {Data: []byte("SELECT 2")},
	}
	if _, err := ReadMigrations(fsys, "p", "d"); err == nil {
		t.Fatal("expected an error for a duplicate version")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := ReadMigrations(Migrations(), "proj", "ledger")
	if err != nil {
		t.Fatalf("ReadMigrations() error = %v", err)
	}

	tables := []string{exportRunsTable, debtsTable, transactionsTable}
	if len(got) != len(tables) {
		t.Fatalf("got %d embedded migrations, want %d", len(got), len(tables))
	}
	for i, table := range tables {
		if got[i].Version != i+1 {
			t.Errorf("migration %d has version %d", i, got[i].Version)
		}
		if !strings.Contains(got[i].SQL, "`proj.ledger."+table+"`") {
			t.Errorf("migration %s does not create %s", got[i].Filename, table)
		}
		if strings.Contains(got[i].SQL, "{{") {
			t.Errorf("migration %s has unreplaced placeholders", got[i].Filename)
		}
	}
}
