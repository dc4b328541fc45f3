package backup

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/gcs"
	"github.com/dvloznov/finance-ledger/internal/gcsuploader"
	"github.com/dvloznov/finance-ledger/internal/tabular/inmemory"
	"github.com/rs/zerolog"
)

// mockStorage keeps uploaded objects in memory.
type mockStorage struct {
	UploadBytesFunc func(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error
	objects         map[string][]byte
}

func (m *mockStorage) UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
	if m.UploadBytesFunc != nil {
		return m.UploadBytesFunc(ctx, bucketName, objectName, data, contentType)
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[gcsuploader.URI(bucketName, objectName)] = data
	return nil
}

func (m *mockStorage) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	data, ok := m.objects[gcsURI]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (m *mockStorage) ListObjects(ctx context.Context, bucketName, prefix string) ([]gcs.Object, error) {
	var out []gcs.Object
	for uri, data := range m.objects {
		_, name, err := gcsuploader.ParseGCSURI(uri)
		if err != nil || !strings.HasPrefix(name, prefix) {
			continue
		}
		out = append(out, gcs.Object{Name: name, Size: int64(len(data))})
	}
	return out, nil
}

func newTestBackup(s *mockStorage) *Backup {
	b := New(s, "ledger-backups", zerolog.New(io.Discard))
	b.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return b
}

func debtTable() *inmemory.Table {
	tbl := inmemory.NewTable([]string{"ID", "Fecha", "Descripción", "Monto Total"})
	tbl.Canon = domain.CanonicalDebtColumn
	tbl.Seed(
		[]string{"DEBT-2", "2025-01-02", "Fridge, big", "300"},
		[]string{},
		[]string{"DEBT-1", "2025-01-01", "TV", "100"},
	)
	return tbl
}

func TestSnapshot(t *testing.T) {
	s := &mockStorage{}
	b := newTestBackup(s)

	snap, err := b.Snapshot(context.Background(), Table{
		Name:   "debts",
		Header: []string{"ID", "Date", "Description", "TotalAmount"},
		Store:  debtTable(),
	})
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	wantURI := "gs://ledger-backups/backups/debts/20250102T030405Z.csv"
	if snap.URI != wantURI || snap.Rows != 2 {
		t.Errorf("Snapshot = %+v, want %s with 2 rows", snap, wantURI)
	}

	got := string(s.objects[wantURI])
	want := "ID,Date,Description,TotalAmount\nDEBT-2,2025-01-02,\"Fridge, big\",300\nDEBT-1,2025-01-01,TV,100\n"
	if got != want {
		t.Errorf("csv =\n%s\nwant\n%s", got, want)
	}

	if err := b.Verify(context.Background(), snap); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	snap.Rows = 5
	if err := b.Verify(context.Background(), snap); err == nil {
		t.Error("Verify should fail on a row count mismatch")
	}
}

func TestTables_StopsAtFirstFailure(t *testing.T) {
	broken := inmemory.NewTable(domain.TransactionHeader)
	broken.ReadErr = errors.New("503")
	s := &mockStorage{}
	b := newTestBackup(s)

	snaps, err := b.Tables(context.Background(),
		Table{Name: "debts", Header: domain.DebtHeader, Store: debtTable()},
		Table{Name: "transactions", Header: domain.TransactionHeader, Store: broken},
	)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
	if len(snaps) != 1 || !strings.HasSuffix(snaps[0].URI, ".csv") {
		t.Errorf("snaps = %+v", snaps)
	}
}

func TestSnapshot_Errors(t *testing.T) {
	b := New(&mockStorage{}, "", zerolog.New(io.Discard))
	if _, err := b.Snapshot(context.Background(), Table{Name: "x", Store: debtTable()}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}

	boom := errors.New("permission denied")
	b = newTestBackup(&mockStorage{UploadBytesFunc: func(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
		return boom
	}})
	if _, err := b.Snapshot(context.Background(), Table{Name: "debts", Header: domain.DebtHeader, Store: debtTable()}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want upload error", err)
	}
}

func TestList(t *testing.T) {
	s := &mockStorage{objects: map[string][]byte{
		"gs://ledger-backups/backups/debts/20250101T000000Z.csv":        []byte("a"),
		"gs://ledger-backups/backups/debts/20250103T000000Z.csv":        []byte("abc"),
		"gs://ledger-backups/backups/debts/notes.txt":                   []byte("x"),
		"gs://ledger-backups/backups/transactions/20250104T000000Z.csv": []byte("t"),
	}}
	b := newTestBackup(s)

	got, err := b.List(context.Background(), "debts")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d snapshots, want 2: %+v", len(got), got)
	}
	if got[0].URI != "gs://ledger-backups/backups/debts/20250103T000000Z.csv" || got[0].Size != 3 {
		t.Errorf("newest = %+v", got[0])
	}
	if !got[0].Taken.Equal(time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Taken = %v", got[0].Taken)
	}

	if _, err := New(s, "", zerolog.Nop()).List(context.Background(), "debts"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("List without bucket error = %v, want ErrInvalidInput", err)
	}
}

func TestParseGCSURI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{uri: "gs://b/backups/debts/x.csv", bucket: "b", object: "backups/debts/x.csv"},
		{uri: "gs://b", wantErr: true},
		{uri: "s3://b/x", wantErr: true},
	}
	for _, tt := range tests {
		bucket, object, err := gcsuploader.ParseGCSURI(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGCSURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if bucket != tt.bucket || object != tt.object {
			t.Errorf("ParseGCSURI(%q) = %q, %q", tt.uri, bucket, object)
		}
	}
}
