// Package backup writes CSV snapshots of the spreadsheet tables to Cloud Storage.
package backup

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/gcs"
	"github.com/dvloznov/finance-ledger/internal/gcsuploader"
	"github.com/dvloznov/finance-ledger/internal/tabular"
	"github.com/rs/zerolog"
)

// Table is one worksheet to back up.
type Table struct {
	Name   string
	Header []string
	Store  tabular.Store
}

// Snapshot is one uploaded backup.
type Snapshot struct {
	Table string `json:"table"`
	URI   string `json:"uri"`
	Rows  int    `json:"rows"`
}

const stampLayout = "20060102T150405Z"

func prefix(table string) string {
	return "backups/" + table + "/"
}

// Backup uploads snapshots to one bucket under backups/<table>/<timestamp>.csv.
type Backup struct {
	storage gcs.StorageService
	bucket  string
	now     func() time.Time
	log     zerolog.Logger
}

// New creates a Backup.
func New(storage gcs.StorageService, bucket string, log zerolog.Logger) *Backup {
	return &Backup{
		storage: storage,
		bucket:  bucket,
		now:     time.Now,
		log:     log.With().Str("component", "backup").Logger(),
	}
}

// Tables snapshots every table, stopping at the first failure.
func (b *Backup) Tables(ctx context.Context, tables ...Table) ([]Snapshot, error) {
	out := make([]Snapshot, 0, len(tables))
	for _, t := range tables {
		s, err := b.Snapshot(ctx, t)
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Snapshot writes the table's current rows, blank rows dropped, under its canonical header.
func (b *Backup) Snapshot(ctx context.Context, t Table) (Snapshot, error) {
	if b.bucket == "" {
		return Snapshot{}, fmt.Errorf("Snapshot: no bucket configured: %w", domain.ErrInvalidInput)
	}
	rows, err := t.Store.ReadAllRows(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("Snapshot: reading %s: %w: %w", t.Name, domain.ErrStoreUnavailable, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return Snapshot{}, fmt.Errorf("Snapshot: writing header: %w", err)
	}
	n := 0
	for _, r := range rows {
		if len(r) == 0 {
			continue
		}
		record := make([]string, len(t.Header))
		for i, h := range t.Header {
			record[i] = r[h]
		}
		if err := w.Write(record); err != nil {
			return Snapshot{}, fmt.Errorf("Snapshot: writing row: %w", err)
		}
		n++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return Snapshot{}, fmt.Errorf("Snapshot: flushing csv: %w", err)
	}

	object := prefix(t.Name) + b.now().UTC().Format(stampLayout) + ".csv"
	if err := b.storage.UploadBytes(ctx, b.bucket, object, buf.Bytes(), "text/csv"); err != nil {
		return Snapshot{}, fmt.Errorf("Snapshot: uploading %s: %w", object, err)
	}

	s := Snapshot{Table: t.Name, URI: gcsuploader.URI(b.bucket, object), Rows: n}
	b.log.Info().Str("table", t.Name).Str("uri", s.URI).Int("rows", n).Msg("backup uploaded")
	return s, nil
}

// Read downloads a snapshot and returns its records, header first.
func (b *Backup) Read(ctx context.Context, uri string) ([][]string, error) {
	data, err := b.storage.FetchFromGCS(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("Read: %w", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("Read: parsing csv: %w", err)
	}
	return records, nil
}

// Verify re-reads a snapshot and checks it holds the expected number of data rows.
func (b *Backup) Verify(ctx context.Context, s Snapshot) error {
	records, err := b.Read(ctx, s.URI)
	if err != nil {
		return fmt.Errorf("Verify: %w", err)
	}
	if len(records) == 0 || len(records)-1 != s.Rows {
		return fmt.Errorf("Verify: %s has %d records, want %d rows plus header", s.URI, len(records), s.Rows)
	}
	return nil
}

// Stored is a snapshot found in the bucket.
type Stored struct {
	Table string    `json:"table"`
	URI   string    `json:"uri"`
	Taken time.Time `json:"taken"`
	Size  int64     `json:"size"`
}

// List returns the stored snapshots of a table, newest first. Objects whose name
// is not a snapshot timestamp are ignored.
func (b *Backup) List(ctx context.Context, table string) ([]Stored, error) {
	if b.bucket == "" {
		return nil, fmt.Errorf("List: no bucket configured: %w", domain.ErrInvalidInput)
	}
	objects, err := b.storage.ListObjects(ctx, b.bucket, prefix(table))
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	var out []Stored
	for _, o := range objects {
		name := strings.TrimSuffix(strings.TrimPrefix(o.Name, prefix(table)), ".csv")
		taken, err := time.Parse(stampLayout, name)
		if err != nil {
			continue
		}
		out = append(out, Stored{Table: table, URI: gcsuploader.URI(b.bucket, o.Name), Taken: taken, Size: o.Size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Taken.After(out[j].Taken) })
	return out, nil
}
