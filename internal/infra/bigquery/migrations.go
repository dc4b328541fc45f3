package bigquery

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"google.golang.org/api/iterator"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the schema migrations shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const migrationsTable = "schema_migrations"

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration is a single schema migration file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// MigrationResult counts what Migrate did.
type MigrationResult struct {
	Found   int
	Applied int
	Skipped int
}

// ReadMigrations reads every NNNN_name.sql file in fsys, sorted by version, with
// {{PROJECT_ID}} and {{DATASET_ID}} replaced. Files with other names are skipped.
// The checksum is taken before placeholder replacement so it does not depend on the target.
func ReadMigrations(fsys fs.FS, projectID, datasetID string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("ReadMigrations: reading directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, _ := strconv.Atoi(m[1])
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("ReadMigrations: version %04d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("ReadMigrations: reading %s: %w", e.Name(), err)
		}
		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Filename: e.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies every migration in fsys that schema_migrations does not list yet.
// It stops at the first failure; migrations applied before it stay recorded.
func (r *BigQuerySnapshotRepository) Migrate(ctx context.Context, fsys fs.FS, appliedBy string) (MigrationResult, error) {
	return MigrateWithClient(ctx, r.dataset(), fsys, appliedBy)
}

// MigrateWithClient is Migrate over an explicit dataset.
func MigrateWithClient(ctx context.Context, d dataset, fsys fs.FS, appliedBy string) (MigrationResult, error) {
	log := logger.FromContext(ctx)

	migrations, err := ReadMigrations(fsys, d.projectID, d.datasetID)
	if err != nil {
		return MigrationResult{}, fmt.Errorf("Migrate: %w", err)
	}
	res := MigrationResult{Found: len(migrations)}

	if err := runDML(ctx, d.client.Query(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, d.ref(migrationsTable)))); err != nil {
		return res, fmt.Errorf("Migrate: ensuring %s: %w", migrationsTable, err)
	}

	applied, err := appliedMigrations(ctx, d)
	if err != nil {
		return res, fmt.Errorf("Migrate: %w", err)
	}

	for _, m := range migrations {
		if checksum, ok := applied[m.Version]; ok {
			if checksum != "" && checksum != m.Checksum {
				log.Warn().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration changed since it ran")
			}
			res.Skipped++
			continue
		}

		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")
		if err := runDML(ctx, d.client.Query(m.SQL)); err != nil {
			return res, fmt.Errorf("Migrate: %04d_%s: %w", m.Version, m.Name, err)
		}

		q := d.client.Query(fmt.Sprintf(`
			INSERT INTO %s
			(version, name, applied_at, checksum, applied_by)
			VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
		`, d.ref(migrationsTable)))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "version", Value: m.Version},
			{Name: "name", Value: m.Name},
			{Name: "checksum", Value: m.Checksum},
			{Name: "applied_by", Value: appliedBy},
		}
		if err := runDML(ctx, q); err != nil {
			return res, fmt.Errorf("Migrate: recording %04d_%s: %w", m.Version, m.Name, err)
		}
		res.Applied++
	}
	return res, nil
}

// appliedMigrations maps applied versions to their recorded checksum.
func appliedMigrations(ctx context.Context, d dataset) (map[int]string, error) {
	it, err := d.client.Query(fmt.Sprintf(`
		SELECT version, checksum
		FROM %s
		ORDER BY version ASC
	`, d.ref(migrationsTable))).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	applied := make(map[int]string)
	for {
		var row struct {
			Version  int64               `bigquery:"version"`
			Checksum bigquery.NullString `bigquery:"checksum"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}
		applied[int(row.Version)] = row.Checksum.StringVal
	}
	return applied, nil
}
