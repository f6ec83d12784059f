package database

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"time"
)

// migrationFile matches <YYYYMMDD_HHMMSS>_<name>.<up|down>.sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one forward schema step read from an *.up.sql file.
type Migration struct {
	Version string // 20260601_090000
	Name    string // connection_events
	UpSQL   string
}

// MigrationRecord is a row of schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
)`

// Migrate brings the schema up to date with the up migrations in fsys.
// Versions already in schema_migrations are skipped. Each pending migration
// commits on its own, so a failure leaves every earlier version applied.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	if _, err := db.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	all, err := LoadMigrations(fsys)
	if err != nil {
		return err
	}

	done, err := db.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	applied := make(map[string]struct{}, len(done))
	for _, r := range done {
		applied[r.Version] = struct{}{}
	}

	for _, m := range all {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if err := db.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (db *DB) apply(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.Version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// AppliedMigrations lists schema_migrations in version order.
func (db *DB) AppliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var (
			rec MigrationRecord
			at  string
		)
		if err := rows.Scan(&rec.Version, &at); err != nil {
			return nil, fmt.Errorf("listing applied migrations: %w", err)
		}
		rec.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by apply
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadMigrations returns the up migrations at the root of fsys, oldest first.
// Down files and anything not matching the naming scheme are ignored.
// A nil fsys yields no migrations.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	var out []Migration
	for _, name := range names {
		m, up, ok := parseMigrationFile(name)
		if !ok || !up {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		m.UpSQL = string(body)
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationFile splits a migration filename into version and name.
// up reports whether it is a forward migration.
func parseMigrationFile(filename string) (m Migration, up bool, ok bool) {
	parts := migrationFile.FindStringSubmatch(filename)
	if parts == nil {
		return Migration{}, false, false
	}
	return Migration{Version: parts[1], Name: parts[2]}, parts[3] == "up", true
}
