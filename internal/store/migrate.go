package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var migrationFile = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one numbered schema change with its up and down scripts.
type Migration struct {
	Version string // "0003_project_intakes"
	Up      string
	Down    string
}

// LoadMigrations pairs the NNNN_name.{up,down}.sql files in dir, ordered by
// number. Files that do not follow the naming scheme are ignored.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byNumber := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFile.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		number, version := match[1], match[1]+"_"+match[2]
		m, ok := byNumber[number]
		if !ok {
			m = &Migration{Version: version}
			byNumber[number] = m
		} else if m.Version != version {
			return nil, fmt.Errorf("migration %s: conflicting names %s and %s", number, m.Version, version)
		}

		path := filepath.Join(dir, entry.Name())
		target := &m.Up
		if match[3] == "down" {
			target = &m.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("migration %s: duplicate %s file", version, match[3])
		}
		*target = path
	}

	migrations := make([]Migration, 0, len(byNumber))
	for _, m := range byNumber {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s: needs both up and down files", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// ApplyMigrations runs every pending up script, each in its own transaction,
// and returns the versions it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, dir string) ([]string, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		err := runScript(ctx, db, m.Up, `INSERT INTO schema_migrations(version) VALUES($1)`, m.Version)
		if err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		ran = append(ran, m.Version)
	}
	return ran, nil
}

// RollbackMigrations reverts up to steps applied migrations, newest first.
// A steps value below one reverts everything.
func RollbackMigrations(ctx context.Context, db *sql.DB, dir string, steps int) ([]string, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}

	var reverted []string
	for i := len(migrations) - 1; i >= 0; i-- {
		if steps > 0 && len(reverted) == steps {
			break
		}
		m := migrations[i]
		if !applied[m.Version] {
			continue
		}
		err := runScript(ctx, db, m.Down, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
		if err != nil {
			return reverted, fmt.Errorf("revert migration %s: %w", m.Version, err)
		}
		reverted = append(reverted, m.Version)
	}
	return reverted, nil
}

func runScript(ctx context.Context, db *sql.DB, path, bookkeeping, version string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if script := strings.TrimSpace(string(contents)); script != "" {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("execute script: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("update schema_migrations: %w", err)
	}
	return tx.Commit()
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
