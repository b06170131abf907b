package repository

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/stocktake/db/migrations"
)

const migrationsTable = "schema_migrations"

// Migrate applies the embedded schema files that have not run yet, in name order.
func (db *DB) Migrate(ctx context.Context) error {
	return db.migrate(ctx, migrations.FS)
}

func (db *DB) migrate(ctx context.Context, fsys fs.FS) error {
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (version TEXT PRIMARY KEY, applied_at TIMESTAMP NOT NULL)", migrationsTable)
	if err := db.drv.Exec(ctx, create, []any{}, nil); err != nil {
		return fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	applied := map[string]bool{}
	sel := db.builder().Select("version").From(entsql.Table(migrationsTable))
	if err := db.query(ctx, sel, func(rows *entsql.Rows) error {
		var v string
		if err := rows.Scan(&v); err != nil {
			return err
		}
		applied[v] = true
		return nil
	}); err != nil {
		return fmt.Errorf("read %s: %w", migrationsTable, err)
	}

	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		if applied[name] {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		for _, stmt := range splitStatements(string(body)) {
			if err := db.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
				return fmt.Errorf("migration %s: %w", name, err)
			}
		}
		ins := db.builder().Insert(migrationsTable).
			Columns("version", "applied_at").
			Values(name, time.Now().UTC())
		if _, err := db.exec(ctx, ins); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		db.log.Info("applied migration", "version", name)
	}
	return nil
}

// splitStatements splits a file on ';' and drops comment lines.
func splitStatements(body string) []string {
	var out []string
	for _, chunk := range strings.Split(body, ";") {
		var lines []string
		for _, ln := range strings.Split(chunk, "\n") {
			if t := strings.TrimSpace(ln); t == "" || strings.HasPrefix(t, "--") {
				continue
			}
			lines = append(lines, ln)
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}
