package store

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationFS embed.FS

const migrationTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL
)`

// runMigrations applies every migrations/<dialect>/*.sql file not yet
// recorded in schema_migrations, in filename order.
func runMigrations(ctx context.Context, g Gateway, dialect string) error {
	log := zap.L().With(zap.String("component", "store.migrate"), zap.String("dialect", dialect))

	if _, err := g.Exec(ctx, migrationTable); err != nil {
		return eris.Wrap(err, "store: ensure migration table")
	}

	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return eris.Wrapf(err, "store: read migration dir %s", dir)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	rows, err := g.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return eris.Wrap(err, "store: query applied migrations")
	}
	applied := make(map[string]bool, len(rows))
	for _, r := range rows {
		applied[r.String("filename")] = true
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile(dir + "/" + name)
		if err != nil {
			return eris.Wrapf(err, "store: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := g.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "store: apply migration %s", name)
		}
		if _, err := g.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)",
			name, time.Now().UTC().Truncate(time.Second),
		); err != nil {
			return eris.Wrapf(err, "store: record migration %s", name)
		}
	}
	return nil
}
