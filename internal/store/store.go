// Package store is the read/write path to the analytical store: row queries,
// statements, and an idempotent replace-by-key bulk upsert, over Postgres,
// SQLite or DuckDB.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/moviesync/internal/model"
)

// Row is one result or input row keyed by column name.
type Row = model.Record

// Dialect names a supported storage engine.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
)

// Gateway defines the storage capabilities used by the collector. Statements
// use "?" placeholders on every dialect.
type Gateway interface {
	// Query runs a read statement and returns all rows.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, stmt string, args ...any) (int64, error)
	// Upsert replaces every row of table whose key matches an incoming row
	// and inserts the rest, atomically. Columns absent from the batch are
	// not carried over from replaced rows. An empty batch is a no-op.
	Upsert(ctx context.Context, table string, rows []Row, keys []string) (int64, error)
	// TableExists reports whether table exists.
	TableExists(ctx context.Context, table string) (bool, error)
	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error
	// Dialect reports the storage engine.
	Dialect() Dialect
	Close() error
}

// Open connects to the store named by driver.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Gateway, error) {
	if dsn == "" {
		return nil, eris.Errorf("store: %s: empty database url", driver)
	}
	switch Dialect(strings.ToLower(driver)) {
	case DialectPostgres, "postgresql", "pgx":
		return NewPostgres(ctx, dsn, poolCfg)
	case DialectSQLite:
		return NewSQLite(dsn)
	case DialectDuckDB:
		return NewDuckDB(dsn)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}

// quoteIdent quotes a table or column name.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
