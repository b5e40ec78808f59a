package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLGateway implements Gateway over database/sql for the embedded engines
// (SQLite and DuckDB).
type SQLGateway struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLGateway, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLGateway{db: db, dialect: DialectSQLite}, nil
}

// DB returns the underlying handle.
func (g *SQLGateway) DB() *sql.DB { return g.db }

func (g *SQLGateway) Dialect() Dialect { return g.dialect }

func (g *SQLGateway) Close() error { return g.db.Close() }

func (g *SQLGateway) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: query", g.dialect)
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrapf(err, "%s: query columns", g.dialect)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "%s: scan row", g.dialect)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, eris.Wrapf(rows.Err(), "%s: iterate rows", g.dialect)
}

func (g *SQLGateway) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	res, err := g.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "%s: exec", g.dialect)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some statements (DDL) do not report affected rows.
		return 0, nil
	}
	return n, nil
}

// Upsert deletes each incoming key and inserts the row, all in one
// transaction.
func (g *SQLGateway) Upsert(ctx context.Context, table string, rows []Row, keys []string) (int64, error) {
	b, err := newBatch(table, rows, keys)
	if err != nil || b == nil {
		return 0, err
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "%s: upsert %s: begin tx", g.dialect, table)
	}
	defer tx.Rollback() //nolint:errcheck

	match := make([]string, len(b.keys))
	for i, k := range b.keys {
		match[i] = quoteIdent(k) + " = ?"
	}
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(table), strings.Join(match, " AND "))
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), quoteAll(b.columns), placeholders(len(b.columns)))

	del, err := tx.PrepareContext(ctx, deleteSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "%s: upsert %s: prepare delete", g.dialect, table)
	}
	defer del.Close() //nolint:errcheck

	ins, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "%s: upsert %s: prepare insert", g.dialect, table)
	}
	defer ins.Close() //nolint:errcheck

	for i, vals := range b.values {
		if _, err := del.ExecContext(ctx, b.keyValues(i)...); err != nil {
			return 0, eris.Wrapf(err, "%s: upsert %s: delete row %d", g.dialect, table, i)
		}
		if _, err := ins.ExecContext(ctx, vals...); err != nil {
			return 0, eris.Wrapf(err, "%s: upsert %s: insert row %d", g.dialect, table, i)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "%s: upsert %s: commit tx", g.dialect, table)
	}
	return int64(len(b.values)), nil
}

func (g *SQLGateway) TableExists(ctx context.Context, table string) (bool, error) {
	q := "SELECT count(*) AS n FROM sqlite_master WHERE type = 'table' AND name = ?"
	if g.dialect == DialectDuckDB {
		q = "SELECT count(*) AS n FROM information_schema.tables WHERE table_name = ?"
	}
	var n int64
	if err := g.db.QueryRowContext(ctx, q, table).Scan(&n); err != nil {
		return false, eris.Wrapf(err, "%s: table exists %s", g.dialect, table)
	}
	return n > 0, nil
}

func (g *SQLGateway) Migrate(ctx context.Context) error {
	return runMigrations(ctx, g, string(g.dialect))
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
