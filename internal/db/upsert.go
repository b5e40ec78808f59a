package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig defines the parameters for a bulk replace.
type ReplaceConfig struct {
	Table   string   // target table (e.g., "tmdb_movies")
	Columns []string // all columns being written, in row order
	Keys    []string // columns identifying a row
}

// ReplaceRows deletes every row of the target whose key matches an incoming
// row, then inserts all incoming rows, in one transaction:
//  1. Creates a temp table like the target
//  2. COPY rows into the temp table
//  3. DELETE FROM target USING temp on the key columns
//  4. INSERT INTO target SELECT ... FROM temp
//
// Columns not listed in cfg.Columns take their defaults on the new rows.
// Rows must already be unique by key.
func ReplaceRows(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}
	if len(cfg.Keys) == 0 {
		return 0, eris.New("db: replace: no key columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: begin tx", cfg.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tempTable := fmt.Sprintf("_tmp_replace_%s", strings.ReplaceAll(cfg.Table, ".", "_"))
	temp := pgx.Identifier{tempTable}.Sanitize()
	target := sanitizeTable(cfg.Table)

	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", temp, target)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: create temp table", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: COPY into temp table", cfg.Table)
	}

	match := make([]string, len(cfg.Keys))
	for i, k := range cfg.Keys {
		col := pgx.Identifier{k}.Sanitize()
		match[i] = fmt.Sprintf("t.%s = s.%s", col, col)
	}
	deleteSQL := fmt.Sprintf("DELETE FROM %s AS t USING %s AS s WHERE %s", target, temp, strings.Join(match, " AND "))
	if _, err := tx.Exec(ctx, deleteSQL); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: delete matching keys", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", target, colList, colList, temp)
	tag, err := tx.Exec(ctx, insertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: insert rows", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: replace %s: commit tx", cfg.Table)
	}

	return tag.RowsAffected(), nil
}

// sanitizeTable handles schema-qualified table names like "public.movies".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
