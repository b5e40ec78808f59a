package store

import (
	"database/sql"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rotisserie/eris"
)

// Extension autoloading can hang in restricted networks; the store needs no
// extensions.
const duckdbOptions = "autoinstall_known_extensions=false&autoload_known_extensions=false"

// NewDuckDB opens a DuckDB database file, or an in-memory database for
// ":memory:".
func NewDuckDB(dsn string) (*SQLGateway, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("duckdb", dsn+sep+duckdbOptions)
	if err != nil {
		return nil, eris.Wrap(err, "duckdb: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "duckdb: ping")
	}
	return &SQLGateway{db: db, dialect: DialectDuckDB}, nil
}
