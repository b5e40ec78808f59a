package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/db"
)

// PostgresGateway implements Gateway using pgxpool.
type PostgresGateway struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// migrationLockID serializes concurrent migration runs.
const migrationLockID = 7305661

// NewPostgres creates a PostgresGateway with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresGateway, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresGateway{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (g *PostgresGateway) Pool() db.Pool {
	return g.pool
}

func (g *PostgresGateway) Dialect() Dialect { return DialectPostgres }

func (g *PostgresGateway) Close() error {
	if g.closeFn != nil {
		g.closeFn()
	}
	return nil
}

func (g *PostgresGateway) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := g.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query")
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[f.Name] = vals[i]
		}
		out = append(out, row)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rows")
}

func (g *PostgresGateway) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	tag, err := g.pool.Exec(ctx, rebind(stmt), args...)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: exec")
	}
	return tag.RowsAffected(), nil
}

// Upsert replaces matching rows through a COPY-loaded temp table.
func (g *PostgresGateway) Upsert(ctx context.Context, table string, rows []Row, keys []string) (int64, error) {
	b, err := newBatch(table, rows, keys)
	if err != nil || b == nil {
		return 0, err
	}
	n, err := db.ReplaceRows(ctx, g.pool, db.ReplaceConfig{
		Table:   table,
		Columns: b.columns,
		Keys:    b.keys,
	}, b.values)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert %s", table)
	}
	return n, nil
}

func (g *PostgresGateway) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	if err := g.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists); err != nil {
		return false, eris.Wrapf(err, "postgres: table exists %s", table)
	}
	return exists, nil
}

// Migrate applies pending migrations under an advisory lock.
func (g *PostgresGateway) Migrate(ctx context.Context) error {
	if _, err := g.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := g.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			zap.L().Warn("postgres: failed to release migration lock", zap.Error(err))
		}
	}()
	return runMigrations(ctx, g, string(DialectPostgres))
}

