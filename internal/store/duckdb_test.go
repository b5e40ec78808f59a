package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/moviesync/internal/model"
)

func newTestDuckDB(t *testing.T) *SQLGateway {
	t.Helper()
	g, err := NewDuckDB(filepath.Join(t.TempDir(), "test.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	require.NoError(t, g.Migrate(context.Background()))
	return g
}

func TestDuckDB_MigrateAndTables(t *testing.T) {
	g := newTestDuckDB(t)
	ctx := context.Background()

	assert.Equal(t, DialectDuckDB, g.Dialect())
	require.NoError(t, g.Migrate(ctx))

	ok, err := g.TableExists(ctx, model.OMDBTable)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDuckDB_UpsertReplaceSemantics(t *testing.T) {
	g := newTestDuckDB(t)
	ctx := context.Background()

	_, err := g.Upsert(ctx, model.OMDBTable, []Row{
		{"imdb_id": "tt0468569", "title": "The Dark Knight", "metascore": int64(84)},
	}, []string{"imdb_id"})
	require.NoError(t, err)

	rows := []Row{{"imdb_id": "tt0468569", "title": "The Dark Knight"}}
	for i := 0; i < 2; i++ {
		_, err = g.Upsert(ctx, model.OMDBTable, rows, []string{"imdb_id"})
		require.NoError(t, err)
	}

	got, err := g.Query(ctx, "SELECT imdb_id, title, metascore FROM omdb_movies")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "The Dark Knight", got[0].String("title"))
	assert.Nil(t, got[0]["metascore"])
}

func TestDuckDB_MoviesRoundTrip(t *testing.T) {
	g := newTestDuckDB(t)
	ctx := context.Background()

	_, err := SaveMovies(ctx, g, []model.Movie{{TMDBID: 603, Title: "The Matrix", ReleaseDate: ptr(stamp)}})
	require.NoError(t, err)

	got, err := LoadMovies(ctx, g, []int64{603})
	require.NoError(t, err)
	require.Contains(t, got, int64(603))
	assert.True(t, got[603].ReleaseDate.Equal(stamp))

	c, err := CountMovies(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Total)
	assert.Equal(t, int64(1), c.NeverRefreshed)
}
