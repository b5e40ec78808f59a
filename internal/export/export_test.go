package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/store"
)

func seededStore(t *testing.T) store.Gateway {
	t.Helper()
	ctx := context.Background()
	g, err := store.NewSQLite(filepath.Join(t.TempDir(), "export.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	require.NoError(t, g.Migrate(ctx))

	released := time.Date(2008, 7, 16, 0, 0, 0, 0, time.UTC)
	_, err = store.SaveMovies(ctx, g, []model.Movie{
		{TMDBID: 155, IMDbID: "tt0468569", Title: "The Dark Knight", ReleaseDate: &released, Frozen: true},
		{TMDBID: 27205, Title: "Inception"},
	})
	require.NoError(t, err)

	_, err = g.Upsert(ctx, model.TMDBTable, []store.Row{{
		"tmdb_id":      int64(155),
		"imdb_id":      "tt0468569",
		"title":        "The Dark Knight",
		"genres":       "Drama, Action, Crime, Thriller",
		"runtime":      int64(152),
		"vote_average": 8.5,
		"vote_count":   int64(33000),
	}}, []string{"tmdb_id"})
	require.NoError(t, err)

	_, err = g.Upsert(ctx, model.OMDBTable, []store.Row{{
		"imdb_id":                "tt0468569",
		"imdb_rating":            9.0,
		"imdb_votes":             int64(2900000),
		"metascore":              int64(84),
		"rotten_tomatoes_rating": int64(94),
		"box_office":             int64(534987076),
	}}, []string{"imdb_id"})
	require.NoError(t, err)
	return g
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("parquet")
	assert.Error(t, err)
}

func TestRows_JoinsDetails(t *testing.T) {
	g := seededStore(t)

	rows, err := Rows(context.Background(), g)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	knight := rows[0]
	assert.Equal(t, "The Dark Knight", knight.String("title"))
	assert.Equal(t, true, knight["frozen"])
	assert.Equal(t, "Drama, Action, Crime, Thriller", knight.String("genres"))
	assert.Equal(t, "94", text(knight["rotten_tomatoes_rating"]))

	inception := rows[1]
	assert.Equal(t, false, inception["frozen"])
	assert.Nil(t, inception["imdb_rating"])
	assert.Nil(t, inception["genres"])
}

func TestWrite_CSV(t *testing.T) {
	g := seededStore(t)
	rows, err := Rows(context.Background(), g)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Columns, records[0])

	byCol := func(rec []string, col string) string {
		for i, c := range Columns {
			if c == col {
				return rec[i]
			}
		}
		t.Fatalf("unknown column %s", col)
		return ""
	}
	assert.Equal(t, "155", byCol(records[1], "tmdb_id"))
	assert.Equal(t, "2008-07-16", byCol(records[1], "release_date"))
	assert.Equal(t, "true", byCol(records[1], "frozen"))
	assert.Equal(t, "8.5", byCol(records[1], "vote_average"))
	assert.Equal(t, "534987076", byCol(records[1], "box_office"))
	assert.Equal(t, "", byCol(records[2], "imdb_id"))
	assert.Equal(t, "", byCol(records[2], "release_date"))
}

func TestWrite_XLSX(t *testing.T) {
	g := seededStore(t)
	rows, err := Rows(context.Background(), g)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, rows))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "tmdb_id", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "155", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "The Dark Knight", sheet.Rows[1].Cells[2].String())

	n, err := sheet.Rows[1].Cells[0].Int()
	require.NoError(t, err)
	assert.Equal(t, 155, n)
}

func TestWrite_EmptyCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, nil))
	assert.Equal(t, len(Columns)-1, bytes.Count(buf.Bytes(), []byte(",")))
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, Format("json"), nil))
}

func TestText(t *testing.T) {
	assert.Equal(t, "", text(nil))
	assert.Equal(t, "x", text([]byte("x")))
	assert.Equal(t, "2025-06-15", text(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-06-15T12:30:00Z", text(time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC)))
	assert.Equal(t, "0.25", text(0.25))
	assert.Equal(t, "7", text(int32(7)))
}
