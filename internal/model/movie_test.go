package model

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func TestMovie_RowRoundTrip(t *testing.T) {
	release := time.Date(2008, 7, 16, 0, 0, 0, 0, time.UTC)
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Movie{
		TMDBID:          155,
		IMDbID:          "tt0468569",
		Title:           "The Dark Knight",
		ReleaseDate:     &release,
		LastTMDBUpdate:  &stamp,
		Frozen:          true,
		TMDBHash:        "abc",
		UnchangedCycles: 2,
	}

	row := m.Row()
	assert.Len(t, row, len(MovieColumns))
	for _, col := range MovieColumns {
		_, ok := row[col]
		assert.True(t, ok, "missing column %s", col)
	}
	assert.Nil(t, row["last_omdb_update"])
	assert.Nil(t, row["omdb_hash"])

	got, err := MovieFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMovieFromRow_DriverRepresentations(t *testing.T) {
	row := Record{
		"tmdb_id":           int32(42),
		"imdb_id":           []byte("tt0000042"),
		"title":             "Answer",
		"release_date":      "2020-01-02",
		"last_tmdb_update":  "2024-01-01 10:00:00+00:00",
		"last_omdb_update":  sql.NullTime{},
		"last_full_refresh": nil,
		"frozen":            int64(1),
		"tmdb_hash":         nil,
		"omdb_hash":         nil,
		"unchanged_cycles":  int64(3),
	}

	m, err := MovieFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.TMDBID)
	assert.Equal(t, "tt0000042", m.IMDbID)
	require.NotNil(t, m.ReleaseDate)
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), *m.ReleaseDate)
	require.NotNil(t, m.LastTMDBUpdate)
	assert.Equal(t, 10, m.LastTMDBUpdate.Hour())
	assert.Nil(t, m.LastOMDBUpdate)
	assert.True(t, m.Frozen)
	assert.Equal(t, 3, m.UnchangedCycles)
}

func TestMovieFromRow_Errors(t *testing.T) {
	_, err := MovieFromRow(Record{"title": "no id"})
	assert.Error(t, err)

	_, err = MovieFromRow(Record{"tmdb_id": int64(1), "release_date": "yesterday"})
	assert.Error(t, err)

	_, err = MovieFromRow(Record{"tmdb_id": struct{}{}})
	assert.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		in   any
		want *time.Time
	}{
		{"nil", nil, nil},
		{"empty", "", nil},
		{"zero_time", time.Time{}, nil},
		{"null_time", sql.NullTime{}, nil},
		{"aware_time", want.In(ny), &want},
		{"pointer", ptr(want), &want},
		{"rfc3339", "2024-05-06T07:08:09Z", &want},
		{"rfc3339_offset", "2024-05-06T09:08:09+02:00", &want},
		{"naive_iso", "2024-05-06T07:08:09", &want},
		{"naive_space", "2024-05-06 07:08:09", &want},
		{"bytes", []byte("2024-05-06T07:08:09Z"), &want},
		{"valid_null_time", sql.NullTime{Time: want, Valid: true}, &want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestParseTimestamp_Errors(t *testing.T) {
	_, err := ParseTimestamp("not a date")
	assert.Error(t, err)

	_, err = ParseTimestamp(12345)
	assert.Error(t, err)
}

func TestRecord_HashIgnoresFetchStamp(t *testing.T) {
	a := Record{"tmdb_id": int64(1), "title": "A", FetchedAtColumn: "2024-01-01T00:00:00Z"}
	b := Record{"title": "A", "tmdb_id": int64(1), FetchedAtColumn: "2025-01-01T00:00:00Z"}

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	c := b.Clone()
	c["title"] = "B"
	hc, err := c.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
	assert.Equal(t, "A", b["title"], "clone must not alias")
}

func TestRecord_HashIgnoredColumns(t *testing.T) {
	a := Record{"tmdb_id": int64(1), "popularity": 12.5}
	b := Record{"tmdb_id": int64(1), "popularity": 80.1}

	ha, err := a.Hash("popularity")
	require.NoError(t, err)
	hb, err := b.Hash("popularity")
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	full, err := a.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, full)
}

func TestRun_Duration(t *testing.T) {
	start := time.Now()
	r := Run{StartedAt: start}
	assert.Zero(t, r.Duration())

	done := start.Add(3 * time.Second)
	r.CompletedAt = &done
	assert.Equal(t, 3*time.Second, r.Duration())
}

func TestDate(t *testing.T) {
	in := time.Date(2024, 2, 3, 23, 59, 0, 0, time.FixedZone("x", -3600))
	assert.Equal(t, time.Date(2024, 2, 4, 0, 0, 0, 0, time.UTC), Date(in))
}
