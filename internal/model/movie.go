// Package model defines the movie entity, detail rows and run log records.
package model

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// Table names.
const (
	MoviesTable = "movies"
	TMDBTable   = "tmdb_movies"
	OMDBTable   = "omdb_movies"
	RunsTable   = "collection_runs"
)

// Movie is the unit of refresh: one entity tracked across both sources.
// The orchestrator owns the timestamp, hash and frozen fields.
type Movie struct {
	TMDBID          int64
	IMDbID          string
	Title           string
	ReleaseDate     *time.Time
	LastTMDBUpdate  *time.Time
	LastOMDBUpdate  *time.Time
	LastFullRefresh *time.Time
	Frozen          bool
	TMDBHash        string
	OMDBHash        string
	UnchangedCycles int
}

// MovieColumns is the full column set of the movies table. Upserts replace
// rows, so every write supplies all of them.
var MovieColumns = []string{
	"tmdb_id",
	"imdb_id",
	"title",
	"release_date",
	"last_tmdb_update",
	"last_omdb_update",
	"last_full_refresh",
	"frozen",
	"tmdb_hash",
	"omdb_hash",
	"unchanged_cycles",
}

// Row converts m to a complete movies row.
func (m Movie) Row() Record {
	return Record{
		"tmdb_id":           m.TMDBID,
		"imdb_id":           nullString(m.IMDbID),
		"title":             m.Title,
		"release_date":      nullTime(m.ReleaseDate),
		"last_tmdb_update":  nullTime(m.LastTMDBUpdate),
		"last_omdb_update":  nullTime(m.LastOMDBUpdate),
		"last_full_refresh": nullTime(m.LastFullRefresh),
		"frozen":            m.Frozen,
		"tmdb_hash":         nullString(m.TMDBHash),
		"omdb_hash":         nullString(m.OMDBHash),
		"unchanged_cycles":  int64(m.UnchangedCycles),
	}
}

// MovieFromRow reads a movies row as returned by the store. Driver-specific
// representations of integers, booleans and timestamps are normalized.
func MovieFromRow(r Record) (Movie, error) {
	id, err := Int64(r["tmdb_id"])
	if err != nil {
		return Movie{}, eris.Wrap(err, "model: tmdb_id")
	}
	if id == 0 {
		return Movie{}, eris.New("model: movie row without tmdb_id")
	}

	m := Movie{
		TMDBID:   id,
		IMDbID:   r.String("imdb_id"),
		Title:    r.String("title"),
		TMDBHash: r.String("tmdb_hash"),
		OMDBHash: r.String("omdb_hash"),
	}

	for col, dst := range map[string]**time.Time{
		"release_date":      &m.ReleaseDate,
		"last_tmdb_update":  &m.LastTMDBUpdate,
		"last_omdb_update":  &m.LastOMDBUpdate,
		"last_full_refresh": &m.LastFullRefresh,
	} {
		ts, err := ParseTimestamp(r[col])
		if err != nil {
			return Movie{}, eris.Wrapf(err, "model: movie %d %s", id, col)
		}
		*dst = ts
	}

	m.Frozen = Bool(r["frozen"])

	cycles, err := Int64(r["unchanged_cycles"])
	if err != nil {
		return Movie{}, eris.Wrapf(err, "model: movie %d unchanged_cycles", id)
	}
	m.UnchangedCycles = int(cycles)
	return m, nil
}

// Int64 converts a driver integer representation to int64. nil is 0.
func Int64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, eris.Errorf("unsupported integer type %T", v)
	}
}

// Bool converts a driver boolean representation. SQLite stores booleans as
// integers.
func Bool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case int32:
		return b != 0
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	default:
		return false
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
