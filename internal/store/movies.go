package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/moviesync/internal/model"
)

// idChunk bounds the number of ids bound into one IN list.
const idChunk = 500

// MovieKeys is the upsert key of the movies table.
var MovieKeys = []string{"tmdb_id"}

// SelectMovies runs a query returning movies rows and decodes them.
func SelectMovies(ctx context.Context, g Gateway, query string, args ...any) ([]model.Movie, error) {
	rows, err := g.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "store: select %s", model.MoviesTable)
	}
	out := make([]model.Movie, 0, len(rows))
	for _, r := range rows {
		m, err := model.MovieFromRow(r)
		if err != nil {
			return nil, eris.Wrapf(err, "store: decode %s row", model.MoviesTable)
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadMovies returns the stored movies among ids, keyed by tmdb_id. Unknown
// ids are absent from the result.
func LoadMovies(ctx context.Context, g Gateway, ids []int64) (map[int64]model.Movie, error) {
	out := make(map[int64]model.Movie, len(ids))
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		q := "SELECT " + strings.Join(model.MovieColumns, ", ") +
			" FROM " + model.MoviesTable +
			" WHERE tmdb_id IN (" + placeholders(len(chunk)) + ")"

		movies, err := SelectMovies(ctx, g, q, args...)
		if err != nil {
			return nil, err
		}
		for _, m := range movies {
			out[m.TMDBID] = m
		}
	}
	return out, nil
}

// SaveMovies writes complete movies rows keyed by tmdb_id.
func SaveMovies(ctx context.Context, g Gateway, movies []model.Movie) (int64, error) {
	if len(movies) == 0 {
		return 0, nil
	}
	rows := make([]Row, len(movies))
	for i, m := range movies {
		rows[i] = m.Row()
	}
	n, err := g.Upsert(ctx, model.MoviesTable, rows, MovieKeys)
	if err != nil {
		return 0, eris.Wrapf(err, "store: save %s", model.MoviesTable)
	}
	return n, nil
}

// SetFrozen sets the frozen flag on the given movies and returns the number
// of rows changed. This is the only path that clears the flag.
func SetFrozen(ctx context.Context, g Gateway, ids []int64, frozen bool) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += idChunk {
		end := min(start+idChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, frozen)
		for _, id := range chunk {
			args = append(args, id)
		}
		n, err := g.Exec(ctx,
			"UPDATE "+model.MoviesTable+" SET frozen = ? WHERE tmdb_id IN ("+placeholders(len(chunk))+")",
			args...,
		)
		if err != nil {
			return total, eris.Wrapf(err, "store: set frozen on %s", model.MoviesTable)
		}
		total += n
	}
	return total, nil
}

// MovieCounts is a snapshot of the movies table.
type MovieCounts struct {
	Total          int64 `json:"total"`
	Frozen         int64 `json:"frozen"`
	WithIMDbID     int64 `json:"with_imdb_id"`
	NeverRefreshed int64 `json:"never_refreshed"`
}

// CountMovies returns table-level counts of the movies table.
func CountMovies(ctx context.Context, g Gateway) (MovieCounts, error) {
	rows, err := g.Query(ctx, `SELECT
		count(*) AS total,
		count(*) FILTER (WHERE frozen) AS frozen,
		count(imdb_id) AS with_imdb_id,
		count(*) FILTER (WHERE last_full_refresh IS NULL) AS never_refreshed
		FROM `+model.MoviesTable)
	if err != nil {
		return MovieCounts{}, eris.Wrapf(err, "store: count %s", model.MoviesTable)
	}
	var c MovieCounts
	if len(rows) == 0 {
		return c, nil
	}
	r := rows[0]
	for col, dst := range map[string]*int64{
		"total":           &c.Total,
		"frozen":          &c.Frozen,
		"with_imdb_id":    &c.WithIMDbID,
		"never_refreshed": &c.NeverRefreshed,
	} {
		if *dst, err = model.Int64(r[col]); err != nil {
			return MovieCounts{}, eris.Wrapf(err, "store: count %s %s", model.MoviesTable, col)
		}
	}
	return c, nil
}

// MovieIDsByIMDbID returns the tmdb_id currently holding each of the given
// IMDb ids. Unassigned ids are absent.
func MovieIDsByIMDbID(ctx context.Context, g Gateway, imdbIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(imdbIDs))
	for start := 0; start < len(imdbIDs); start += idChunk {
		end := min(start+idChunk, len(imdbIDs))
		chunk := imdbIDs[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := g.Query(ctx,
			"SELECT tmdb_id, imdb_id FROM "+model.MoviesTable+" WHERE imdb_id IN ("+placeholders(len(chunk))+")",
			args...,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "store: imdb id holders in %s", model.MoviesTable)
		}
		for _, r := range rows {
			id, err := model.Int64(r["tmdb_id"])
			if err != nil {
				return nil, eris.Wrapf(err, "store: imdb id holders in %s", model.MoviesTable)
			}
			out[r.String("imdb_id")] = id
		}
	}
	return out, nil
}
