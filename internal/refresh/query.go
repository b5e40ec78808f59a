package refresh

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/moviesync/internal/model"
)

// DueQuery builds the storage prefilter for refresh candidates: up to limit
// non-frozen movies with at least one stale source under p, never fully
// refreshed movies first, then newest release first. Category boundaries and
// staleness cutoffs are computed here and bound as parameters, so the
// statement uses only "?" placeholders and portable SQL.
func (p Policy) DueQuery(now time.Time, limit int) (string, []any) {
	now = now.UTC().Truncate(time.Second)

	// age <= N days  <=>  release_date > now - (N+1) days
	upper := []time.Time{
		now.Add(-time.Duration(p.Boundaries.Recent+1) * day),
		now.Add(-time.Duration(p.Boundaries.Established+1) * day),
		now.Add(-time.Duration(p.Boundaries.Mature+1) * day),
	}

	var (
		clauses []string
		args    []any
	)
	for i, c := range Categories {
		var bucket string
		switch c {
		case Recent:
			bucket = "release_date > ?"
			args = append(args, upper[0])
		case Archived:
			bucket = "(release_date <= ? OR release_date IS NULL)"
			args = append(args, upper[2])
		default:
			bucket = "release_date <= ? AND release_date > ?"
			args = append(args, upper[i-1], upper[i])
		}
		clauses = append(clauses, fmt.Sprintf(
			"(%s AND (last_tmdb_update IS NULL OR last_tmdb_update <= ?"+
				" OR (imdb_id IS NOT NULL AND (last_omdb_update IS NULL OR last_omdb_update <= ?))))",
			bucket))
		args = append(args,
			now.Add(-p.Interval(SourceA, c)),
			now.Add(-p.Interval(SourceB, c)),
		)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(model.MovieColumns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(model.MoviesTable)
	b.WriteString(" WHERE NOT frozen AND (\n  ")
	b.WriteString(strings.Join(clauses, "\n  OR "))
	b.WriteString("\n)\nORDER BY CASE WHEN last_full_refresh IS NULL THEN 0 ELSE 1 END,")
	b.WriteString(" release_date DESC NULLS LAST, tmdb_id")
	if limit > 0 {
		b.WriteString("\nLIMIT ?")
		args = append(args, limit)
	}
	return b.String(), args
}
