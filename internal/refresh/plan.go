package refresh

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/moviesync/internal/model"
)

// Plan is the per-movie decision of which sources to fetch this cycle.
type Plan struct {
	NeedsSourceA bool
	NeedsSourceB bool
}

// Any reports whether at least one source needs a fetch.
func (p Plan) Any() bool { return p.NeedsSourceA || p.NeedsSourceB }

// NeedsRefresh reports whether src data last fetched at last is stale for a
// movie released at ref. A missing timestamp always needs a fetch.
func (p Policy) NeedsRefresh(src Source, ref, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	return now.Sub(*last) >= p.Interval(src, p.Classify(ref, now))
}

// Plan applies NeedsRefresh to each source of m.
func (p Policy) Plan(m model.Movie, now time.Time) Plan {
	return Plan{
		NeedsSourceA: p.NeedsRefresh(SourceA, m.ReleaseDate, m.LastTMDBUpdate, now),
		NeedsSourceB: p.NeedsRefresh(SourceB, m.ReleaseDate, m.LastOMDBUpdate, now),
	}
}

// PlanValues plans from raw stored values. Each timestamp may be a time,
// an ISO-8601 string with or without offset, or nil; values without an
// offset are UTC.
func (p Policy) PlanValues(ref, lastA, lastB any, now time.Time) (Plan, error) {
	var ts [3]*time.Time
	for i, v := range []any{ref, lastA, lastB} {
		t, err := model.ParseTimestamp(v)
		if err != nil {
			return Plan{}, eris.Wrap(err, "refresh: plan")
		}
		ts[i] = t
	}
	return Plan{
		NeedsSourceA: p.NeedsRefresh(SourceA, ts[0], ts[1], now),
		NeedsSourceB: p.NeedsRefresh(SourceB, ts[0], ts[2], now),
	}, nil
}

// ShouldFreeze reports whether a movie may be excluded from automatic
// refresh. It requires a known age of at least MinAgeDays, at least one
// completed fetch, and, in stability mode, unchanged >= StableCycles.
func (p Policy) ShouldFreeze(ref, lastA, lastB *time.Time, unchanged int, now time.Time) bool {
	f := p.Freeze
	if f.Mode == FreezeOff || ref == nil {
		return false
	}
	if AgeDays(*ref, now) < f.MinAgeDays {
		return false
	}
	if lastA == nil && lastB == nil {
		return false
	}
	if f.Mode == FreezeAge {
		return true
	}
	return unchanged >= f.StableCycles
}
