package collect

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/refresh"
	"github.com/sells-group/moviesync/internal/source"
	"github.com/sells-group/moviesync/internal/store"
)

// entry is one selected movie and what happened to it this cycle. sentB
// marks a movie dispatched to source B.
type entry struct {
	movie    model.Movie
	plan     refresh.Plan
	updatedA bool
	updatedB bool
	sentB    bool
	changed  bool
	dirty    bool
}

// Refresh selects up to limit due movies, fetches the sources each one needs,
// writes the detail rows, stamps the movies and runs the freeze sweep.
func (o *Orchestrator) Refresh(ctx context.Context, limit int) (model.CycleStats, error) {
	var stats model.CycleStats
	now := o.stamp()

	q, args := o.policy.DueQuery(now, limit)
	selected, err := store.SelectMovies(ctx, o.store, q, args...)
	if err != nil {
		return stats, wrapStorage(err, "select due movies")
	}
	if len(selected) == 0 {
		o.log.Info("no movies due for refresh")
		return stats, nil
	}

	entries := make([]*entry, len(selected))
	var needA []int64
	for i, m := range selected {
		p := o.policy.Plan(m, now)
		entries[i] = &entry{movie: m, plan: p}
		if p.NeedsSourceA {
			needA = append(needA, m.TMDBID)
		}
	}
	byID := make(map[int64]*entry, len(entries))
	for _, e := range entries {
		byID[e.movie.TMDBID] = e
	}
	o.log.Info("refresh batch selected", zap.Int("movies", len(entries)), zap.Int("tmdb_due", len(needA)))

	// Source A: details by TMDB id.
	resA := newResults[int64](len(needA))
	if err := fanOut(ctx, o.primary.Concurrency(), needA, func(ctx context.Context, id int64) {
		rec, ok := o.primary.FetchByID(ctx, id)
		o.observer.ObserveFetch("tmdb", ok)
		if ok {
			resA.put(id, rec)
		}
	}); err != nil {
		return stats, eris.Wrap(err, "collect: tmdb refresh interrupted")
	}

	if err := o.applySourceA(ctx, byID, resA.recs, now); err != nil {
		return stats, err
	}
	stats.SourceAUpdated = len(resA.recs)

	// Source B: needs the IMDb id, which may have arrived with this cycle's
	// source A fetch.
	var needB []string
	ownerB := make(map[string]*entry)
	for _, e := range entries {
		if e.plan.NeedsSourceB && e.movie.IMDbID != "" {
			needB = append(needB, e.movie.IMDbID)
			ownerB[e.movie.IMDbID] = e
			e.sentB = true
		}
	}
	resB := newResults[string](len(needB))
	if err := fanOut(ctx, o.secondary.Concurrency(), needB, func(ctx context.Context, imdbID string) {
		rec, ok := o.secondary.FetchByID(ctx, imdbID)
		o.observer.ObserveFetch("omdb", ok)
		if ok {
			resB.put(imdbID, rec)
		}
	}); err != nil {
		return stats, eris.Wrap(err, "collect: omdb refresh interrupted")
	}

	if err := o.applySourceB(ctx, ownerB, resB.recs, now); err != nil {
		return stats, err
	}
	stats.SourceBUpdated = len(resB.recs)

	stats.Frozen = o.finish(entries, now)

	dirty := make([]model.Movie, 0, len(entries))
	for _, e := range entries {
		if e.dirty {
			dirty = append(dirty, e.movie)
		}
	}
	if _, err := store.SaveMovies(ctx, o.store, dirty); err != nil {
		return stats, wrapStorage(err, "save refreshed movies")
	}
	return stats, nil
}

// applySourceA writes the fetched detail rows and merges ids, basics, stamp
// and hash into the selected movies.
func (o *Orchestrator) applySourceA(ctx context.Context, byID map[int64]*entry, recs map[int64]model.Record, now time.Time) error {
	if len(recs) == 0 {
		return nil
	}
	ids := sortedKeys(recs)

	claims, err := o.claimIMDbIDs(ctx, recs, ids)
	if err != nil {
		return err
	}

	rows := make([]store.Row, 0, len(recs))
	for _, id := range ids {
		rec := recs[id]
		e := byID[id]
		if imdbID, ok := claims[id]; ok {
			e.movie.IMDbID = imdbID
		} else {
			rec = rec.Clone()
			rec["imdb_id"] = nil
		}
		applyBasics(&e.movie, rec)

		t := now
		e.movie.LastTMDBUpdate = &t
		e.updatedA = true
		e.dirty = true

		hash, err := rec.Hash(source.TMDBVolatileColumns...)
		if err != nil {
			return eris.Wrapf(err, "collect: hash tmdb %d", id)
		}
		if hash != e.movie.TMDBHash {
			e.changed = true
			e.movie.TMDBHash = hash
		}
		rows = append(rows, rec)
	}

	if _, err := o.store.Upsert(ctx, model.TMDBTable, rows, []string{"tmdb_id"}); err != nil {
		return wrapStorage(err, "upsert "+model.TMDBTable)
	}
	return nil
}

// claimIMDbIDs decides which fetched IMDb ids may be assigned. An id already
// held by another movie, or reported for two movies in one batch, stays with
// its first holder.
func (o *Orchestrator) claimIMDbIDs(ctx context.Context, recs map[int64]model.Record, ids []int64) (map[int64]string, error) {
	wanted := make(map[string][]int64)
	for _, id := range ids {
		if imdbID := recs[id].String("imdb_id"); imdbID != "" {
			wanted[imdbID] = append(wanted[imdbID], id)
		}
	}
	if len(wanted) == 0 {
		return map[int64]string{}, nil
	}

	list := make([]string, 0, len(wanted))
	for imdbID := range wanted {
		list = append(list, imdbID)
	}
	sort.Strings(list)
	holders, err := store.MovieIDsByIMDbID(ctx, o.store, list)
	if err != nil {
		return nil, wrapStorage(err, "load imdb id holders")
	}

	claims := make(map[int64]string, len(ids))
	for _, imdbID := range list {
		owner, held := holders[imdbID]
		for _, id := range wanted[imdbID] {
			switch {
			case held && owner == id:
				claims[id] = imdbID
			case !held:
				claims[id] = imdbID
				held, owner = true, id
			default:
				o.log.Warn("imdb id already assigned to another movie",
					zap.String("imdb_id", imdbID),
					zap.Int64("tmdb_id", id),
					zap.Int64("holder", owner),
				)
			}
		}
	}
	return claims, nil
}

// applySourceB writes the fetched ratings rows and stamps their movies.
func (o *Orchestrator) applySourceB(ctx context.Context, owners map[string]*entry, recs map[string]model.Record, now time.Time) error {
	if len(recs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(recs))
	for k := range recs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]store.Row, 0, len(recs))
	for _, imdbID := range keys {
		rec := recs[imdbID]
		e := owners[imdbID]

		t := now
		e.movie.LastOMDBUpdate = &t
		e.updatedB = true
		e.dirty = true

		hash, err := rec.Hash(source.OMDBVolatileColumns...)
		if err != nil {
			return eris.Wrapf(err, "collect: hash omdb %s", imdbID)
		}
		if hash != e.movie.OMDBHash {
			e.changed = true
			e.movie.OMDBHash = hash
		}
		rows = append(rows, rec)
	}

	if _, err := o.store.Upsert(ctx, model.OMDBTable, rows, []string{"imdb_id"}); err != nil {
		return wrapStorage(err, "upsert "+model.OMDBTable)
	}
	return nil
}

// finish updates stability counters and full-refresh stamps, then freezes
// eligible movies. It returns the number newly frozen.
//
// A cycle counts as unchanged only when every source the movie was sent to
// answered with the stored content. A changed source resets the counter; a
// failed fetch with no change seen leaves it as is.
func (o *Orchestrator) finish(entries []*entry, now time.Time) int {
	frozen := 0
	for _, e := range entries {
		m := &e.movie
		updated := e.updatedA || e.updatedB
		complete := e.updatedA == e.plan.NeedsSourceA && e.updatedB == e.sentB
		switch {
		case e.changed:
			m.UnchangedCycles = 0
		case updated && complete:
			m.UnchangedCycles++
		}
		if updated && m.LastTMDBUpdate != nil && m.LastOMDBUpdate != nil && m.LastFullRefresh == nil {
			t := now
			m.LastFullRefresh = &t
		}

		if !m.Frozen && o.policy.ShouldFreeze(m.ReleaseDate, m.LastTMDBUpdate, m.LastOMDBUpdate, m.UnchangedCycles, now) {
			m.Frozen = true
			e.dirty = true
			frozen++
			o.log.Debug("movie frozen", zap.Int64("tmdb_id", m.TMDBID), zap.Int("unchanged_cycles", m.UnchangedCycles))
		}
	}
	return frozen
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
