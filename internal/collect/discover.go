package collect

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/source"
	"github.com/sells-group/moviesync/internal/store"
)

// Discover pages through the discovery listing for each year in range and
// merges the basic fields of every listed movie into the movies table. It
// returns the number of distinct movies written.
func (o *Orchestrator) Discover(ctx context.Context, opts Options) (int, error) {
	end := opts.EndYear
	if end < opts.StartYear {
		end = opts.StartYear
	}

	total := 0
	for year := opts.StartYear; year <= end; year++ {
		f := source.DiscoverFilter{
			From:         time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			To:           time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
			MinVoteCount: opts.MinVoteCount,
		}
		recs, err := o.discoverYear(ctx, f, opts.MaxPages)
		if err != nil {
			return total, err
		}
		n, err := o.mergeDiscovered(ctx, recs)
		total += n
		if err != nil {
			return total, err
		}
		o.log.Info("discovery year complete", zap.Int("year", year), zap.Int("movies", n))
	}
	return total, nil
}

// discoverYear fetches page 1 to learn the page count, then the remaining
// pages concurrently. Failed pages contribute nothing.
func (o *Orchestrator) discoverYear(ctx context.Context, f source.DiscoverFilter, maxPages int) ([]model.Record, error) {
	first, pages := o.primary.DiscoverPage(ctx, f, 1)
	o.observer.ObserveFetch("tmdb_discover", first != nil)
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var (
		mu  sync.Mutex
		all = append([]model.Record(nil), first...)
	)
	rest := make([]int, 0, max(pages-1, 0))
	for p := 2; p <= pages; p++ {
		rest = append(rest, p)
	}
	err := fanOut(ctx, o.primary.Concurrency(), rest, func(ctx context.Context, page int) {
		recs, _ := o.primary.DiscoverPage(ctx, f, page)
		o.observer.ObserveFetch("tmdb_discover", recs != nil)
		mu.Lock()
		all = append(all, recs...)
		mu.Unlock()
	})
	if err != nil {
		return nil, eris.Wrap(err, "collect: discovery interrupted")
	}
	return all, nil
}

// mergeDiscovered folds fresh basic fields into the stored movies. Upserts
// replace whole rows, so each row carries the existing timestamps, flags and
// ids forward.
func (o *Orchestrator) mergeDiscovered(ctx context.Context, recs []model.Record) (int, error) {
	byID := make(map[int64]model.Record, len(recs))
	for _, r := range recs {
		id, err := model.Int64(r["tmdb_id"])
		if err != nil || id == 0 {
			o.log.Warn("discovery row without tmdb_id", zap.Any("row", r))
			continue
		}
		byID[id] = r
	}
	if len(byID) == 0 {
		return 0, nil
	}

	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	existing, err := store.LoadMovies(ctx, o.store, ids)
	if err != nil {
		return 0, wrapStorage(err, "load discovered movies")
	}

	movies := make([]model.Movie, 0, len(ids))
	for _, id := range ids {
		m, ok := existing[id]
		if !ok {
			m = model.Movie{TMDBID: id}
		}
		applyBasics(&m, byID[id])
		movies = append(movies, m)
	}

	if _, err := store.SaveMovies(ctx, o.store, movies); err != nil {
		return 0, wrapStorage(err, "save discovered movies")
	}
	return len(movies), nil
}

// applyBasics copies title and release date from a primary-source row when
// present.
func applyBasics(m *model.Movie, r model.Record) {
	if title := r.String("title"); title != "" {
		m.Title = title
	}
	if ts, err := model.ParseTimestamp(r["release_date"]); err == nil && ts != nil {
		m.ReleaseDate = ts
	}
}
