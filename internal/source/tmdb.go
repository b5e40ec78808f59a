package source

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/fetcher"
	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/pkg/tmdb"
)

// TMDBVolatileColumns change between fetches without a change of substance
// and are left out of the stability hash.
var TMDBVolatileColumns = []string{"popularity", "vote_count", "vote_average"}

// DiscoverFilter selects one discovery listing.
type DiscoverFilter struct {
	From         time.Time
	To           time.Time
	MinVoteCount int
}

// TMDB is the primary catalog source.
type TMDB struct {
	client tmdb.Client
	exec   *fetcher.Executor
	now    func() time.Time
	log    *zap.Logger
}

// NewTMDB creates the primary source adapter. Every request passes exec.
func NewTMDB(client tmdb.Client, exec *fetcher.Executor) *TMDB {
	return &TMDB{
		client: client,
		exec:   exec,
		now:    time.Now,
		log:    zap.L().With(zap.String("component", "source.tmdb")),
	}
}

// Concurrency is the source's concurrency bound.
func (s *TMDB) Concurrency() int { return s.exec.MaxConcurrent() }

// FetchByID fetches and normalizes the details of one movie. It reports
// false, after logging, on any failure.
func (s *TMDB) FetchByID(ctx context.Context, id int64) (model.Record, bool) {
	details, err := fetcher.Execute(ctx, s.exec, func(ctx context.Context) (*tmdb.MovieDetails, error) {
		return s.client.MovieDetails(ctx, id)
	})
	if err != nil {
		s.log.Warn("fetch details failed", zap.Int64("tmdb_id", id), zap.Error(err))
		return nil, false
	}
	return NormalizeTMDBDetails(details, s.now()), true
}

// DiscoverPage fetches one discovery page. It returns the normalized
// listing rows and the total page count, or nothing after logging a failure.
func (s *TMDB) DiscoverPage(ctx context.Context, f DiscoverFilter, page int) ([]model.Record, int) {
	params := tmdb.DiscoverParams{
		MinVoteCount: f.MinVoteCount,
		Page:         page,
	}
	if !f.From.IsZero() {
		params.ReleaseDateGTE = f.From.Format("2006-01-02")
	}
	if !f.To.IsZero() {
		params.ReleaseDateLTE = f.To.Format("2006-01-02")
	}

	resp, err := fetcher.Execute(ctx, s.exec, func(ctx context.Context) (*tmdb.DiscoverResponse, error) {
		return s.client.Discover(ctx, params)
	})
	if err != nil {
		s.log.Warn("discover page failed",
			zap.Int("page", page),
			zap.String("from", params.ReleaseDateGTE),
			zap.String("to", params.ReleaseDateLTE),
			zap.Error(err),
		)
		return nil, 0
	}

	now := s.now()
	out := make([]model.Record, 0, len(resp.Results))
	for i := range resp.Results {
		out = append(out, NormalizeTMDBDiscover(&resp.Results[i], now))
	}
	return out, resp.TotalPages
}

// NormalizeTMDBDiscover converts a discovery listing entry.
func NormalizeTMDBDiscover(m *tmdb.DiscoverMovie, now time.Time) model.Record {
	return model.Record{
		"tmdb_id":             m.ID,
		"title":               text(m.Title),
		"release_date":        parseDate(m.ReleaseDate),
		"vote_count":          int64(m.VoteCount),
		"vote_average":        m.VoteAverage,
		"popularity":          m.Popularity,
		"genre_ids":           joinNames(m.GenreIDs, strconv.Itoa),
		model.FetchedAtColumn: now.UTC().Truncate(time.Second),
	}
}

// NormalizeTMDBDetails converts a details response to a tmdb_movies row.
func NormalizeTMDBDetails(m *tmdb.MovieDetails, now time.Time) model.Record {
	var imdbID any
	if m.IMDbID != nil {
		imdbID = text(*m.IMDbID)
	}
	var runtime any
	if m.Runtime != nil && *m.Runtime > 0 {
		runtime = int64(*m.Runtime)
	}

	return model.Record{
		"tmdb_id":           m.ID,
		"imdb_id":           imdbID,
		"title":             text(m.Title),
		"original_title":    text(m.OriginalTitle),
		"original_language": text(m.OriginalLanguage),
		"release_date":      parseDate(m.ReleaseDate),
		"status":            text(m.Status),
		"budget":            positive(m.Budget),
		"revenue":           positive(m.Revenue),
		"runtime":           runtime,
		"vote_count":        int64(m.VoteCount),
		"vote_average":      m.VoteAverage,
		"popularity":        m.Popularity,
		"genre_ids": joinNames(m.Genres, func(g tmdb.Genre) string {
			return strconv.Itoa(g.ID)
		}),
		"genres": joinNames(m.Genres, func(g tmdb.Genre) string { return g.Name }),
		"production_company_ids": joinNames(m.ProductionCompanies, func(c tmdb.ProductionCompany) string {
			return strconv.Itoa(c.ID)
		}),
		"production_companies": joinNames(m.ProductionCompanies, func(c tmdb.ProductionCompany) string {
			return c.Name
		}),
		"production_company_countries": joinNames(m.ProductionCompanies, func(c tmdb.ProductionCompany) string {
			return c.OriginCountry
		}),
		"production_countries": joinNames(m.ProductionCountries, func(c tmdb.ProductionCountry) string {
			return c.Name
		}),
		"spoken_languages": joinNames(m.SpokenLanguages, func(l tmdb.SpokenLanguage) string {
			return l.EnglishName
		}),
		"overview":            text(m.Overview),
		"tagline":             text(m.Tagline),
		model.FetchedAtColumn: now.UTC().Truncate(time.Second),
	}
}
