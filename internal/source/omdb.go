package source

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/fetcher"
	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/pkg/omdb"
)

// OMDBVolatileColumns change between fetches without a change of substance
// and are left out of the stability hash.
var OMDBVolatileColumns = []string{"imdb_votes", "imdb_rating"}

// Rating sources promoted to top-level columns.
const (
	ratingRottenTomatoes = "Rotten Tomatoes"
	ratingMetacritic     = "Metacritic"
)

// OMDB is the secondary ratings source, keyed by IMDb id.
type OMDB struct {
	client omdb.Client
	exec   *fetcher.Executor
	now    func() time.Time
	log    *zap.Logger
}

// NewOMDB creates the secondary source adapter. Every request passes exec.
func NewOMDB(client omdb.Client, exec *fetcher.Executor) *OMDB {
	return &OMDB{
		client: client,
		exec:   exec,
		now:    time.Now,
		log:    zap.L().With(zap.String("component", "source.omdb")),
	}
}

// Concurrency is the source's concurrency bound.
func (s *OMDB) Concurrency() int { return s.exec.MaxConcurrent() }

// FetchByID fetches and normalizes one title. It reports false, after
// logging, on any failure including an unknown id.
func (s *OMDB) FetchByID(ctx context.Context, imdbID string) (model.Record, bool) {
	movie, err := fetcher.Execute(ctx, s.exec, func(ctx context.Context) (*omdb.Movie, error) {
		return s.client.ByIMDbID(ctx, imdbID)
	})
	if err != nil {
		s.log.Warn("fetch title failed", zap.String("imdb_id", imdbID), zap.Error(err))
		return nil, false
	}
	if strings.TrimSpace(movie.IMDbID) == "" {
		// Some responses omit the id; the request key is authoritative.
		movie.IMDbID = imdbID
	}
	return NormalizeOMDB(movie, s.now()), true
}

// NormalizeOMDB converts a title response to an omdb_movies row.
func NormalizeOMDB(m *omdb.Movie, now time.Time) model.Record {
	rt, mc := promoteRatings(m.Ratings)
	return model.Record{
		"imdb_id":                strings.TrimSpace(m.IMDbID),
		"title":                  text(m.Title),
		"year":                   parseLeadingInt(m.Year),
		"rated":                  text(m.Rated),
		"released":               parseDate(m.Released),
		"runtime":                parseLeadingInt(m.Runtime),
		"genre":                  text(m.Genre),
		"director":               text(m.Director),
		"writer":                 text(m.Writer),
		"actors":                 text(m.Actors),
		"language":               text(m.Language),
		"country":                text(m.Country),
		"awards":                 text(m.Awards),
		"imdb_rating":            parseFloat(m.IMDbRating),
		"imdb_votes":             parseInt(m.IMDbVotes),
		"metascore":              parseInt(m.Metascore),
		"box_office":             parseInt(m.BoxOffice),
		"rotten_tomatoes_rating": rt,
		"meta_critic_rating":     mc,
		model.FetchedAtColumn:    now.UTC().Truncate(time.Second),
	}
}

// promoteRatings scans the ratings list for the Rotten Tomatoes percentage
// ("85%") and the Metacritic score ("76/100").
func promoteRatings(ratings []omdb.Rating) (rottenTomatoes, metacritic any) {
	for _, r := range ratings {
		switch strings.TrimSpace(r.Source) {
		case ratingRottenTomatoes:
			if strings.HasSuffix(strings.TrimSpace(r.Value), "%") {
				rottenTomatoes = parseLeadingInt(r.Value)
			}
		case ratingMetacritic:
			if strings.Contains(r.Value, "/") {
				metacritic = parseLeadingInt(r.Value)
			}
		}
	}
	return rottenTomatoes, metacritic
}
