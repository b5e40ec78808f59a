// Package tmdb provides a client for The Movie Database (TMDB) v3 API.
package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/moviesync/internal/resilience"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// Client defines the TMDB operations used by the collector.
type Client interface {
	// Discover fetches one page of the discover/movie listing.
	Discover(ctx context.Context, params DiscoverParams) (*DiscoverResponse, error)
	// MovieDetails fetches the full record for one movie.
	MovieDetails(ctx context.Context, id int64) (*MovieDetails, error)
}

// DiscoverParams filters a discover/movie query.
type DiscoverParams struct {
	ReleaseDateGTE string // YYYY-MM-DD
	ReleaseDateLTE string // YYYY-MM-DD
	MinVoteCount   int
	Page           int
}

// DiscoverResponse is one page of discover results.
type DiscoverResponse struct {
	Page         int             `json:"page"`
	Results      []DiscoverMovie `json:"results"`
	TotalPages   int             `json:"total_pages"`
	TotalResults int             `json:"total_results"`
}

// DiscoverMovie is a movie summary from the discover listing.
type DiscoverMovie struct {
	ID            int64   `json:"id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title"`
	ReleaseDate   string  `json:"release_date"`
	VoteCount     int     `json:"vote_count"`
	VoteAverage   float64 `json:"vote_average"`
	Popularity    float64 `json:"popularity"`
	GenreIDs      []int   `json:"genre_ids"`
}

// Genre is a TMDB genre.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ProductionCompany is a studio credited on a movie.
type ProductionCompany struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	OriginCountry string `json:"origin_country"`
}

// ProductionCountry is a country of production.
type ProductionCountry struct {
	ISO3166 string `json:"iso_3166_1"`
	Name    string `json:"name"`
}

// SpokenLanguage is a language spoken in the movie.
type SpokenLanguage struct {
	EnglishName string `json:"english_name"`
	ISO639      string `json:"iso_639_1"`
	Name        string `json:"name"`
}

// MovieDetails is the movie/{id} response.
type MovieDetails struct {
	ID                  int64               `json:"id"`
	IMDbID              *string             `json:"imdb_id"`
	Title               string              `json:"title"`
	OriginalTitle       string              `json:"original_title"`
	OriginalLanguage    string              `json:"original_language"`
	ReleaseDate         string              `json:"release_date"`
	Status              string              `json:"status"`
	Budget              int64               `json:"budget"`
	Revenue             int64               `json:"revenue"`
	Runtime             *int                `json:"runtime"`
	VoteCount           int                 `json:"vote_count"`
	VoteAverage         float64             `json:"vote_average"`
	Popularity          float64             `json:"popularity"`
	Overview            string              `json:"overview"`
	Tagline             string              `json:"tagline"`
	Genres              []Genre             `json:"genres"`
	ProductionCompanies []ProductionCompany `json:"production_companies"`
	ProductionCountries []ProductionCountry `json:"production_countries"`
	SpokenLanguages     []SpokenLanguage    `json:"spoken_languages"`
}

// Option configures the TMDB client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL. An empty URL keeps the default.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a TMDB client authenticated with a v3 API key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Discover(ctx context.Context, p DiscoverParams) (*DiscoverResponse, error) {
	q := url.Values{}
	if p.ReleaseDateGTE != "" {
		q.Set("primary_release_date.gte", p.ReleaseDateGTE)
	}
	if p.ReleaseDateLTE != "" {
		q.Set("primary_release_date.lte", p.ReleaseDateLTE)
	}
	if p.MinVoteCount > 0 {
		q.Set("vote_count.gte", strconv.Itoa(p.MinVoteCount))
	}
	page := p.Page
	if page <= 0 {
		page = 1
	}
	q.Set("sort_by", "primary_release_date.desc")
	q.Set("include_adult", "false")
	q.Set("include_video", "false")
	q.Set("page", strconv.Itoa(page))

	var out DiscoverResponse
	if err := c.get(ctx, "/discover/movie", q, &out); err != nil {
		return nil, eris.Wrapf(err, "tmdb: discover page %d", page)
	}
	return &out, nil
}

func (c *httpClient) MovieDetails(ctx context.Context, id int64) (*MovieDetails, error) {
	var out MovieDetails
	if err := c.get(ctx, fmt.Sprintf("/movie/%d", id), url.Values{}, &out); err != nil {
		return nil, eris.Wrapf(err, "tmdb: movie %d", id)
	}
	return &out, nil
}

// get performs one GET and decodes the JSON body into out. Non-2xx answers
// come back as classified *resilience.FetchError values.
func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return resilience.Permanent(eris.Wrap(err, "create request"), 0)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.Transient(eris.Wrap(err, "read response body"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resilience.NewFetchError(
			resilience.KindForStatus(resp.StatusCode),
			resp.StatusCode,
			eris.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200)),
		)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return resilience.Permanent(eris.Wrap(err, "unmarshal response"), resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
