// Package omdb provides a client for the Open Movie Database (OMDb) API.
package omdb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/moviesync/internal/resilience"
)

const defaultBaseURL = "https://www.omdbapi.com"

// Client defines the OMDb operations used by the collector.
type Client interface {
	// ByIMDbID fetches the full record for an IMDb id (e.g. "tt0468569").
	ByIMDbID(ctx context.Context, imdbID string) (*Movie, error)
}

// Rating is one entry of the Ratings list.
type Rating struct {
	Source string `json:"Source"`
	Value  string `json:"Value"`
}

// Movie is the OMDb title response. Every scalar arrives as text; "N/A"
// marks a missing value.
type Movie struct {
	Response   string   `json:"Response"`
	Error      string   `json:"Error,omitempty"`
	IMDbID     string   `json:"imdbID"`
	Title      string   `json:"Title"`
	Year       string   `json:"Year"`
	Rated      string   `json:"Rated"`
	Released   string   `json:"Released"`
	Runtime    string   `json:"Runtime"`
	Genre      string   `json:"Genre"`
	Director   string   `json:"Director"`
	Writer     string   `json:"Writer"`
	Actors     string   `json:"Actors"`
	Language   string   `json:"Language"`
	Country    string   `json:"Country"`
	Awards     string   `json:"Awards"`
	Metascore  string   `json:"Metascore"`
	IMDbRating string   `json:"imdbRating"`
	IMDbVotes  string   `json:"imdbVotes"`
	BoxOffice  string   `json:"BoxOffice"`
	Ratings    []Rating `json:"Ratings"`
}

// Option configures the OMDb client.
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

// NewClient creates an OMDb client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OMDb reports errors in the body, sometimes with HTTP 200.
const requestLimitMsg = "request limit reached"

func (c *httpClient) ByIMDbID(ctx context.Context, imdbID string) (*Movie, error) {
	q := url.Values{}
	q.Set("i", imdbID)
	q.Set("plot", "short")
	q.Set("apikey", c.apiKey)
	reqURL := strings.TrimRight(c.baseURL, "/") + "/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, resilience.Permanent(eris.Wrap(err, "omdb: create request"), 0)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "omdb: get %s", imdbID)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.Transient(eris.Wrapf(err, "omdb: read body for %s", imdbID), resp.StatusCode)
	}

	var movie Movie
	decodeErr := json.Unmarshal(body, &movie)

	if decodeErr == nil && strings.EqualFold(movie.Response, "False") {
		return nil, responseError(imdbID, movie.Error, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.NewFetchError(
			resilience.KindForStatus(resp.StatusCode),
			resp.StatusCode,
			eris.Errorf("omdb: get %s: unexpected status %d", imdbID, resp.StatusCode),
		)
	}

	if decodeErr != nil {
		return nil, resilience.Permanent(eris.Wrapf(decodeErr, "omdb: unmarshal response for %s", imdbID), resp.StatusCode)
	}
	return &movie, nil
}

// responseError classifies a Response:"False" body.
func responseError(imdbID, msg string, status int) error {
	err := eris.Errorf("omdb: %s: %s", imdbID, msg)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, requestLimitMsg):
		return resilience.Throttled(err, status)
	case strings.Contains(lower, "not found"), strings.Contains(lower, "incorrect imdb id"):
		return resilience.NotFound(err)
	case status >= 200 && status <= 299:
		return resilience.Permanent(err, status)
	default:
		return resilience.NewFetchError(resilience.KindForStatus(status), status, err)
	}
}
