package omdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/moviesync/internal/resilience"
)

const darkKnightJSON = `{
  "Title": "The Dark Knight", "Year": "2008", "Rated": "PG-13",
  "Released": "18 Jul 2008", "Runtime": "152 min", "Genre": "Action, Crime, Drama",
  "Director": "Christopher Nolan", "Writer": "Jonathan Nolan, Christopher Nolan",
  "Actors": "Christian Bale, Heath Ledger", "Language": "English, Mandarin",
  "Country": "United States, United Kingdom", "Awards": "Won 2 Oscars",
  "Ratings": [
    {"Source": "Internet Movie Database", "Value": "9.0/10"},
    {"Source": "Rotten Tomatoes", "Value": "94%"},
    {"Source": "Metacritic", "Value": "84/100"}
  ],
  "Metascore": "84", "imdbRating": "9.0", "imdbVotes": "2,900,000",
  "imdbID": "tt0468569", "BoxOffice": "$534,987,076", "Response": "True"
}`

func TestByIMDbID_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "tt0468569", r.URL.Query().Get("i"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(darkKnightJSON))
	}))
	defer srv.Close()

	got, err := NewClient("test-key", WithBaseURL(srv.URL)).ByIMDbID(context.Background(), "tt0468569")
	require.NoError(t, err)

	assert.Equal(t, "tt0468569", got.IMDbID)
	assert.Equal(t, "152 min", got.Runtime)
	assert.Equal(t, "$534,987,076", got.BoxOffice)
	require.Len(t, got.Ratings, 3)
	assert.Equal(t, "Metacritic", got.Ratings[2].Source)
}

func TestByIMDbID_ResponseFalse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   resilience.Kind
	}{
		{"not_found", http.StatusOK, `{"Response":"False","Error":"Movie not found!"}`, resilience.KindNotFound},
		{"bad_id", http.StatusOK, `{"Response":"False","Error":"Incorrect IMDb ID."}`, resilience.KindNotFound},
		{"limit", http.StatusUnauthorized, `{"Response":"False","Error":"Request limit reached!"}`, resilience.KindThrottled},
		{"invalid_key", http.StatusUnauthorized, `{"Response":"False","Error":"Invalid API key!"}`, resilience.KindPermanent},
		{"other_200", http.StatusOK, `{"Response":"False","Error":"Something odd."}`, resilience.KindPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("k", WithBaseURL(srv.URL)).ByIMDbID(context.Background(), "tt0000001")
			require.Error(t, err)
			assert.Equal(t, tt.want, resilience.Classify(err))
		})
	}
}

func TestByIMDbID_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := map[int]resilience.Kind{
		http.StatusTooManyRequests:     resilience.KindThrottled,
		http.StatusServiceUnavailable:  resilience.KindTransient,
		http.StatusInternalServerError: resilience.KindTransient,
		http.StatusBadRequest:          resilience.KindPermanent,
	}
	for status, want := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`<html>error</html>`))
		}))

		_, err := NewClient("k", WithBaseURL(srv.URL)).ByIMDbID(context.Background(), "tt1")
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, want, resilience.Classify(err), "status %d", status)
	}
}

func TestByIMDbID_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ByIMDbID(context.Background(), "tt1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
	assert.False(t, resilience.Retryable(err))
}
