package refresh

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDueQuery_Shape(t *testing.T) {
	q, args := DefaultPolicy().DueQuery(now, 100)

	assert.True(t, strings.HasPrefix(q, "SELECT tmdb_id, imdb_id, title, release_date"))
	assert.Contains(t, q, "FROM movies WHERE NOT frozen")
	assert.Contains(t, q, "ORDER BY CASE WHEN last_full_refresh IS NULL THEN 0 ELSE 1 END")
	assert.Contains(t, q, "release_date DESC NULLS LAST")
	assert.Contains(t, q, "release_date IS NULL")
	assert.True(t, strings.HasSuffix(q, "LIMIT ?"))
	assert.Equal(t, strings.Count(q, "?"), len(args))
	assert.Equal(t, 100, args[len(args)-1])
}

func TestDueQuery_Cutoffs(t *testing.T) {
	p := DefaultPolicy()
	_, args := p.DueQuery(now, 0)

	// Recent bucket: boundary, tmdb cutoff, omdb cutoff.
	require.Len(t, args, 1+2+2+2+2+2+1+2)
	assert.Equal(t, now.Add(-61*day), args[0])
	assert.Equal(t, now.Add(-5*day), args[1])
	assert.Equal(t, now.Add(-5*day), args[2])

	// Established bucket.
	assert.Equal(t, now.Add(-61*day), args[3])
	assert.Equal(t, now.Add(-181*day), args[4])
	assert.Equal(t, now.Add(-15*day), args[5])
	assert.Equal(t, now.Add(-30*day), args[6])

	// Archived bucket.
	assert.Equal(t, now.Add(-366*day), args[11])
	assert.Equal(t, now.Add(-90*day), args[12])
	assert.Equal(t, now.Add(-180*day), args[13])

	for _, a := range args {
		ts, ok := a.(time.Time)
		require.True(t, ok)
		assert.Equal(t, time.UTC, ts.Location())
	}
}

func TestDueQuery_NoLimit(t *testing.T) {
	q, _ := DefaultPolicy().DueQuery(now, 0)
	assert.NotContains(t, q, "LIMIT")
}
