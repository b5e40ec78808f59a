package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/moviesync/internal/config"
	"github.com/sells-group/moviesync/internal/refresh"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Discovery.MinVoteCount = 200
	c.Discovery.MaxPages = 5
	c.Refresh.Limit = 100
	c.Refresh.Freeze.Mode = "stability"
	c.Refresh.Freeze.MinAgeDays = 365
	c.Refresh.Freeze.StableCycles = 3
	return c
}

func resetCollectFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		collectStartYear, collectEndYear, collectMaxPages = 0, 0, 0
		collectMinVotes, collectRefreshLimit = 0, 0
		collectRefreshOnly = false
	})
}

func TestCycleOptions_ConfigDefaults(t *testing.T) {
	resetCollectFlags(t)

	opts := cycleOptions(testConfig(), 2025)
	assert.Equal(t, 2025, opts.StartYear)
	assert.Zero(t, opts.EndYear)
	assert.Equal(t, 5, opts.MaxPages)
	assert.Equal(t, 200, opts.MinVoteCount)
	assert.Equal(t, 100, opts.RefreshLimit)
	assert.False(t, opts.SkipRefresh)
}

func TestCycleOptions_FlagsWin(t *testing.T) {
	resetCollectFlags(t)
	collectStartYear, collectEndYear = 2010, 2012
	collectMaxPages, collectMinVotes, collectRefreshLimit = 2, 50, 10

	opts := cycleOptions(testConfig(), 2025)
	assert.Equal(t, 2010, opts.StartYear)
	assert.Equal(t, 2012, opts.EndYear)
	assert.Equal(t, 2, opts.MaxPages)
	assert.Equal(t, 50, opts.MinVoteCount)
	assert.Equal(t, 10, opts.RefreshLimit)
}

func TestLoadPolicy_ConfigFreezeOverrides(t *testing.T) {
	c := testConfig()
	c.Refresh.Freeze.Mode = "age"
	c.Refresh.Freeze.MinAgeDays = 730

	p, err := loadPolicy(c)
	require.NoError(t, err)
	assert.Equal(t, refresh.FreezeAge, p.Freeze.Mode)
	assert.Equal(t, 730, p.Freeze.MinAgeDays)
	assert.Equal(t, refresh.DefaultPolicy().SourceA, p.SourceA)
}

func TestLoadPolicy_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tmdb_intervals:
  recent: 2
  established: 10
  mature: 30
  archived: 90
`), 0644))

	c := testConfig()
	c.Refresh.PolicyFile = path
	p, err := loadPolicy(c)
	require.NoError(t, err)
	assert.Equal(t, 2, p.SourceA.Recent)
	assert.Equal(t, refresh.FreezeStability, p.Freeze.Mode)
}

func TestLoadPolicy_InvalidFreezeMode(t *testing.T) {
	c := testConfig()
	c.Refresh.Freeze.Mode = "sometimes"

	_, err := loadPolicy(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown freeze mode")
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"155", "27205"})
	require.NoError(t, err)
	assert.Equal(t, []int64{155, 27205}, ids)

	for _, bad := range []string{"abc", "0", "-3", "tt0468569"} {
		_, err := parseIDs([]string{bad})
		assert.Error(t, err, bad)
	}
}
