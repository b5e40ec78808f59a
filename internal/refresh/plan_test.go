package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/moviesync/internal/model"
)

func TestNeedsRefresh_Monotonic(t *testing.T) {
	p := DefaultPolicy()
	for _, age := range []int{0, 30, 100, 200, 400, 5000} {
		ref := daysAgo(age)
		for _, src := range []Source{SourceA, SourceB} {
			assert.True(t, p.NeedsRefresh(src, ref, nil, now), "nil last must refresh (age %d, %s)", age, src)
			assert.False(t, p.NeedsRefresh(src, ref, &now, now), "just fetched must not refresh (age %d, %s)", age, src)

			interval := p.Interval(src, p.Classify(ref, now))
			justBefore := now.Add(-interval + time.Second)
			atInterval := now.Add(-interval)
			assert.False(t, p.NeedsRefresh(src, ref, &justBefore, now))
			assert.True(t, p.NeedsRefresh(src, ref, &atInterval, now))
		}
	}
}

func TestPlan_RecentNeverFetched(t *testing.T) {
	p := DefaultPolicy()
	m := model.Movie{TMDBID: 1, ReleaseDate: daysAgo(10)}

	assert.Equal(t, Recent, p.Classify(m.ReleaseDate, now))
	assert.Equal(t, Plan{NeedsSourceA: true, NeedsSourceB: true}, p.Plan(m, now))
}

func TestPlan_ArchivedSplitDecision(t *testing.T) {
	p := DefaultPolicy()
	m := model.Movie{
		TMDBID:         2,
		ReleaseDate:    daysAgo(400),
		LastTMDBUpdate: daysAgo(50),
		LastOMDBUpdate: daysAgo(200),
	}

	assert.Equal(t, Archived, p.Classify(m.ReleaseDate, now))
	assert.Equal(t, 90*day, p.Interval(SourceA, Archived))
	assert.Equal(t, 180*day, p.Interval(SourceB, Archived))

	plan := p.Plan(m, now)
	assert.False(t, plan.NeedsSourceA)
	assert.True(t, plan.NeedsSourceB)
	assert.True(t, plan.Any())
}

func TestPlan_NothingDue(t *testing.T) {
	p := DefaultPolicy()
	m := model.Movie{ReleaseDate: daysAgo(100), LastTMDBUpdate: daysAgo(1), LastOMDBUpdate: daysAgo(1)}
	assert.False(t, p.Plan(m, now).Any())
}

func TestPlanValues_MixedRepresentations(t *testing.T) {
	p := DefaultPolicy()

	// Release 400 days ago, tmdb 50 days ago (naive), omdb 200 days ago (aware).
	aware := now.Add(-200 * day).In(time.FixedZone("PDT", -7*3600))
	plan, err := p.PlanValues("2024-05-11", "2025-04-26T12:00:00", aware, now)
	require.NoError(t, err)
	assert.Equal(t, Plan{NeedsSourceA: false, NeedsSourceB: true}, plan)

	plan, err = p.PlanValues(nil, nil, nil, now)
	require.NoError(t, err)
	assert.Equal(t, Plan{NeedsSourceA: true, NeedsSourceB: true}, plan)
}

func TestPlanValues_RejectsBadTimestamps(t *testing.T) {
	p := DefaultPolicy()
	_, err := p.PlanValues("2024-01-01", "last tuesday", nil, now)
	assert.Error(t, err)

	_, err = p.PlanValues(3.14, nil, nil, now)
	assert.Error(t, err)
}

func TestShouldFreeze(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		name      string
		ref       *time.Time
		lastA     *time.Time
		lastB     *time.Time
		unchanged int
		want      bool
	}{
		{"too_young", daysAgo(364), daysAgo(1), daysAgo(1), 10, false},
		{"never_fetched", daysAgo(1000), nil, nil, 10, false},
		{"unstable", daysAgo(1000), daysAgo(1), nil, 2, false},
		{"eligible_a_only", daysAgo(365), daysAgo(1), nil, 3, true},
		{"eligible_b_only", daysAgo(2000), nil, daysAgo(5), 7, true},
		{"unknown_age", nil, daysAgo(1), daysAgo(1), 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldFreeze(tt.ref, tt.lastA, tt.lastB, tt.unchanged, now))
		})
	}
}

func TestShouldFreeze_Modes(t *testing.T) {
	age := DefaultPolicy()
	age.Freeze.Mode = FreezeAge
	assert.True(t, age.ShouldFreeze(daysAgo(400), daysAgo(1), nil, 0, now))
	assert.False(t, age.ShouldFreeze(daysAgo(400), nil, nil, 0, now))
	assert.False(t, age.ShouldFreeze(daysAgo(100), daysAgo(1), nil, 0, now))

	off := DefaultPolicy()
	off.Freeze.Mode = FreezeOff
	assert.False(t, off.ShouldFreeze(daysAgo(4000), daysAgo(1), daysAgo(1), 100, now))
}
