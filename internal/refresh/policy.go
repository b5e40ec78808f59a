package refresh

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Boundaries are the inclusive upper ages, in days, of the first three
// categories. Older movies are Archived.
type Boundaries struct {
	Recent      int `yaml:"recent"`
	Established int `yaml:"established"`
	Mature      int `yaml:"mature"`
}

// Intervals are refresh intervals in days per category for one source.
type Intervals struct {
	Recent      int `yaml:"recent"`
	Established int `yaml:"established"`
	Mature      int `yaml:"mature"`
	Archived    int `yaml:"archived"`
}

// Days returns the interval for c.
func (iv Intervals) Days(c Category) int {
	switch c {
	case Recent:
		return iv.Recent
	case Established:
		return iv.Established
	case Mature:
		return iv.Mature
	default:
		return iv.Archived
	}
}

// FreezeMode selects how freeze eligibility is decided.
type FreezeMode string

const (
	// FreezeStability requires the persisted unchanged-cycle counter to reach
	// StableCycles.
	FreezeStability FreezeMode = "stability"
	// FreezeAge drops the stability requirement.
	FreezeAge FreezeMode = "age"
	// FreezeOff never freezes.
	FreezeOff FreezeMode = "off"
)

// FreezePolicy configures freeze eligibility.
type FreezePolicy struct {
	Mode         FreezeMode `yaml:"mode"`
	MinAgeDays   int        `yaml:"min_age_days"`
	StableCycles int        `yaml:"stable_cycles"`
}

// Policy holds the age boundaries, per-source intervals and freeze rules.
type Policy struct {
	Boundaries Boundaries   `yaml:"age_boundaries"`
	SourceA    Intervals    `yaml:"tmdb_intervals"`
	SourceB    Intervals    `yaml:"omdb_intervals"`
	Freeze     FreezePolicy `yaml:"freeze"`
}

// DefaultPolicy returns the standard cadence table.
func DefaultPolicy() Policy {
	return Policy{
		Boundaries: Boundaries{Recent: 60, Established: 180, Mature: 365},
		SourceA:    Intervals{Recent: 5, Established: 15, Mature: 30, Archived: 90},
		SourceB:    Intervals{Recent: 5, Established: 30, Mature: 90, Archived: 180},
		Freeze:     FreezePolicy{Mode: FreezeStability, MinAgeDays: 365, StableCycles: 3},
	}
}

// LoadPolicy reads a YAML policy file over the defaults and validates it.
// An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, eris.Wrapf(err, "refresh: read policy %s", path)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, eris.Wrapf(err, "refresh: parse policy %s", path)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, eris.Wrapf(err, "refresh: policy %s", path)
	}
	return p, nil
}

// Validate checks that boundaries increase strictly, intervals never shrink
// with age, and the primary source refreshes at least as often as the
// secondary for young movies.
func (p Policy) Validate() error {
	b := p.Boundaries
	if b.Recent <= 0 || b.Established <= b.Recent || b.Mature <= b.Established {
		return eris.Errorf("age boundaries must be positive and strictly increasing: %d, %d, %d",
			b.Recent, b.Established, b.Mature)
	}
	for _, src := range []struct {
		name string
		iv   Intervals
	}{{"tmdb", p.SourceA}, {"omdb", p.SourceB}} {
		prev := 0
		for _, c := range Categories {
			d := src.iv.Days(c)
			if d <= 0 {
				return eris.Errorf("%s interval for %s must be positive, got %d", src.name, c, d)
			}
			if d < prev {
				return eris.Errorf("%s interval for %s (%d) is shorter than the previous category (%d)",
					src.name, c, d, prev)
			}
			prev = d
		}
	}
	for _, c := range []Category{Recent, Established} {
		if p.SourceA.Days(c) > p.SourceB.Days(c) {
			return eris.Errorf("tmdb interval for %s (%d) exceeds omdb interval (%d)",
				c, p.SourceA.Days(c), p.SourceB.Days(c))
		}
	}
	switch p.Freeze.Mode {
	case FreezeStability:
		if p.Freeze.StableCycles <= 0 {
			return eris.Errorf("freeze stable_cycles must be positive in stability mode, got %d", p.Freeze.StableCycles)
		}
	case FreezeAge, FreezeOff:
	default:
		return eris.Errorf("unknown freeze mode %q", p.Freeze.Mode)
	}
	if p.Freeze.MinAgeDays < 0 {
		return eris.Errorf("freeze min_age_days must not be negative, got %d", p.Freeze.MinAgeDays)
	}
	return nil
}

// Classify returns the category of a movie released at ref. A movie with no
// known reference date is Archived.
func (p Policy) Classify(ref *time.Time, now time.Time) Category {
	if ref == nil {
		return Archived
	}
	age := AgeDays(*ref, now)
	switch {
	case age <= p.Boundaries.Recent:
		return Recent
	case age <= p.Boundaries.Established:
		return Established
	case age <= p.Boundaries.Mature:
		return Mature
	default:
		return Archived
	}
}

// Interval returns how long src data for a movie in category c stays fresh.
func (p Policy) Interval(src Source, c Category) time.Duration {
	if src == SourceA {
		return time.Duration(p.SourceA.Days(c)) * day
	}
	return time.Duration(p.SourceB.Days(c)) * day
}
