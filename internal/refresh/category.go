// Package refresh decides which movies are due for a source fetch: age
// categories, per-source refresh intervals, freeze eligibility and the
// storage prefilter that selects refresh candidates.
package refresh

import (
	"math"
	"time"
)

// Category is a movie's age bucket.
type Category int

const (
	Recent Category = iota
	Established
	Mature
	Archived
)

// Categories lists every category from youngest to oldest.
var Categories = []Category{Recent, Established, Mature, Archived}

func (c Category) String() string {
	switch c {
	case Recent:
		return "RECENT"
	case Established:
		return "ESTABLISHED"
	case Mature:
		return "MATURE"
	case Archived:
		return "ARCHIVED"
	default:
		return "UNKNOWN"
	}
}

// Source identifies one external data source.
type Source int

const (
	// SourceA is the primary catalog (TMDB).
	SourceA Source = iota
	// SourceB is the secondary ratings source (OMDb).
	SourceB
)

func (s Source) String() string {
	switch s {
	case SourceA:
		return "tmdb"
	case SourceB:
		return "omdb"
	default:
		return "unknown"
	}
}

const day = 24 * time.Hour

// AgeDays returns the whole days elapsed from ref to now, rounded down.
func AgeDays(ref, now time.Time) int {
	return int(math.Floor(now.Sub(ref).Hours() / 24))
}
