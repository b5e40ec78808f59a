package model

import (
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp normalizes a stored or fetched timestamp to a UTC time.
// It accepts time.Time, *time.Time, sql.NullTime, ISO-8601 strings with or
// without an offset, and nil. Values without an offset are taken as UTC.
// A nil or empty input returns nil.
func ParseTimestamp(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if t.IsZero() {
			return nil, nil
		}
		u := t.UTC()
		return &u, nil
	case *time.Time:
		if t == nil {
			return nil, nil
		}
		return ParseTimestamp(*t)
	case sql.NullTime:
		if !t.Valid {
			return nil, nil
		}
		return ParseTimestamp(t.Time)
	case []byte:
		return ParseTimestamp(string(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				u := parsed.UTC()
				return &u, nil
			}
		}
		return nil, eris.Errorf("model: unparseable timestamp %q", s)
	default:
		return nil, eris.Errorf("model: unsupported timestamp type %T", v)
	}
}

// Date returns the UTC midnight of t.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
