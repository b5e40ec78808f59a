package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"

	"github.com/rotisserie/eris"
)

// Record is a flat row of canonical column names to scalar values. Source
// adapters produce one per fetched entity; the store reads and writes them.
type Record map[string]any

// FetchedAtColumn is stamped by adapters at fetch time. It is excluded from
// content hashes.
const FetchedAtColumn = "last_updated_utc"

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns returns the record's column names in no particular order.
func (r Record) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	return cols
}

// Hash returns the hex SHA-256 of the record's content, excluding the fetch
// stamp and any ignored columns. Keys are hashed in sorted order, so equal
// content gives equal hashes.
func (r Record) Hash(ignore ...string) (string, error) {
	content := make(map[string]any, len(r))
	for k, v := range r {
		if k == FetchedAtColumn || slices.Contains(ignore, k) {
			continue
		}
		content[k] = v
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", eris.Wrap(err, "model: hash record")
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// String returns the value at key as a string, or "" when absent or not text.
func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}
