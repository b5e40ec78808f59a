package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// batch is an upsert batch flattened to a fixed column order. Key columns
// come first.
type batch struct {
	columns []string
	keys    []string
	values  [][]any
}

// keyValues returns the key values of row i.
func (b *batch) keyValues(i int) []any {
	return b.values[i][:len(b.keys)]
}

// newBatch validates rows and flattens them. Every row must carry a non-nil
// value for each key column. The column set is the union over all rows;
// missing values are nil. Rows repeating a key collapse to the last one.
// Returns nil for an empty batch.
func newBatch(table string, rows []Row, keys []string) (*batch, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if len(keys) == 0 {
		return nil, eris.Errorf("store: upsert %s: no key columns", table)
	}

	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	colSet := make(map[string]bool)
	for _, r := range rows {
		for c := range r {
			if !keySet[c] {
				colSet[c] = true
			}
		}
	}
	rest := make([]string, 0, len(colSet))
	for c := range colSet {
		rest = append(rest, c)
	}
	sort.Strings(rest)
	columns := append(append([]string{}, keys...), rest...)

	b := &batch{columns: columns, keys: keys}
	index := make(map[string]int, len(rows))
	for i, r := range rows {
		vals := make([]any, len(columns))
		for j, c := range columns {
			vals[j] = r[c]
		}
		id, err := keyString(vals[:len(keys)])
		if err != nil {
			return nil, eris.Wrapf(err, "store: upsert %s: row %d", table, i)
		}
		if pos, ok := index[id]; ok {
			b.values[pos] = vals
			continue
		}
		index[id] = len(b.values)
		b.values = append(b.values, vals)
	}
	return b, nil
}

func keyString(vals []any) (string, error) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		if v == nil {
			return "", eris.New("nil key value")
		}
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "\x00"), nil
}
