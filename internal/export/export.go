// Package export writes the catalog, joined with the latest TMDB and OMDb
// details, as CSV or XLSX.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/moviesync/internal/model"
	"github.com/sells-group/moviesync/internal/store"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", s)
	}
}

// Columns is the export column order.
var Columns = []string{
	"tmdb_id",
	"imdb_id",
	"title",
	"release_date",
	"frozen",
	"last_full_refresh",
	"genres",
	"runtime",
	"vote_average",
	"vote_count",
	"popularity",
	"imdb_rating",
	"imdb_votes",
	"metascore",
	"rotten_tomatoes_rating",
	"box_office",
}

// SheetName is the worksheet XLSX exports write to.
const SheetName = "movies"

const query = `SELECT m.tmdb_id, m.imdb_id, m.title, m.release_date, m.frozen, m.last_full_refresh,
	t.genres, t.runtime, t.vote_average, t.vote_count, t.popularity,
	o.imdb_rating, o.imdb_votes, o.metascore, o.rotten_tomatoes_rating, o.box_office
FROM ` + model.MoviesTable + ` m
LEFT JOIN ` + model.TMDBTable + ` t ON t.tmdb_id = m.tmdb_id
LEFT JOIN ` + model.OMDBTable + ` o ON o.imdb_id = m.imdb_id
ORDER BY m.tmdb_id`

// Rows reads every movie with its joined detail columns.
func Rows(ctx context.Context, g store.Gateway) ([]store.Row, error) {
	rows, err := g.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "export: query movies")
	}
	// Drivers disagree on boolean columns.
	for _, r := range rows {
		r["frozen"] = model.Bool(r["frozen"])
	}
	return rows, nil
}

// Write encodes rows to w in the given format.
func Write(w io.Writer, format Format, rows []store.Row) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, rows)
	case FormatXLSX:
		return writeXLSX(w, rows)
	default:
		return eris.Errorf("export: unsupported format %q", format)
	}
}

func writeCSV(w io.Writer, rows []store.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	record := make([]string, len(Columns))
	for _, r := range rows {
		for i, col := range Columns {
			record[i] = text(r[col])
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "export: write csv row %v", r["tmdb_id"])
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return nil
}

func writeXLSX(w io.Writer, rows []store.Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns {
		header.AddCell().SetString(col)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, col := range Columns {
			setCell(row.AddCell(), r[col])
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

// setCell keeps numbers numeric so spreadsheets can sort and sum them.
func setCell(c *xlsx.Cell, v any) {
	switch x := v.(type) {
	case nil:
		c.SetString("")
	case int64:
		c.SetInt64(x)
	case int:
		c.SetInt64(int64(x))
	case int32:
		c.SetInt64(int64(x))
	case float64:
		c.SetFloat(x)
	case float32:
		c.SetFloat(float64(x))
	default:
		c.SetString(text(v))
	}
}

// text renders one stored value. Midnight timestamps are dates.
func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		x = x.UTC()
		if x.Equal(x.Truncate(24 * time.Hour)) {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
