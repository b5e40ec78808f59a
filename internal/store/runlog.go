package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/moviesync/internal/model"
)

// RunLog provides read/write access to the collection_runs table.
type RunLog struct {
	g   Gateway
	now func() time.Time
}

// NewRunLog creates a RunLog backed by the given gateway.
func NewRunLog(g Gateway) *RunLog {
	return &RunLog{g: g, now: time.Now}
}

func (l *RunLog) stamp() time.Time {
	return l.now().UTC().Truncate(time.Second)
}

// Start records the beginning of a collection cycle and returns its ID.
func (l *RunLog) Start(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := l.g.Exec(ctx,
		`INSERT INTO collection_runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), l.stamp(),
	)
	if err != nil {
		return "", eris.Wrap(err, "runlog: start run")
	}
	return id, nil
}

// Complete marks a run as finished and stores its statistics.
func (l *RunLog) Complete(ctx context.Context, id string, stats model.CycleStats) error {
	_, err := l.g.Exec(ctx,
		`UPDATE collection_runs
		 SET status = ?, completed_at = ?, discovered = ?, source_a_updated = ?, source_b_updated = ?, frozen = ?
		 WHERE id = ?`,
		string(model.RunStatusComplete), l.stamp(),
		stats.Discovered, stats.SourceAUpdated, stats.SourceBUpdated, stats.Frozen,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", id)
	}
	return nil
}

// Fail marks a run as failed with an error message. Partial statistics are
// kept.
func (l *RunLog) Fail(ctx context.Context, id string, stats model.CycleStats, errMsg string) error {
	_, err := l.g.Exec(ctx,
		`UPDATE collection_runs
		 SET status = ?, completed_at = ?, discovered = ?, source_a_updated = ?, source_b_updated = ?, frozen = ?, error = ?
		 WHERE id = ?`,
		string(model.RunStatusFailed), l.stamp(),
		stats.Discovered, stats.SourceAUpdated, stats.SourceBUpdated, stats.Frozen, errMsg,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", id)
	}
	return nil
}

// List returns up to limit runs, most recent first. A limit <= 0 returns all.
func (l *RunLog) List(ctx context.Context, limit int) ([]model.Run, error) {
	q := `SELECT id, status, started_at, completed_at, discovered, source_a_updated, source_b_updated, frozen, error
		FROM collection_runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.g.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}

	runs := make([]model.Run, 0, len(rows))
	for _, r := range rows {
		run, err := runFromRow(r)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func runFromRow(r Row) (model.Run, error) {
	run := model.Run{
		ID:     r.String("id"),
		Status: model.RunStatus(r.String("status")),
		Error:  r.String("error"),
	}

	started, err := model.ParseTimestamp(r["started_at"])
	if err != nil {
		return model.Run{}, eris.Wrapf(err, "runlog: run %s started_at", run.ID)
	}
	if started != nil {
		run.StartedAt = *started
	}
	if run.CompletedAt, err = model.ParseTimestamp(r["completed_at"]); err != nil {
		return model.Run{}, eris.Wrapf(err, "runlog: run %s completed_at", run.ID)
	}

	for col, dst := range map[string]*int{
		"discovered":       &run.Stats.Discovered,
		"source_a_updated": &run.Stats.SourceAUpdated,
		"source_b_updated": &run.Stats.SourceBUpdated,
		"frozen":           &run.Stats.Frozen,
	} {
		n, err := model.Int64(r[col])
		if err != nil {
			return model.Run{}, eris.Wrapf(err, "runlog: run %s %s", run.ID, col)
		}
		*dst = int(n)
	}
	return run, nil
}
