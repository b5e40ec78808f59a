package model

import "time"

// RunStatus is the state of a collection cycle in the run log.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// CycleStats are the counts one collection cycle reports.
type CycleStats struct {
	Discovered     int `json:"discovered"`
	SourceAUpdated int `json:"source_a_updated"`
	SourceBUpdated int `json:"source_b_updated"`
	Frozen         int `json:"frozen"`
}

// Run is one entry of the collection run log.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Stats       CycleStats `json:"stats"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns the elapsed time of a finished run, or zero.
func (r Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
