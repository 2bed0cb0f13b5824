package load

import (
	"time"

	"github.com/samber/lo"
)

type Status string

const (
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// TableReport counts what a load did to one table.
type TableReport struct {
	Table     string `json:"table"`
	Inserted  int64  `json:"inserted"`
	Closed    int64  `json:"closed"`
	Upserted  int64  `json:"upserted"`
	Unchanged int64  `json:"unchanged"`
	Removed   int64  `json:"removed"`
	Rejected  int64  `json:"rejected"`
}

// Rejection is a fact row that was skipped because a reference could not be
// resolved. The rest of the batch is unaffected.
type Rejection struct {
	Table  string `json:"table"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type Report struct {
	BatchID    string         `json:"batch_id"`
	IngestedAt time.Time      `json:"ingested_at"`
	Status     Status         `json:"status"`
	State      State          `json:"state"`
	Error      string         `json:"error,omitempty"`
	History    []Transition   `json:"history"`
	Tables     []*TableReport `json:"tables"`
	Rejections []Rejection    `json:"rejections,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Table returns the counters of the named table, creating them on first use.
func (r *Report) Table(name string) *TableReport {
	if tr, ok := lo.Find(r.Tables, func(tr *TableReport) bool { return tr.Table == name }); ok {
		return tr
	}
	tr := &TableReport{Table: name}
	r.Tables = append(r.Tables, tr)
	return tr
}

func (r *Report) reject(table, key, reason string) {
	r.Table(table).Rejected++
	r.Rejections = append(r.Rejections, Rejection{Table: table, Key: key, Reason: reason})
}

func (r *Report) Committed() bool {
	return r.Status == StatusCommitted
}

// Duration is the wall time the load took.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
