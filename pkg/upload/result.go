package upload

import (
	"io"

	"github.com/skretail/console/pkg/dataset"
)

const (
	StatusColumn  = "upload_status"
	StatusSuccess = "success"
	DefaultReason = "Duplicate in database"
)

// reasonKeys are checked in order for why the backend rejected a row.
var reasonKeys = []string{"error", "reason", "message"}

// Result is everything known about one file's upload so far.
type Result struct {
	ValidRecords    []*dataset.Record `json:"valid_records"`
	ErrorRecords    []*dataset.Record `json:"error_records"`
	Headers         []string          `json:"headers"`
	BatchesSent     int               `json:"batches_sent"`
	RowsSent        int               `json:"rows_sent"`
	ProgressPercent int               `json:"progress_percent"`
	Processing      bool              `json:"processing"`
	Err             string            `json:"error,omitempty"`

	headers dataset.HeaderSet
}

func NewResult() *Result {
	return &Result{
		ValidRecords: []*dataset.Record{},
		ErrorRecords: []*dataset.Record{},
		Headers:      []string{},
		Processing:   true,
	}
}

func (r *Result) Merge(out *BatchOutcome) {
	if r.headers.Len() == 0 && len(r.Headers) > 0 {
		r.headers.Add(r.Headers...)
	}
	for _, rec := range out.Valid {
		r.headers.Add(rec.Keys()...)
	}
	for _, rec := range out.Errors {
		r.headers.Add(rec.Keys()...)
	}
	r.Headers = r.headers.Names()
	r.ValidRecords = append(r.ValidRecords, out.Valid...)
	r.ErrorRecords = append(r.ErrorRecords, out.Errors...)
	r.BatchesSent++
	r.RowsSent += out.Sent
	if out.Progress > r.ProgressPercent {
		r.ProgressPercent = out.Progress
	}
}

// Finish marks the upload done. A clean finish forces progress to 100, an
// aborted one keeps the progress reached and records the message.
func (r *Result) Finish(err error) {
	r.Processing = false
	if err != nil {
		r.Err = err.Error()
		return
	}
	r.ProgressPercent = 100
}

// ExportHeader is the union header plus the status column.
func (r *Result) ExportHeader() []string {
	h := dataset.HeaderSet{}
	h.Add(r.Headers...)
	h.Add(StatusColumn)
	return h.Names()
}

// ExportCSV writes valid rows tagged "success" followed by rejected rows
// tagged with their reason.
func (r *Result) ExportCSV(w io.Writer) error {
	rows := make([]*dataset.Record, 0, len(r.ValidRecords)+len(r.ErrorRecords))
	for _, rec := range r.ValidRecords {
		c := rec.Clone()
		c.Set(StatusColumn, StatusSuccess)
		rows = append(rows, c)
	}
	for _, rec := range r.ErrorRecords {
		c := rec.Clone()
		c.Set(StatusColumn, Reason(rec))
		rows = append(rows, c)
	}
	return dataset.WriteCSV(w, r.ExportHeader(), rows)
}

// Reason is why the backend rejected rec.
func Reason(rec *dataset.Record) string {
	if s := rec.First(reasonKeys...); s != "" {
		return s
	}
	return DefaultReason
}
