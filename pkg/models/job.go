package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeUpload = "upload"
)

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID           int         `bun:",pk,nullzero" json:"id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Type         string      `bun:",nullzero" json:"type"`
	Status       string      `bun:",nullzero" json:"status"`
	Data         string      `bun:",nullzero" json:"-"`
	DataParsed   interface{} `bun:"-" json:"data"`
	Progress     int         `json:"progress"`
	ProcessID    *string     `json:"process_id,omitempty"`
	UserEmail    string      `bun:",nullzero" json:"user_email"`
	Error        *string     `json:"error,omitempty"`
	Summary      *string     `json:"-"`
	Result       *string     `json:"-"`
	ResultParsed interface{} `bun:"-" json:"result,omitempty"`
}

func (job *Job) UnmarshalData() error {
	switch job.Type {
	case JobTypeUpload:
		job.DataParsed = &JobUploadData{}
	default:
		return errors.Errorf("unknown job type %q", job.Type)
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// JobUploadData describes a CSV file waiting to be sent to the backend in
// batches.
type JobUploadData struct {
	Entity    string `json:"entity"`
	FilePath  string `json:"-"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	SessionID string `json:"-"`
}

// jobUploadDataStored keeps the server-only fields when persisting.
type jobUploadDataStored struct {
	Entity    string `json:"entity"`
	FilePath  string `json:"file_path"`
	FileName  string `json:"file_name"`
	FileSize  int64  `json:"file_size"`
	SessionID string `json:"session_id"`
}

// EncodeUploadData serializes the data for the jobs.data column.
func EncodeUploadData(data *JobUploadData) (string, error) {
	b, err := json.Marshal(jobUploadDataStored(*data))
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(b), nil
}

func (d *JobUploadData) UnmarshalJSON(b []byte) error {
	stored := jobUploadDataStored{}
	if err := json.Unmarshal(b, &stored); err != nil {
		return errors.WithStack(err)
	}
	*d = JobUploadData(stored)
	return nil
}
