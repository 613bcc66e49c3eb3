package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/models"
	"github.com/skretail/console/pkg/upload"
	"github.com/uptrace/bun"
)

type RetrieveJobOptions struct {
	ID        *int
	UserEmail *string
	// WithRecords loads the full upload result instead of its summary.
	WithRecords bool
}

type ListJobsOptions struct {
	Limit              *int
	Offset             *int
	Statuses           []string
	UserEmail          *string
	ProcessIDToExclude *string
	NewestFirst        bool

	includeTotal bool
}

type UpdateJobOptions struct {
	Columns []string
}

// UploadSummary is the part of an upload result shown in job lists.
type UploadSummary struct {
	ValidCount  int      `json:"valid_count"`
	ErrorCount  int      `json:"error_count"`
	BatchesSent int      `json:"batches_sent"`
	RowsSent    int      `json:"rows_sent"`
	Headers     []string `json:"headers"`
	Processing  bool     `json:"processing"`
	Error       string   `json:"error,omitempty"`
}

func Summarize(res *upload.Result) *UploadSummary {
	return &UploadSummary{
		ValidCount:  len(res.ValidRecords),
		ErrorCount:  len(res.ErrorRecords),
		BatchesSent: res.BatchesSent,
		RowsSent:    res.RowsSent,
		Headers:     res.Headers,
		Processing:  res.Processing,
		Error:       res.Err,
	}
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	if job.Data == "" && job.DataParsed != nil {
		data, ok := job.DataParsed.(*models.JobUploadData)
		if !ok {
			return errors.Errorf("unsupported job data %T", job.DataParsed)
		}
		encoded, err := models.EncodeUploadData(data)
		if err != nil {
			return err
		}
		job.Data = encoded
	}

	_, err := svc.db.
		NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (svc *Service) RetrieveJob(ctx context.Context, opts RetrieveJobOptions) (*models.Job, error) {
	job := &models.Job{}

	q := svc.db.
		NewSelect().
		Model(job)

	if opts.ID != nil {
		q = q.Where("j.id = ?", *opts.ID)
	}
	if opts.UserEmail != nil {
		q = q.Where("j.user_email = ?", *opts.UserEmail)
	}

	err := q.Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Upload")
		}
		return nil, errors.WithStack(err)
	}

	if err := hydrate(job, opts.WithRecords); err != nil {
		return nil, err
	}

	return job, nil
}

func (svc *Service) ListJobs(ctx context.Context, opts ListJobsOptions) ([]*models.Job, error) {
	j, _, err := svc.listJobsWithTotal(ctx, opts)
	return j, errors.WithStack(err)
}

func (svc *Service) ListJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	opts.includeTotal = true
	return svc.listJobsWithTotal(ctx, opts)
}

func (svc *Service) listJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	jobs := []*models.Job{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&jobs)

	if opts.NewestFirst {
		q = q.Order("j.created_at DESC", "j.id DESC")
	} else {
		q = q.Order("j.created_at ASC", "j.id ASC")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.Statuses != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			for _, s := range opts.Statuses {
				sq = sq.WhereOr("j.status = ?", s)
			}
			return sq
		})
	}
	if opts.UserEmail != nil {
		q = q.Where("j.user_email = ?", *opts.UserEmail)
	}
	if opts.ProcessIDToExclude != nil {
		q = q.WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.
				Where("j.process_id IS NULL").
				WhereOr("j.process_id != ?", *opts.ProcessIDToExclude)
		})
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	for _, job := range jobs {
		if err := hydrate(job, false); err != nil {
			return nil, 0, err
		}
	}

	return jobs, total, nil
}

// ClaimJob moves a pending job to in progress for processID. It reports false
// when another worker got to it first.
func (svc *Service) ClaimJob(ctx context.Context, job *models.Job, processID string) (bool, error) {
	now := time.Now()
	res, err := svc.db.
		NewUpdate().
		Model((*models.Job)(nil)).
		Set("status = ?", models.JobStatusInProgress).
		Set("process_id = ?", processID).
		Set("updated_at = ?", now).
		Where("id = ?", job.ID).
		Where("status = ?", models.JobStatusPending).
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	if n == 0 {
		return false, nil
	}
	job.Status = models.JobStatusInProgress
	job.ProcessID = &processID
	job.UpdatedAt = now
	return true, nil
}

// FailInterrupted fails in-progress jobs owned by other processes. Those
// processes are gone, and resending their batches would upload rows twice.
func (svc *Service) FailInterrupted(ctx context.Context, processID string) (int, error) {
	res, err := svc.db.
		NewUpdate().
		Model((*models.Job)(nil)).
		Set("status = ?", models.JobStatusFailed).
		Set("error = ?", "Upload interrupted by a restart").
		Set("updated_at = ?", time.Now()).
		Where("status = ?", models.JobStatusInProgress).
		WhereGroup(" AND ", func(sq *bun.UpdateQuery) *bun.UpdateQuery {
			return sq.
				Where("process_id IS NULL").
				WhereOr("process_id != ?", processID)
		}).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return int(n), errors.WithStack(err)
}

// PruneJobs deletes completed and failed uploads last touched before cutoff.
// Pending and running uploads are never pruned.
func (svc *Service) PruneJobs(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := svc.db.
		NewDelete().
		Model((*models.Job)(nil)).
		Where("status IN (?)", bun.In([]string{models.JobStatusCompleted, models.JobStatusFailed})).
		Where("updated_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return int(n), errors.WithStack(err)
}

func (svc *Service) UpdateJob(ctx context.Context, job *models.Job, opts UpdateJobOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	now := time.Now()
	job.UpdatedAt = now
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(job).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Upload")
		}
		return errors.WithStack(err)
	}

	return nil
}

// SaveProgress stores the counters and progress of a running upload. The
// records themselves are only written by SaveResult once the upload ends.
func (svc *Service) SaveProgress(ctx context.Context, job *models.Job, res *upload.Result) error {
	if err := setSummary(job, res); err != nil {
		return err
	}
	job.Progress = res.ProgressPercent
	return svc.UpdateJob(ctx, job, UpdateJobOptions{Columns: []string{"summary", "progress"}})
}

// SaveResult stores the whole upload result with its summary and progress.
func (svc *Service) SaveResult(ctx context.Context, job *models.Job, res *upload.Result) error {
	b, err := json.Marshal(res)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := setSummary(job, res); err != nil {
		return err
	}
	s := string(b)
	job.Result = &s
	job.Progress = res.ProgressPercent
	return svc.UpdateJob(ctx, job, UpdateJobOptions{Columns: []string{"result", "summary", "progress"}})
}

func setSummary(job *models.Job, res *upload.Result) error {
	b, err := json.Marshal(Summarize(res))
	if err != nil {
		return errors.WithStack(err)
	}
	s := string(b)
	job.Summary = &s
	return nil
}

// UploadResult decodes the job's stored result.
func UploadResult(job *models.Job) (*upload.Result, error) {
	res := upload.NewResult()
	if job.Result == nil || *job.Result == "" {
		return res, nil
	}
	if err := json.Unmarshal([]byte(*job.Result), res); err != nil {
		return nil, errors.WithStack(err)
	}
	return res, nil
}

func hydrate(job *models.Job, withRecords bool) error {
	if job.Data != "" {
		if err := job.UnmarshalData(); err != nil {
			return errors.WithStack(err)
		}
	}
	if job.Result == nil {
		// A running upload only has its summary.
		if job.Summary != nil && *job.Summary != "" {
			summary := &UploadSummary{}
			if err := json.Unmarshal([]byte(*job.Summary), summary); err != nil {
				return errors.WithStack(err)
			}
			job.ResultParsed = summary
		}
		return nil
	}
	res, err := UploadResult(job)
	if err != nil {
		return err
	}
	if withRecords {
		job.ResultParsed = res
	} else {
		job.ResultParsed = Summarize(res)
	}
	return nil
}
