package worker

import (
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/skretail/console/pkg/config"
	"github.com/skretail/console/pkg/jobs"
	"github.com/skretail/console/pkg/models"
	"github.com/skretail/console/pkg/session"
	"github.com/skretail/console/pkg/upload"
	"github.com/uptrace/bun"
)

var processID = randStringBytes(8)

type Worker struct {
	config *config.Config
	log    logger.Logger

	processFuncs map[string]func(ctx context.Context, job *models.Job) error

	jobService *jobs.Service
	sessions   *session.Service

	queue          chan *models.Job
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, db *bun.DB, sessions *session.Service) *Worker {
	w := &Worker{
		config: cfg,
		log:    logger.New(),

		jobService: jobs.NewService(db),
		sessions:   sessions,

		queue:          make(chan *models.Job, cfg.WorkerProcesses),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
	}

	w.processFuncs = map[string]func(ctx context.Context, job *models.Job) error{
		models.JobTypeUpload: w.ProcessUploadJob,
	}

	return w
}

// Start fails whatever a previous process left half done, then begins
// polling for pending jobs.
func (w *Worker) Start() {
	n, err := w.jobService.FailInterrupted(context.Background(), processID)
	if err != nil {
		w.log.Err(err).Error("fail interrupted jobs error")
	} else if n > 0 {
		w.log.Warn("failed interrupted uploads", logger.Data{"count": n})
	}

	go w.fetchJobs()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processJobs()
	}
}

func (w *Worker) fetchJobs() {
	duration := w.config.WorkerPollInterval
	timer := time.NewTimer(duration)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more jobs to the queue.
			timer.Stop()
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			ctx := context.Background()
			j, err := w.jobService.ListJobs(ctx, jobs.ListJobsOptions{
				Limit:    pointerutil.Int(w.config.WorkerProcesses),
				Statuses: []string{models.JobStatusPending},
			})
			if err != nil {
				w.log.Err(err).Error("list jobs error")
				timer.Reset(duration)
				continue
			}
			for _, job := range j {
				claimed, err := w.jobService.ClaimJob(ctx, job, processID)
				if err != nil {
					w.log.Err(err).Error("claim job error")
					continue
				}
				if !claimed {
					continue
				}
				select {
				case w.queue <- job:
				case <-w.shutdown:
					// Leave it in progress; the next process fails it on start.
					w.doneFetching <- struct{}{}
					return
				}
			}
			timer.Reset(duration)
		}
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case job := <-w.queue:
			// Prep the context to be passed down to the process function.
			id, err := uuid.NewRandom()
			if err != nil {
				w.log.Err(err).Error("new uuid error")
				continue
			}
			log := w.log.ID(id.String()).Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": processID})
			ctx := log.WithContext(context.Background())

			fn, ok := w.processFuncs[job.Type]
			if !ok {
				err = errors.Errorf("no process function for job type %q", job.Type)
			} else {
				err = fn(ctx, job)
			}

			if err != nil {
				log.Err(err).Error("process error")
				job.Status = models.JobStatusFailed
				job.Error = pointerutil.String(err.Error())
				err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
					Columns: []string{"status", "error"},
				})
			} else {
				// Completed jobs are never picked up again.
				job.Status = models.JobStatusCompleted
				job.Progress = 100
				err = w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
					Columns: []string{"status", "progress"},
				})
			}
			if err != nil {
				log.Err(err).Error("update job error")
			}
		}
	}
}

// ProcessUploadJob sends the job's CSV to the backend one batch at a time as
// the operator who queued it, saving the running result after every batch.
// The stored file is removed once the upload ends either way.
func (w *Worker) ProcessUploadJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)

	data, ok := job.DataParsed.(*models.JobUploadData)
	if !ok {
		return errors.Errorf("upload job %d has no upload data", job.ID)
	}
	defer func() {
		if err := os.Remove(data.FilePath); err != nil && !os.IsNotExist(err) {
			log.Err(err).Warn("failed to remove uploaded file", logger.Data{"path": data.FilePath})
		}
	}()

	f, err := os.Open(data.FilePath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	log.Info("starting upload", logger.Data{"entity": data.Entity, "file_name": data.FileName, "file_size": data.FileSize})

	pipeline := upload.NewPipeline(w.sessions.Requester(data.SessionID), w.config.UploadChunkSize)
	res, runErr := pipeline.Run(ctx, f, data.FileSize, upload.Endpoint(data.Entity), func(res *upload.Result) {
		if err := w.jobService.SaveProgress(ctx, job, res); err != nil {
			log.Err(err).Error("save upload progress error")
		}
	})

	// The records are written once, with the finished flag and, on abort, the
	// message.
	if err := w.jobService.SaveResult(ctx, job, res); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	log.Info("finished upload", logger.Data{
		"valid":  len(res.ValidRecords),
		"errors": len(res.ErrorRecords),
	})
	return nil
}

func (w *Worker) Shutdown() {
	close(w.shutdown)

	<-w.doneFetching
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
}

const letterBytes = "abcdef0123456789"

func randStringBytes(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Intn(len(letterBytes))]
	}
	return string(b)
}
