package jobs

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/skretail/console/pkg/auth"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/models"
)

type handler struct {
	jobService *Service
	uploadDir  string
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()
	sess := auth.SessionFromContext(c)

	params := CreateUploadPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	fh, ok := params.FormFiles["file"]
	if !ok || fh == nil {
		return errcodes.MissingFields(`"file" is required`)
	}

	src, err := fh.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return errors.WithStack(err)
	}
	if !isText(mt) {
		return errcodes.ValidationError(fmt.Sprintf("%q must be a CSV file, got %s", "file", mt.String()))
	}
	if seeker, ok := src.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	path := filepath.Join(h.uploadDir, uuid.New().String()+".csv")
	dst, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return errors.WithStack(err)
	}

	job := &models.Job{
		Type:      models.JobTypeUpload,
		Status:    models.JobStatusPending,
		UserEmail: sess.UserEmail,
		DataParsed: &models.JobUploadData{
			Entity:    params.Entity,
			FilePath:  path,
			FileName:  filepath.Base(fh.Filename),
			FileSize:  size,
			SessionID: sess.ID,
		},
	}
	if err := h.jobService.CreateJob(ctx, job); err != nil {
		_ = os.Remove(path)
		return errors.WithStack(err)
	}

	logger.FromContext(ctx).Info("upload queued", logger.Data{"job_id": job.ID, "entity": params.Entity, "size": size})

	job, err = h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusAccepted, job))
}

// isText accepts CSV and anything mimetype only knows as plain text, since
// spreadsheets export CSVs that don't always sniff as text/csv.
func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/csv") || m.Is("text/plain") {
			return true
		}
	}
	return false
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Upload")
	}
	sess := auth.SessionFromContext(c)

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{
		ID:          &id,
		UserEmail:   &sess.UserEmail,
		WithRecords: c.QueryParam("records") == "true",
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()
	sess := auth.SessionFromContext(c)

	params := ListUploadsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	jobs, total, err := h.jobService.ListJobsWithTotal(ctx, ListJobsOptions{
		Limit:       &params.Limit,
		Offset:      &params.Offset,
		Statuses:    params.Status,
		UserEmail:   &sess.UserEmail,
		NewestFirst: true,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Uploads []*models.Job `json:"uploads"`
		Total   int           `json:"total"`
	}{jobs, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

// export downloads every row the backend reported on, valid and rejected,
// as one CSV.
func (h *handler) export(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Upload")
	}
	sess := auth.SessionFromContext(c)

	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{
		ID:        &id,
		UserEmail: &sess.UserEmail,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	res, err := UploadResult(job)
	if err != nil {
		return errors.WithStack(err)
	}

	entity := "upload"
	if data, ok := job.DataParsed.(*models.JobUploadData); ok {
		entity = data.Entity
	}
	filename := fmt.Sprintf("%s_upload_%d_result.csv", entity, job.ID)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	resp.WriteHeader(http.StatusOK)
	return errors.WithStack(res.ExportCSV(resp))
}
