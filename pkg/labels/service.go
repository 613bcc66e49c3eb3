package labels

import (
	"context"
	"database/sql"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/dataset"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/models"
	"github.com/uptrace/bun"
)

const (
	msgAuditSaved  = "Print details saved successfully"
	msgAuditFailed = "Error saving print details"

	// auditEntity is the upstream collection label data lives in.
	auditEntity = "mrp"
)

var (
	ErrNotFound      = errors.New("Data not found")
	ErrMissingFields = errors.New("Missing data fields for saving print details")
)

// AuditFields is the print-audit record sent upstream after a label is
// printed.
type AuditFields struct {
	CorporateCode   string `json:"corporatecode"`
	Brand           string `json:"brand"`
	ManufactureDate string `json:"manufacturedate"`
	CreatedDate     string `json:"createdDate"`
}

// ExtractAudit picks the audit fields out of rec, falling back between the
// standard and review field names.
func ExtractAudit(rec *dataset.Record, now time.Time) (*AuditFields, error) {
	a := &AuditFields{
		CorporateCode:   rec.First("fsn", "asin"),
		Brand:           rec.First("brand", "marketed_by"),
		ManufactureDate: rec.First("month_and_year_of_manufacture", "date_of_manufacture"),
		CreatedDate:     now.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
	if a.CorporateCode == "" || a.Brand == "" || a.ManufactureDate == "" {
		return nil, ErrMissingFields
	}
	return a, nil
}

// Preview is a looked-up record with the label it would print.
type Preview struct {
	Record   *dataset.Record `json:"record"`
	Template *Template       `json:"template"`
}

// PrintOutcome reports on both halves of a print. The document exists even
// when the audit save failed.
type PrintOutcome struct {
	Document   *models.LabelPrint `json:"document"`
	Template   *Template          `json:"template"`
	AuditSaved bool               `json:"audit_saved"`
	Message    string             `json:"message"`
	// ResetAfterMS is when the console clears the lookup field after a
	// saved audit.
	ResetAfterMS int64 `json:"reset_after_ms,omitempty"`
}

type Service struct {
	db         *bun.DB
	dir        string
	resetDelay time.Duration
	now        func() time.Time
}

func NewService(db *bun.DB, dir string, resetDelay time.Duration) *Service {
	return &Service{db: db, dir: dir, resetDelay: resetDelay, now: time.Now}
}

// Lookup fetches the label record for code. The backend answers with a list;
// only the first record is used.
func (svc *Service) Lookup(ctx context.Context, client apiclient.Requester, code string) (*dataset.Record, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	var raw []byte
	err := client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/" + auditEntity + "/get-data-by-id",
		Query:  url.Values{"id": {code}},
	}, &raw)
	if err != nil {
		logger.FromContext(ctx).Info("label lookup failed", logger.Data{"code": code, "error": err.Error()})
		return nil, ErrNotFound
	}
	records, err := dataset.Decode(raw)
	if err != nil || len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (svc *Service) Preview(ctx context.Context, client apiclient.Requester, code string) (*Preview, error) {
	rec, err := svc.Lookup(ctx, client, code)
	if err != nil {
		return nil, err
	}
	return &Preview{Record: rec, Template: Layout(rec, svc.now())}, nil
}

// Print renders the label for code into a stored PDF, then saves the
// print-audit record upstream.
func (svc *Service) Print(ctx context.Context, client apiclient.Requester, code, userEmail string) (*PrintOutcome, error) {
	log := logger.FromContext(ctx)
	now := svc.now()

	rec, err := svc.Lookup(ctx, client, code)
	if err != nil {
		return nil, err
	}

	tmpl := Sanitize(Layout(rec, now))
	img, err := Rasterize(tmpl)
	if err != nil {
		return nil, err
	}
	doc, err := NewDocument(img)
	if err != nil {
		return nil, err
	}

	lp := &models.LabelPrint{
		ID:        uuid.New().String(),
		CreatedAt: now,
		Code:      code,
		Entity:    auditEntity,
		Layout:    tmpl.Variant,
		PageCount: doc.PageCount,
		UserEmail: userEmail,
	}
	if err := os.MkdirAll(svc.dir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	lp.FilePath = filepath.Join(svc.dir, lp.ID+".pdf")
	if err := os.WriteFile(lp.FilePath, doc.Bytes, 0o644); err != nil {
		return nil, errors.WithStack(err)
	}
	if _, err := svc.db.NewInsert().Model(lp).Exec(ctx); err != nil {
		_ = os.Remove(lp.FilePath)
		return nil, errors.WithStack(err)
	}
	log.Info("label printed", logger.Data{"code": code, "document_id": lp.ID, "layout": lp.Layout})

	out := &PrintOutcome{Document: lp, Template: tmpl}
	if err := svc.saveAudit(ctx, client, rec, now); err != nil {
		msg := auditMessage(err)
		out.Message = msg
		lp.AuditError = &msg
		log.Warn("print audit not saved", logger.Data{"code": code, "error": err.Error()})
	} else {
		out.AuditSaved = true
		out.Message = msgAuditSaved
		out.ResetAfterMS = svc.resetDelay.Milliseconds()
		lp.AuditSaved = true
	}

	_, err = svc.db.NewUpdate().
		Model(lp).
		Column("audit_saved", "audit_error").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return out, nil
}

func (svc *Service) saveAudit(ctx context.Context, client apiclient.Requester, rec *dataset.Record, now time.Time) error {
	fields, err := ExtractAudit(rec, now)
	if err != nil {
		return err
	}
	return client.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/" + auditEntity + "/saveprintdetails",
		Body:   fields,
	}, nil)
}

func auditMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return ErrMissingFields.Error()
	case errors.Is(err, apiclient.ErrUnauthenticated), errors.Is(err, apiclient.ErrNoRefreshToken):
		return apiclient.ErrUnauthenticated.Error()
	}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 && apiErr.Message != "" {
		return apiErr.Message
	}
	return msgAuditFailed
}

// RetrieveDocument returns a stored label document owned by userEmail.
func (svc *Service) RetrieveDocument(ctx context.Context, id, userEmail string) (*models.LabelPrint, error) {
	lp := &models.LabelPrint{}
	err := svc.db.NewSelect().
		Model(lp).
		Where("lp.id = ?", id).
		Where("lp.user_email = ?", userEmail).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Label document")
		}
		return nil, errors.WithStack(err)
	}
	return lp, nil
}

type ListDocumentsOptions struct {
	Limit     int
	Offset    int
	UserEmail string
}

// ListDocuments returns the operator's most recent prints first.
func (svc *Service) ListDocuments(ctx context.Context, opts ListDocumentsOptions) ([]*models.LabelPrint, int, error) {
	prints := []*models.LabelPrint{}
	total, err := svc.db.NewSelect().
		Model(&prints).
		Where("lp.user_email = ?", opts.UserEmail).
		Order("lp.created_at DESC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return prints, total, nil
}

// ListPrinted returns the upstream print-audit log.
func (svc *Service) ListPrinted(ctx context.Context, client apiclient.Requester) ([]*dataset.Record, error) {
	var raw []byte
	err := client.Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/" + auditEntity + "/getprintedmrp",
	}, &raw)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	records, err := dataset.Decode(raw)
	if err != nil {
		return nil, errors.Wrap(err, "unreadable printed label list")
	}
	return records, nil
}
