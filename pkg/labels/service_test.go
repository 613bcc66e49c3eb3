package labels

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/migrations"
	"github.com/skretail/console/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

type tokens struct{}

func (tokens) AccessToken(context.Context) (string, error) { return "access", nil }
func (tokens) Refresh(context.Context) (string, error)     { return "", apiclient.ErrNoRefreshToken }

type labelBackend struct {
	*httptest.Server
	mu       sync.Mutex
	records  map[string]string
	auditErr int
	audits   []map[string]string
}

func newLabelBackend(t *testing.T) *labelBackend {
	t.Helper()
	lb := &labelBackend{records: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mrp/get-data-by-id", func(w http.ResponseWriter, r *http.Request) {
		body, ok := lb.records[r.URL.Query().Get("id")]
		if !ok {
			body = `[]`
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("POST /mrp/saveprintdetails", func(w http.ResponseWriter, r *http.Request) {
		lb.mu.Lock()
		defer lb.mu.Unlock()
		if lb.auditErr != 0 {
			w.WriteHeader(lb.auditErr)
			_, _ = w.Write([]byte(`{"message":"Audit store offline"}`))
			return
		}
		b, _ := io.ReadAll(r.Body)
		audit := map[string]string{}
		_ = json.Unmarshal(b, &audit)
		lb.audits = append(lb.audits, audit)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("GET /mrp/getprintedmrp", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"corporatecode":"FSN123","brand":"Acme"}]`))
	})
	lb.Server = httptest.NewServer(mux)
	t.Cleanup(lb.Close)
	return lb
}

func newTestService(t *testing.T) (*Service, *labelBackend, apiclient.Requester) {
	t.Helper()
	lb := newLabelBackend(t)
	svc := NewService(newTestDB(t), t.TempDir(), 2*time.Second)
	svc.now = func() time.Time { return printedAt }
	client := apiclient.New(lb.URL).WithTokens(tokens{})
	return svc, lb, client
}

const fullRecord = `[{
	"fsn": "FSN123",
	"sku": "SKU-1",
	"name_of_the_commodity": "Steel Bottle",
	"brand": "Acme",
	"mrp": "₹499",
	"month_and_year_of_manufacture": "01/2020"
}]`

func TestPrint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, lb, client := newTestService(t)
	lb.records["FSN123"] = fullRecord

	out, err := svc.Print(ctx, client, "FSN123", "op@example.com")
	require.NoError(t, err)

	assert.True(t, out.AuditSaved)
	assert.Equal(t, "Print details saved successfully", out.Message)
	assert.EqualValues(t, 2000, out.ResetAfterMS)
	assert.Equal(t, " 499", out.Template.Rows[2].Value, "non-ASCII is replaced before drawing")

	require.Len(t, lb.audits, 1)
	assert.Equal(t, map[string]string{
		"corporatecode":   "FSN123",
		"brand":           "Acme",
		"manufacturedate": "01/2020",
		"createdDate":     "2026-10-16T09:00:00.000Z",
	}, lb.audits[0])

	b, err := os.ReadFile(out.Document.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(b[:4]))

	stored, err := svc.RetrieveDocument(ctx, out.Document.ID, "op@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.LabelLayoutStandard, stored.Layout)
	assert.Equal(t, 1, stored.PageCount)
	assert.True(t, stored.AuditSaved)
	assert.Nil(t, stored.AuditError)
}

func TestPrint_AuditMissingFieldsStillPrints(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, lb, client := newTestService(t)
	lb.records["FSN9"] = `[{"fsn":"FSN9","sku":"S"}]`

	out, err := svc.Print(ctx, client, "FSN9", "op@example.com")
	require.NoError(t, err)
	assert.False(t, out.AuditSaved)
	assert.Equal(t, "Missing data fields for saving print details", out.Message)
	assert.Zero(t, out.ResetAfterMS)
	assert.Empty(t, lb.audits)

	stored, err := svc.RetrieveDocument(ctx, out.Document.ID, "op@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.AuditError)
	assert.Equal(t, out.Message, *stored.AuditError)
}

func TestPrint_AuditRejected(t *testing.T) {
	t.Parallel()
	svc, lb, client := newTestService(t)
	lb.records["FSN123"] = fullRecord
	lb.auditErr = http.StatusInternalServerError

	out, err := svc.Print(context.Background(), client, "FSN123", "op@example.com")
	require.NoError(t, err)
	assert.False(t, out.AuditSaved)
	assert.Equal(t, "Audit store offline", out.Message)
}

func TestPrint_NotFound(t *testing.T) {
	t.Parallel()
	svc, _, client := newTestService(t)

	_, err := svc.Print(context.Background(), client, "NOPE", "op@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Preview(context.Background(), client, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPreview(t *testing.T) {
	t.Parallel()
	svc, lb, client := newTestService(t)
	lb.records["FSN123"] = fullRecord

	p, err := svc.Preview(context.Background(), client, "FSN123")
	require.NoError(t, err)
	assert.Equal(t, "FSN123", p.Record.String("fsn"))
	assert.Equal(t, "₹499", p.Template.Rows[2].Value)
	assert.Empty(t, lb.audits)
}

func TestRetrieveDocument_ScopedToOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, lb, client := newTestService(t)
	lb.records["FSN123"] = fullRecord

	out, err := svc.Print(ctx, client, "FSN123", "op@example.com")
	require.NoError(t, err)

	_, err = svc.RetrieveDocument(ctx, out.Document.ID, "other@example.com")
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, http.StatusNotFound, ec.HTTPCode)
}

func TestListDocuments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, lb, client := newTestService(t)
	lb.records["FSN123"] = fullRecord

	for i := 0; i < 3; i++ {
		_, err := svc.Print(ctx, client, "FSN123", "op@example.com")
		require.NoError(t, err)
	}
	_, err := svc.Print(ctx, client, "FSN123", "other@example.com")
	require.NoError(t, err)

	prints, total, err := svc.ListDocuments(ctx, ListDocumentsOptions{Limit: 2, UserEmail: "op@example.com"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, prints, 2)
}

func TestListPrinted(t *testing.T) {
	t.Parallel()
	svc, _, client := newTestService(t)

	records, err := svc.ListPrinted(context.Background(), client)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Acme", records[0].String("brand"))
}
