package dispatch

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/auth"
	"github.com/skretail/console/pkg/binder"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, fb *fakeBackend) *echo.Echo {
	t.Helper()
	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	requester := apiclient.New(fb.URL).WithTokens(staticTokens{"access"})
	g := e.Group("/dispatch", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth.SetSession(c, &models.Session{ID: "sess-1", UserEmail: "ops@example.com"}, requester)
			return next(c)
		}
	})
	RegisterRoutesWithGroup(g, NewRegistry(time.Hour, 0))
	return e
}

func call(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

func decodeScan(t *testing.T, rr *httptest.ResponseRecorder) *Scan {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	scan := &Scan{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), scan))
	return scan
}

func TestHandlers_ScanFlow(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	e := newTestServer(t, fb)

	scan := decodeScan(t, call(e, http.MethodGet, "/dispatch/scan", ""))
	assert.Equal(t, FieldItem, scan.Focus)

	decodeScan(t, call(e, http.MethodPost, "/dispatch/scan/item", `{"value":"FSN1"}`))
	decodeScan(t, call(e, http.MethodPost, "/dispatch/scan/label", `{"value":"LABEL5"}`))
	scan = decodeScan(t, call(e, http.MethodPost, "/dispatch/scan/sku", `{"value":"SKU1"}`))
	assert.True(t, scan.SaveEnabled)

	scan = decodeScan(t, call(e, http.MethodPost, "/dispatch/scan/save", ""))
	require.NotNil(t, scan.Toast)
	assert.Equal(t, "Dispatch saved successfully", scan.Toast.Message)

	scan = decodeScan(t, call(e, http.MethodDelete, "/dispatch/scan", ""))
	assert.Equal(t, StatusEmpty, scan.Item.Status)
}

func TestHandlers_ErrorModal(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	e := newTestServer(t, fb)

	scan := decodeScan(t, call(e, http.MethodPost, "/dispatch/scan/item", `{"value":"NOPE"}`))
	require.NotNil(t, scan.Modal)
	assert.Equal(t, "error", scan.Modal.Sound)

	rr := call(e, http.MethodPost, "/dispatch/scan/item", `{"value":"FSN1"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	scan = decodeScan(t, call(e, http.MethodPost, "/dispatch/scan/acknowledge", ""))
	assert.Nil(t, scan.Modal)
}

func TestHandlers_Validation(t *testing.T) {
	t.Parallel()
	fb := newFakeBackend(t)
	e := newTestServer(t, fb)

	rr := call(e, http.MethodPost, "/dispatch/scan/mrp", `{"value":"X"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = call(e, http.MethodPost, "/dispatch/scan/item", `{"value":"  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `\"value\" is required`)

	rr = call(e, http.MethodPost, "/dispatch/scan/save", "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}
