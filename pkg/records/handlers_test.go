package records

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/auth"
	"github.com/skretail/console/pkg/binder"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, rb *recordsBackend) *echo.Echo {
	t.Helper()
	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	requester := newTestClient(rb)
	RegisterRoutes(e, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth.SetSession(c, &models.Session{ID: "sess-1", UserEmail: "ops@example.com"}, requester)
			return next(c)
		}
	})
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

func TestHandlers_List(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, newRecordsBackend(t))

	rr := call(e, http.MethodGet, "/records/products?search=blue&limit=1", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := struct {
		Records []map[string]interface{} `json:"records"`
		Total   int                      `json:"total"`
	}{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "SKU-BLUE", resp.Records[0]["skucode"])

	rr = call(e, http.MethodGet, "/dispatches", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = call(e, http.MethodGet, "/records/users", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = call(e, http.MethodGet, "/records/products?limit=500", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandlers_Export(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, newRecordsBackend(t))

	rr := call(e, http.MethodPost, "/records/products/export", `{"selected":["2"]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Header().Get(echo.HeaderContentDisposition), "skretail_products_export.csv")
	assert.True(t, strings.HasPrefix(rr.Body.String(), `"id","corporatecode","skucode","imageurl","updated_at"`))

	rr = call(e, http.MethodPost, "/records/products/export", `{"selected":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "No items selected for export.")
}

func TestHandlers_UpdateProduct(t *testing.T) {
	t.Parallel()
	rb := newRecordsBackend(t)
	e := newTestServer(t, rb)

	rr := call(e, http.MethodPut, "/records/products/FSN-A", `{"skucode":" new-sku ","imageurl":"https://img.example.com/a.png"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, rb.updates, 1)
	assert.Contains(t, rb.updates[0], `"skucode":"new-sku"`)

	rr = call(e, http.MethodPut, "/records/products/FSN-A", `{"skucode":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestHandlers_DeleteAndDashboard(t *testing.T) {
	t.Parallel()
	rb := newRecordsBackend(t)
	e := newTestServer(t, rb)

	rr := call(e, http.MethodDelete, "/records/products/FSN-B", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"FSN-B"}, rb.deleted)

	rr = call(e, http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"product_count":42`)
}

func TestHandlers_UpdateOnlyProducts(t *testing.T) {
	t.Parallel()
	e := newTestServer(t, newRecordsBackend(t))

	rr := call(e, http.MethodPut, "/records/mrp/FSN1", `{"skucode":"x"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
