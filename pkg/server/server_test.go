package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/auth"
	"github.com/skretail/console/pkg/config"
	"github.com/skretail/console/pkg/database"
	"github.com/skretail/console/pkg/migrations"
	"github.com/skretail/console/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"a","refreshToken":"r","user":{"email":"ops@example.com"}}`))
	})
	mux.HandleFunc("GET /products/get-data", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"corporatecode":"FSN1","skucode":"S1"}]`))
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	cfg := config.NewForTest()
	cfg.APIBaseURL = backend.URL
	cfg.CacheDir = t.TempDir()

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	sessions := session.NewService(session.NewBunStore(db), apiclient.New(backend.URL))
	e, err := NewEcho(cfg, db, sessions)
	require.NoError(t, err)
	return e
}

func serve(e *echo.Echo, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, e *echo.Echo) *http.Cookie {
	t.Helper()
	rr := serve(e, http.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	e := newTestEcho(t)

	for _, path := range []string{"/uploads", "/dispatch/scan", "/labels/printed", "/records/products", "/dispatches", "/dashboard", "/config"} {
		rr := serve(e, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestRoutesWithSession(t *testing.T) {
	e := newTestEcho(t)
	cookie := login(t, e)

	rr := serve(e, http.MethodGet, "/records/products", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"FSN1"`)

	rr = serve(e, http.MethodGet, "/dispatch/scan", "", cookie)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(e, http.MethodGet, "/config", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"upload_entities":["products","mrp","gn","appario","coco"]`)

	rr = serve(e, http.MethodPost, "/auth/logout", "", cookie)
	assert.Less(t, rr.Code, 300)

	rr = serve(e, http.MethodGet, "/dispatch/scan", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNotFound(t *testing.T) {
	e := newTestEcho(t)

	rr := serve(e, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Page not found.")
}
