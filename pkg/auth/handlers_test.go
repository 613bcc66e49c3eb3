package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/binder"
	"github.com/skretail/console/pkg/config"
	"github.com/skretail/console/pkg/database"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/migrations"
	"github.com/skretail/console/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	e        *echo.Echo
	auth     *Service
	sessions *session.Service
	valid    *atomic.Bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	valid := &atomic.Bool{}
	valid.Store(true)
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accessToken":"a","refreshToken":"r","user":{"email":"ops@example.com"}}`))
	})
	mux.HandleFunc("/auth/signup", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/auth/validate", func(w http.ResponseWriter, _ *http.Request) {
		if !valid.Load() {
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	db, err := database.New(config.NewForTest())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	sessions := session.NewService(session.NewBunStore(db), apiclient.New(backend.URL))

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle
	authService := NewService(sessions, "test-secret")
	RegisterRoutes(e, authService)

	return &testEnv{e: e, auth: authService, sessions: sessions, valid: valid}
}

func (env *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
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
	env.e.ServeHTTP(rr, req)
	return rr
}

func sessionCookieFrom(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLoginAndMe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cookie := sessionCookieFrom(t, rr)
	assert.True(t, cookie.HttpOnly)
	assert.NotContains(t, rr.Body.String(), `"a"`, "backend tokens stay on the server")

	rr = env.do(http.MethodGet, "/auth/me", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	me := MeResponse{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, "ops@example.com", me.Email)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"auth_error"`)
	assert.Contains(t, rr.Body.String(), "Invalid credentials")
}

func TestLogin_ValidatesPayload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"secret"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `"email" is not a valid email`)
}

func TestSignup(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/signup", `{"email":"new@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestMe_RequiresCookie(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(http.MethodGet, "/auth/me", "", &http.Cookie{Name: CookieName, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid or expired token")
}

func TestLogout_IsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookieFrom(t, rr)
	ended := []string{}
	env.auth.OnLogout(func(id string) { ended = append(ended, id) })

	for i := 0; i < 2; i++ {
		rr = env.do(http.MethodPost, "/auth/logout", "", cookie)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, -1, sessionCookieFrom(t, rr).MaxAge)
	}

	assert.Len(t, ended, 2)

	rr = env.do(http.MethodGet, "/auth/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "Session has ended")

	rr = env.do(http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestValidate_DropsRejectedSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookieFrom(t, rr)
	ended := []string{}
	env.auth.OnLogout(func(id string) { ended = append(ended, id) })

	rr = env.do(http.MethodGet, "/auth/validate", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"valid":true}`, rr.Body.String())
	assert.Empty(t, ended)

	env.valid.Store(false)
	rr = env.do(http.MethodGet, "/auth/validate", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"valid":false}`, rr.Body.String())

	require.Len(t, ended, 1)

	rr = env.do(http.MethodGet, "/auth/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), "User not authenticated")
	assert.Len(t, ended, 2, "requests on the dead session end it again")
	assert.Equal(t, ended[0], ended[1])
}

func TestAuthenticate_EndsVanishedSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookieFrom(t, rr)
	claims, err := env.auth.ValidateToken(cookie.Value)
	require.NoError(t, err)

	ended := []string{}
	env.auth.OnLogout(func(id string) { ended = append(ended, id) })

	// The row is removed behind the console's back, e.g. by another process.
	require.NoError(t, env.sessions.Logout(context.Background(), claims.SessionID))

	rr = env.do(http.MethodGet, "/auth/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, []string{claims.SessionID}, ended)
}

func TestValidateToken_RejectsOtherSecrets(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	other := NewService(env.sessions, "other-secret")
	svc := NewService(env.sessions, "test-secret")

	sess, err := env.sessions.Login(context.Background(), "ops@example.com", "secret")
	require.NoError(t, err)
	token, err := other.GenerateToken(sess)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)

	claims, err := other.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, claims.SessionID)
}
