package auth

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/models"
	"github.com/skretail/console/pkg/session"
)

const (
	contextKeySession   = "session"
	contextKeyRequester = "requester"
)

// Middleware provides authentication middleware.
type Middleware struct {
	authService *Service
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(authService *Service) *Middleware {
	return &Middleware{
		authService: authService,
	}
}

// Authenticate checks the cookie, makes sure its session still exists and
// still holds an access token, and puts the session and an authenticated
// backend client on the context. Otherwise it returns 401.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		cookie, err := c.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			return errcodes.Unauthorized("Authentication required")
		}

		claims, err := m.authService.ValidateToken(cookie.Value)
		if err != nil {
			return errcodes.Unauthorized("Invalid or expired token")
		}

		sess, err := m.authService.sessions.Retrieve(ctx, claims.SessionID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				m.authService.ended(claims.SessionID)
				return errcodes.Unauthorized("Session has ended")
			}
			return errors.WithStack(err)
		}
		if sess.AccessToken == "" {
			m.authService.ended(sess.ID)
			return errcodes.Unauthorized("")
		}

		c.Set(contextKeySession, sess)
		c.Set(contextKeyRequester, m.authService.sessions.Requester(sess.ID))

		return next(c)
	}
}

// SessionFromContext returns the session set by Authenticate.
func SessionFromContext(c echo.Context) *models.Session {
	sess, _ := c.Get(contextKeySession).(*models.Session)
	return sess
}

// RequesterFromContext returns the authenticated backend client set by
// Authenticate.
func RequesterFromContext(c echo.Context) apiclient.Requester {
	r, _ := c.Get(contextKeyRequester).(apiclient.Requester)
	return r
}

// SetSession puts sess on the context the same way Authenticate does.
// Handlers in other packages use it in tests.
func SetSession(c echo.Context, sess *models.Session, requester apiclient.Requester) {
	c.Set(contextKeySession, sess)
	c.Set(contextKeyRequester, requester)
}
