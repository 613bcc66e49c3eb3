package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/skretail/console/pkg/models"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "console_session"
	// CookieMaxAge is how long the cookie is valid.
	CookieMaxAge = TokenExpiry
)

type handler struct {
	authService *Service
}

func buildMeResponse(sess *models.Session) MeResponse {
	resp := MeResponse{
		Email:           sess.UserEmail,
		LastValidatedAt: sess.LastValidatedAt,
	}
	if sess.User != "" && json.Valid([]byte(sess.User)) {
		resp.User = json.RawMessage(sess.User)
	}
	return resp
}

func sessionCookie(c echo.Context, value string, maxAge time.Duration) *http.Cookie {
	age := int(maxAge.Seconds())
	if maxAge < 0 {
		age = -1
	}
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   age,
		HttpOnly: true,
		Secure:   c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *handler) login(c echo.Context) error {
	ctx := c.Request().Context()

	params := LoginPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	sess, err := h.authService.Login(ctx, params.Email, params.Password)
	if err != nil {
		return err
	}

	token, err := h.authService.GenerateToken(sess)
	if err != nil {
		return errors.WithStack(err)
	}
	c.SetCookie(sessionCookie(c, token, CookieMaxAge))

	return errors.WithStack(c.JSON(http.StatusOK, buildMeResponse(sess)))
}

func (h *handler) signup(c echo.Context) error {
	ctx := c.Request().Context()

	params := SignupPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	if err := h.authService.Signup(ctx, params.Email, params.Password); err != nil {
		return err
	}

	return errors.WithStack(c.JSON(http.StatusCreated, map[string]string{"message": "Signup successful"}))
}

// logout always succeeds. A cookie for a session that is already gone just
// gets cleared.
func (h *handler) logout(c echo.Context) error {
	ctx := c.Request().Context()

	if cookie, err := c.Cookie(CookieName); err == nil && cookie.Value != "" {
		if claims, err := h.authService.ValidateToken(cookie.Value); err == nil {
			if err := h.authService.Logout(ctx, claims.SessionID); err != nil {
				logger.FromContext(ctx).Err(err).Warn("failed to delete session on logout")
			}
		}
	}

	c.SetCookie(sessionCookie(c, "", -1))

	return errors.WithStack(c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"}))
}

func (h *handler) me(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, buildMeResponse(SessionFromContext(c))))
}

func (h *handler) validate(c echo.Context) error {
	ctx := c.Request().Context()
	sess := SessionFromContext(c)

	valid, err := h.authService.sessions.Validate(ctx, sess.ID)
	if err != nil {
		return errors.WithStack(err)
	}
	if !valid {
		h.authService.ended(sess.ID)
	}

	return errors.WithStack(c.JSON(http.StatusOK, ValidateResponse{Valid: valid}))
}
