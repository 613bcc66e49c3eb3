package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers all auth routes and returns the middleware that
// protects the rest of the API.
func RegisterRoutes(e *echo.Echo, authService *Service) *Middleware {
	h := &handler{
		authService: authService,
	}
	m := NewMiddleware(authService)

	auth := e.Group("/auth")
	auth.POST("/login", h.login)
	auth.POST("/signup", h.signup)
	auth.POST("/logout", h.logout)
	auth.GET("/me", h.me, m.Authenticate)
	auth.GET("/validate", h.validate, m.Authenticate)

	return m
}
