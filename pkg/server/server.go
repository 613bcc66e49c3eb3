package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/skretail/console/pkg/auth"
	"github.com/skretail/console/pkg/binder"
	"github.com/skretail/console/pkg/config"
	"github.com/skretail/console/pkg/dispatch"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/jobs"
	"github.com/skretail/console/pkg/labels"
	"github.com/skretail/console/pkg/records"
	"github.com/skretail/console/pkg/session"
	"github.com/skretail/console/pkg/upload"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB, sessions *session.Service) (*http.Server, error) {
	e, err := NewEcho(cfg, db, sessions)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

// NewEcho builds the console's router with every route registered.
func NewEcho(cfg *config.Config, db *bun.DB, sessions *session.Service) (*echo.Echo, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(corsMiddleware(cfg))

	health.RegisterRoutes(e)

	authService := auth.NewService(sessions, cfg.JWTSecret)
	authMiddleware := auth.RegisterRoutes(e, authService)

	registerProtectedRoutes(e, db, cfg, authService, authMiddleware)

	config.RegisterRoutesWithAuth(e, cfg, upload.Entities, authMiddleware.Authenticate)

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	return e, nil
}

// corsMiddleware lets the browser console send its session cookie when it
// is served from another origin.
func corsMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.FrontendURL == "" {
		return middleware.CORS()
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowCredentials: true,
	})
}

func registerProtectedRoutes(e *echo.Echo, db *bun.DB, cfg *config.Config, authService *auth.Service, authMiddleware *auth.Middleware) {
	// Uploads
	uploadsGroup := e.Group("/uploads")
	uploadsGroup.Use(authMiddleware.Authenticate)
	jobs.RegisterRoutesWithGroup(uploadsGroup, cfg, db)

	// Dispatch scans live as long as the console session.
	registry := dispatch.NewRegistry(cfg.DispatchResetDelay, cfg.DispatchIdleTimeout)
	authService.OnLogout(registry.Drop)
	dispatchGroup := e.Group("/dispatch")
	dispatchGroup.Use(authMiddleware.Authenticate)
	dispatch.RegisterRoutesWithGroup(dispatchGroup, registry)

	// Labels
	labelsGroup := e.Group("/labels")
	labelsGroup.Use(authMiddleware.Authenticate)
	labels.RegisterRoutesWithGroup(labelsGroup, cfg, db)

	// Records, dispatch history and the dashboard
	records.RegisterRoutes(e, authMiddleware.Authenticate)
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
