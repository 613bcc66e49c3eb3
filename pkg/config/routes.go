package config

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithAuth registers config routes behind the given
// authentication middleware.
func RegisterRoutesWithAuth(e *echo.Echo, cfg *Config, entities []string, authenticate echo.MiddlewareFunc) {
	h := &handler{config: cfg, entities: entities}

	configGroup := e.Group("/config")
	configGroup.Use(authenticate)
	configGroup.GET("", h.retrieve)
}
