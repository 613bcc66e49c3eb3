package records

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the data views. Every route requires
// authenticate.
func RegisterRoutes(e *echo.Echo, authenticate echo.MiddlewareFunc) {
	h := &handler{recordService: NewService()}

	g := e.Group("/records", authenticate)
	g.GET("/:entity", h.list)
	g.GET("/:entity/:id", h.retrieve)
	g.DELETE("/:entity/:id", h.delete)
	g.PUT("/:entity/:id", h.updateProduct)
	g.POST("/:entity/export", h.export)

	e.GET("/dispatches", h.dispatches, authenticate)
	e.GET("/dashboard", h.dashboard, authenticate)
}
