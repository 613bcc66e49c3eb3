package dispatch

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutesWithGroup registers scan routes on an authenticated group.
func RegisterRoutesWithGroup(g *echo.Group, registry *Registry) {
	h := &handler{registry: registry}

	g.GET("/scan", h.retrieve)
	g.DELETE("/scan", h.reset)
	g.POST("/scan/acknowledge", h.acknowledge)
	g.POST("/scan/save", h.save)
	g.POST("/scan/:field", h.enter)
}
