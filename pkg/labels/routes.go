package labels

import (
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/skretail/console/pkg/config"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers label routes on an authenticated group.
func RegisterRoutesWithGroup(g *echo.Group, cfg *config.Config, db *bun.DB) {
	h := &handler{
		labelService: NewService(db, DocumentDir(cfg), cfg.PrintResetDelay),
	}

	g.GET("/printed", h.printed)
	g.GET("/documents", h.documents)
	g.GET("/documents/:id", h.document)
	g.GET("/:code", h.retrieve)
	g.POST("/:code/print", h.print)
}

func DocumentDir(cfg *config.Config) string {
	return filepath.Join(cfg.CacheDir, "labels")
}
