package jobs

import (
	"path/filepath"

	"github.com/labstack/echo/v4"
	"github.com/skretail/console/pkg/config"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers upload routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, cfg *config.Config, db *bun.DB) {
	h := &handler{
		jobService: NewService(db),
		uploadDir:  UploadDir(cfg),
	}

	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.retrieve)
	g.GET("/:id/export", h.export)
}

func UploadDir(cfg *config.Config) string {
	return filepath.Join(cfg.CacheDir, "uploads")
}
