package config

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// ConsoleConfig is the subset of the config that the browser needs to drive
// the scan and upload screens.
type ConsoleConfig struct {
	UploadChunkSize      int      `json:"upload_chunk_size"`
	UploadEntities       []string `json:"upload_entities"`
	DispatchResetDelayMS int64    `json:"dispatch_reset_delay_ms"`
	PrintResetDelayMS    int64    `json:"print_reset_delay_ms"`
}

type handler struct {
	config   *Config
	entities []string
}

func (h *handler) retrieve(c echo.Context) error {
	resp := ConsoleConfig{
		UploadChunkSize:      h.config.UploadChunkSize,
		UploadEntities:       h.entities,
		DispatchResetDelayMS: h.config.DispatchResetDelay.Milliseconds(),
		PrintResetDelayMS:    h.config.PrintResetDelay.Milliseconds(),
	}
	return errors.WithStack(c.JSON(http.StatusOK, resp))
}
