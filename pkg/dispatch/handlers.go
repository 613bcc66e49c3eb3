package dispatch

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/skretail/console/pkg/auth"
	"github.com/skretail/console/pkg/errcodes"
)

type handler struct {
	registry *Registry
}

func (h *handler) machine(c echo.Context) *Machine {
	sess := auth.SessionFromContext(c)
	return h.registry.For(sess.ID, auth.RequesterFromContext(c))
}

func (h *handler) retrieve(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, h.machine(c).Snapshot()))
}

func (h *handler) enter(c echo.Context) error {
	ctx := c.Request().Context()

	field, ok := ParseField(c.Param("field"))
	if !ok {
		return errcodes.ValidationError(fmt.Sprintf("%q must be one of the following: %q, %q, %q", "field", FieldItem, FieldLabel, FieldSKU))
	}

	params := EnterPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	scan, err := h.machine(c).Enter(ctx, field, params.Value)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, scan))
}

func (h *handler) acknowledge(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, h.machine(c).Acknowledge()))
}

func (h *handler) save(c echo.Context) error {
	ctx := c.Request().Context()

	scan, err := h.machine(c).Save(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, scan))
}

func (h *handler) reset(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, h.machine(c).Reset()))
}
