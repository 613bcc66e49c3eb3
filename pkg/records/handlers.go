package records

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/skretail/console/pkg/auth"
	"github.com/skretail/console/pkg/dataset"
	"github.com/skretail/console/pkg/errcodes"
)

type handler struct {
	recordService *Service
}

type listResponse struct {
	Records []*dataset.Record `json:"records"`
	Total   int               `json:"total"`
}

func (h *handler) listEntity(c echo.Context, e *Entity) error {
	ctx := c.Request().Context()

	params := ListRecordsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	recs, total, err := h.recordService.List(ctx, auth.RequesterFromContext(c), e, ListOptions{
		Search: params.Search,
		Limit:  params.Limit,
		Offset: params.Offset,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, listResponse{recs, total}))
}

func (h *handler) list(c echo.Context) error {
	e, err := LookupEntity(c.Param("entity"))
	if err != nil {
		return err
	}
	return h.listEntity(c, e)
}

func (h *handler) dispatches(c echo.Context) error {
	return h.listEntity(c, entities["dispatches"])
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()
	e, err := LookupEntity(c.Param("entity"))
	if err != nil {
		return err
	}

	rec, err := h.recordService.Retrieve(ctx, auth.RequesterFromContext(c), e, c.Param("id"))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, rec))
}

func (h *handler) delete(c echo.Context) error {
	ctx := c.Request().Context()
	e, err := LookupEntity(c.Param("entity"))
	if err != nil {
		return err
	}

	if err := h.recordService.Delete(ctx, auth.RequesterFromContext(c), e, c.Param("id")); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.NoContent(http.StatusNoContent))
}

// updateProduct only exists for products.
func (h *handler) updateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	if c.Param("entity") != "products" {
		return errcodes.NotFound("Entity")
	}

	params := UpdateProductPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	rec, err := h.recordService.UpdateProduct(ctx, auth.RequesterFromContext(c), c.Param("id"), ProductUpdate{
		SKUCode:  params.SKUCode,
		ImageURL: params.ImageURL,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, rec))
}

func (h *handler) export(c echo.Context) error {
	ctx := c.Request().Context()
	e, err := LookupEntity(c.Param("entity"))
	if err != nil {
		return err
	}

	params := ExportPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	var buf bytes.Buffer
	if err := h.recordService.Export(ctx, auth.RequesterFromContext(c), e, params.Selected, &buf); err != nil {
		return errors.WithStack(err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", e.ExportName))
	return errors.WithStack(c.Blob(http.StatusOK, "text/csv", buf.Bytes()))
}

func (h *handler) dashboard(c echo.Context) error {
	ctx := c.Request().Context()

	d, err := h.recordService.Dashboard(ctx, auth.RequesterFromContext(c))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, d))
}
