package labels

import (
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/skretail/console/pkg/auth"
	"github.com/skretail/console/pkg/errcodes"
	"github.com/skretail/console/pkg/models"
)

type handler struct {
	labelService *Service
}

// lookupError turns lookup and render failures into responses.
func lookupError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return &errcodes.Error{HTTPCode: http.StatusNotFound, Message: ErrNotFound.Error(), Code: "not_found"}
	case errors.Is(err, ErrInvalidBarcode):
		return errcodes.ValidationError(err.Error())
	}
	return errors.WithStack(err)
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	preview, err := h.labelService.Preview(ctx, auth.RequesterFromContext(c), c.Param("code"))
	if err != nil {
		return lookupError(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, preview))
}

func (h *handler) print(c echo.Context) error {
	ctx := c.Request().Context()
	sess := auth.SessionFromContext(c)

	out, err := h.labelService.Print(ctx, auth.RequesterFromContext(c), c.Param("code"), sess.UserEmail)
	if err != nil {
		return lookupError(err)
	}

	return errors.WithStack(c.JSON(http.StatusCreated, out))
}

func (h *handler) document(c echo.Context) error {
	ctx := c.Request().Context()
	sess := auth.SessionFromContext(c)

	lp, err := h.labelService.RetrieveDocument(ctx, c.Param("id"), sess.UserEmail)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := os.Stat(lp.FilePath); err != nil {
		if os.IsNotExist(err) {
			return errcodes.NotFound("Label document")
		}
		return errors.WithStack(err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", lp.Code+".pdf"))
	return errors.WithStack(c.File(lp.FilePath))
}

func (h *handler) documents(c echo.Context) error {
	ctx := c.Request().Context()
	sess := auth.SessionFromContext(c)

	params := ListDocumentsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	prints, total, err := h.labelService.ListDocuments(ctx, ListDocumentsOptions{
		Limit:     params.Limit,
		Offset:    params.Offset,
		UserEmail: sess.UserEmail,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Documents []*models.LabelPrint `json:"documents"`
		Total     int                  `json:"total"`
	}{prints, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) printed(c echo.Context) error {
	ctx := c.Request().Context()

	records, err := h.labelService.ListPrinted(ctx, auth.RequesterFromContext(c))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, records))
}
