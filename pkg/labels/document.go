package labels

import (
	"bytes"
	"image"
	"image/png"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
)

const (
	contentWidthPx  = LabelWidth - 2*marginLeftPx
	contentHeightPx = 516
	marginLeftPx    = 3
	marginTopPx     = 10
)

// Page geometry in points, converted from CSS pixels at 96 DPI.
var (
	PageWidth     = pxToPt(LabelWidth)
	PageHeight    = pxToPt(LabelHeight)
	ContentX      = pxToPt(marginLeftPx)
	ContentY      = pxToPt(marginTopPx)
	ContentWidth  = pxToPt(contentWidthPx)
	ContentHeight = pxToPt(contentHeightPx)
)

func init() {
	// pdfcpu would otherwise create a config directory under $HOME.
	api.DisableConfigDir()
}

func pxToPt(px float64) float64 {
	return px * 72 / 96
}

// Document is a single-page label PDF.
type Document struct {
	Bytes     []byte
	PageCount int
}

// NewDocument places img on a label-sized page and checks the result with
// pdfcpu before handing it out.
func NewDocument(img image.Image) (*Document, error) {
	var raster bytes.Buffer
	if err := png.Encode(&raster, img); err != nil {
		return nil, errors.WithStack(err)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: PageWidth, Ht: PageHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("console", false)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("label", opts, &raster)
	pdf.ImageOptions("label", ContentX, ContentY, ContentWidth, ContentHeight, false, opts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, errors.Wrap(err, "failed to write label pdf")
	}

	conf := model.NewDefaultConfiguration()
	if err := api.Validate(bytes.NewReader(out.Bytes()), conf); err != nil {
		return nil, errors.Wrap(err, "generated label pdf is invalid")
	}
	pages, err := api.PageCount(bytes.NewReader(out.Bytes()), conf)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &Document{Bytes: out.Bytes(), PageCount: pages}, nil
}
