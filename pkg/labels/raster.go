package labels

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/skretail/console/pkg/models"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Labels are laid out in CSS pixels and drawn at twice that resolution.
const (
	Scale        = 2
	LabelWidth   = 335
	LabelHeight  = 531
	CanvasWidth  = LabelWidth * Scale
	CanvasHeight = LabelHeight * Scale

	borderWidth   = 1 * Scale
	cellPadX      = 4 * Scale
	cellPadY      = 3 * Scale
	tallRowHeight = 65 * Scale
	barcodeHeight = 50 * Scale
	barcodeMargin = 2 * Scale
)

var ErrInvalidBarcode = errors.New("barcode is not a PNG or JPEG image")

var (
	regularOnce sync.Once
	regularFont *opentype.Font
	regularErr  error
)

func loadFont() (*opentype.Font, error) {
	regularOnce.Do(func() {
		regularFont, regularErr = opentype.Parse(goregular.TTF)
	})
	return regularFont, errors.WithStack(regularErr)
}

// faces are not safe for concurrent use, so every Rasterize call opens its
// own.
type faces struct {
	body      font.Face
	small     font.Face
	caption   font.Face
	closeable []font.Face
}

func openFaces(variant string) (*faces, error) {
	f, err := loadFont()
	if err != nil {
		return nil, err
	}
	bodySize := 13.0
	if variant == models.LabelLayoutReview {
		bodySize = 12
	}
	fs := &faces{}
	for _, fc := range []struct {
		size float64
		dst  *font.Face
	}{
		{bodySize, &fs.body},
		{11, &fs.small},
		{15, &fs.caption},
	} {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{
			Size:    fc.size * Scale,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			fs.Close()
			return nil, errors.WithStack(err)
		}
		*fc.dst = face
		fs.closeable = append(fs.closeable, face)
	}
	return fs, nil
}

func (fs *faces) Close() {
	for _, f := range fs.closeable {
		_ = f.Close()
	}
}

type canvas struct {
	img   *image.RGBA
	ink   *image.Uniform
	left  int
	mid   int
	right int
	y     int
}

// Rasterize draws t as a CanvasWidth by CanvasHeight image on white.
func Rasterize(t *Template) (*image.RGBA, error) {
	fs, err := openFaces(t.Variant)
	if err != nil {
		return nil, err
	}
	defer fs.Close()

	img := image.NewRGBA(image.Rect(0, 0, CanvasWidth, CanvasHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	c := &canvas{
		img:   img,
		ink:   image.NewUniform(color.Black),
		left:  0,
		mid:   CanvasWidth * 40 / 100,
		right: CanvasWidth - borderWidth,
	}

	for _, r := range t.Rows {
		c.row(fs.body, r.Label, r.Value, r.Tall)
	}
	if t.Complaints != nil {
		c.complaints(fs, t.Complaints)
	}
	if t.ReviewText != "" {
		c.fullRow(fs.body, t.ReviewText)
	}
	if err := c.barcode(fs, t); err != nil {
		return nil, err
	}

	return img, nil
}

func (c *canvas) hline(y, x0, x1 int) {
	draw.Draw(c.img, image.Rect(x0, y, x1+borderWidth, y+borderWidth), c.ink, image.Point{}, draw.Src)
}

func (c *canvas) vline(x, y0, y1 int) {
	draw.Draw(c.img, image.Rect(x, y0, x+borderWidth, y1), c.ink, image.Point{}, draw.Src)
}

func (c *canvas) text(face font.Face, s string, x, top int) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  c.ink,
		Face: face,
		Dot:  fixed.P(x, top+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

func (c *canvas) centered(face font.Face, s string, top int) {
	w := font.MeasureString(face, s).Ceil()
	c.text(face, s, (CanvasWidth-w)/2, top)
}

func lineHeight(face font.Face) int {
	return face.Metrics().Height.Ceil()
}

func (c *canvas) row(face font.Face, label, value string, tall bool) {
	labels := wrap(face, label, c.mid-c.left-2*cellPadX)
	values := wrap(face, value, c.right-c.mid-2*cellPadX)
	lines := max(len(labels), len(values), 1)
	h := lines*lineHeight(face) + 2*cellPadY
	if tall && h < tallRowHeight {
		h = tallRowHeight
	}

	top := c.y
	c.hline(top, c.left, c.right)
	for i, l := range labels {
		c.text(face, l, c.left+borderWidth+cellPadX, top+borderWidth+cellPadY+i*lineHeight(face))
	}
	for i, v := range values {
		c.text(face, v, c.mid+borderWidth+cellPadX, top+borderWidth+cellPadY+i*lineHeight(face))
	}
	bottom := top + borderWidth + h
	c.vline(c.left, top, bottom)
	c.vline(c.mid, top, bottom)
	c.vline(c.right, top, bottom)
	c.y = bottom
}

// complaints draws the heading once on the left, spanning one right-hand
// line per contact detail.
func (c *canvas) complaints(fs *faces, comp *Complaints) {
	top := c.y
	headings := wrap(fs.small, comp.Heading(), c.mid-c.left-2*cellPadX)
	for _, line := range comp.Lines() {
		values := wrap(fs.small, line, c.right-c.mid-2*cellPadX)
		h := len(values)*lineHeight(fs.small) + 2*cellPadY
		c.hline(c.y, c.mid, c.right)
		for i, v := range values {
			c.text(fs.small, v, c.mid+borderWidth+cellPadX, c.y+borderWidth+cellPadY+i*lineHeight(fs.small))
		}
		c.y += borderWidth + h
	}
	minBottom := top + borderWidth + len(headings)*lineHeight(fs.small) + 2*cellPadY
	if c.y < minBottom {
		c.y = minBottom
	}
	c.hline(top, c.left, c.mid)
	span := c.y - top
	headingTop := top + (span-len(headings)*lineHeight(fs.small))/2
	for i, l := range headings {
		c.text(fs.small, l, c.left+borderWidth+cellPadX, headingTop+i*lineHeight(fs.small))
	}
	c.vline(c.left, top, c.y)
	c.vline(c.mid, top, c.y)
	c.vline(c.right, top, c.y)
}

func (c *canvas) fullRow(face font.Face, s string) {
	lines := wrap(face, s, c.right-c.left-2*cellPadX)
	top := c.y
	c.hline(top, c.left, c.right)
	for i, l := range lines {
		c.centered(face, l, top+borderWidth+cellPadY+i*lineHeight(face))
	}
	c.y = top + borderWidth + len(lines)*lineHeight(face) + 2*cellPadY
	c.vline(c.left, top, c.y)
	c.vline(c.right, top, c.y)
}

func (c *canvas) barcode(fs *faces, t *Template) error {
	top := c.y
	c.hline(top, c.left, c.right)
	y := top + borderWidth + barcodeMargin

	if t.Barcode == "" {
		c.text(fs.body, "No Barcode", c.left+borderWidth+cellPadX, y)
		y += lineHeight(fs.body)
	} else {
		src, err := DecodeBarcode(t.Barcode)
		if err != nil {
			return err
		}
		w := (c.right - c.left) * 75 / 100
		x := (CanvasWidth - w) / 2
		dst := image.Rect(x, y, x+w, y+barcodeHeight)
		draw.BiLinear.Scale(c.img, dst, src, src.Bounds(), draw.Over, nil)
		y += barcodeHeight + barcodeMargin
		c.centered(fs.caption, t.Caption, y)
		y += lineHeight(fs.caption)
	}

	bottom := y + cellPadY
	c.vline(c.left, top, bottom)
	c.vline(c.right, top, bottom)
	c.hline(bottom, c.left, c.right)
	c.y = bottom + borderWidth
	return nil
}

// DecodeBarcode decodes a base64 barcode image, with or without a data URL
// prefix.
func DecodeBarcode(encoded string) (image.Image, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidBarcode, err.Error())
	}
	mt := mimetype.Detect(b)
	if !mt.Is("image/png") && !mt.Is("image/jpeg") {
		return nil, errors.Wrapf(ErrInvalidBarcode, "got %s", mt.String())
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidBarcode, err.Error())
	}
	return img, nil
}

// wrap breaks s into lines no wider than width, splitting words that are
// wider than a whole line.
func wrap(face font.Face, s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	fits := func(s string) bool {
		return font.MeasureString(face, s).Ceil() <= width
	}

	lines := []string{}
	current := ""
	for _, w := range words {
		candidate := w
		if current != "" {
			candidate = current + " " + w
		}
		if fits(candidate) {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
			current = ""
		}
		rs := []rune(w)
		for !fits(string(rs)) {
			n := len(rs)
			for n > 1 && !fits(string(rs[:n])) {
				n--
			}
			lines = append(lines, string(rs[:n]))
			rs = rs[n:]
		}
		current = string(rs)
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
