package compose

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/blingblang/atlas-fluvial/pkg/config"
	"github.com/blingblang/atlas-fluvial/pkg/model"
)

// ErrBadImage indicates the map raster could not be decoded or embedded.
// A bad input must fail the run, never produce a blank page.
var ErrBadImage = errors.New("map image cannot be embedded")

// Embedded-library timestamps are pinned so identical inputs always
// yield byte-identical documents.
var fixedDocDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// cultureSections is the fixed narrative content of page 2.
var cultureSections = [6]string{
	"Lorem ipsum dolor sit amet, consectetur adipiscing elit.",
	"Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
	"Ut enim ad minim veniam, quis nostrud exercitation ullamco.",
	"Duis aute irure dolor in reprehenderit in voluptate velit.",
	"Excepteur sint occaecat cupidatat non proident, sunt in culpa.",
	"Qui officia deserunt mollit anim id est laborum.",
}

const (
	pageMargin  = 20.0 // mm
	titleHeight = 18.0
	photoLabel  = "[Stock Photo]"
)

// Composer turns a rendered map and a trigger timestamp into the
// two-page document. It is a pure function of its inputs.
type Composer struct {
	pageSize model.PageSize
	mapLabel string
}

// New creates a Composer. The map label is a configuration constant,
// not derived data.
func New(cfg *config.DocumentConfig) *Composer {
	return &Composer{
		pageSize: model.PageA4,
		mapLabel: cfg.MapLabel,
	}
}

// Compose builds the document: page 1 carries the labeled map, page 2
// the culture grid with the generation date stamp.
func (c *Composer) Compose(m *model.RenderedMap, generatedAt time.Time) (*model.ComposedArtifact, error) {
	if m == nil || len(m.PNG) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrBadImage)
	}

	imgCfg, err := png.DecodeConfig(bytes.NewReader(m.PNG))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false) // keep content streams inspectable
	pdf.SetCreationDate(fixedDocDate)
	pdf.SetModificationDate(fixedDocDate)
	pdf.SetProducer("atlaspdf", false)

	c.addMapPage(pdf, m.PNG, imgCfg.Width, imgCfg.Height)
	c.addCulturePage(pdf, generatedAt)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}

	return &model.ComposedArtifact{
		PDF:       buf.Bytes(),
		PageCount: 2,
	}, nil
}

func (c *Composer) addMapPage(pdf *fpdf.Fpdf, img []byte, imgW, imgH int) {
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, titleHeight, c.mapLabel, "", 1, "C", false, 0, "")

	// Aspect-scale the raster into the content area below the title.
	areaTop := pageMargin + titleHeight
	maxW := c.pageSize.WidthMM - 2*pageMargin
	maxH := c.pageSize.HeightMM - areaTop - pageMargin

	scale := min(maxW/float64(imgW), maxH/float64(imgH))
	w := float64(imgW) * scale
	h := float64(imgH) * scale
	x := (c.pageSize.WidthMM - w) / 2
	y := areaTop + (maxH-h)/2

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("map", opts, bytes.NewReader(img))
	pdf.ImageOptions("map", x, y, w, h, false, opts, 0, "")
}

func (c *Composer) addCulturePage(pdf *fpdf.Fpdf, generatedAt time.Time) {
	pdf.AddPage()

	pdf.SetFont("Helvetica", "", 12)
	stamp := "Updated on " + generatedAt.UTC().Format("2006-01-02")
	pdf.SetXY(pageMargin, 12)
	pdf.CellFormat(0, 8, stamp, "", 1, "C", false, 0, "")

	// 2x3 grid of bordered sections, each with template text on top and
	// a grey photo placeholder band at the bottom.
	gridTop := 30.0
	cellW := (c.pageSize.WidthMM - 2*pageMargin) / 2
	cellH := (c.pageSize.HeightMM - gridTop - pageMargin) / 3

	for row := 0; row < 3; row++ {
		for col := 0; col < 2; col++ {
			x := pageMargin + float64(col)*cellW
			y := gridTop + float64(row)*cellH
			boxW := cellW - 5
			boxH := cellH - 5

			pdf.SetDrawColor(0, 0, 0)
			pdf.Rect(x, y, boxW, boxH, "D")

			pdf.SetFont("Helvetica", "", 10)
			pdf.SetXY(x+3, y+4)
			pdf.MultiCell(boxW-6, 5, cultureSections[row*2+col], "", "L", false)

			photoH := boxH * 0.4
			photoY := y + boxH - photoH - 3
			pdf.SetFillColor(211, 211, 211)
			pdf.Rect(x+3, photoY, boxW-6, photoH, "F")

			pdf.SetTextColor(0, 0, 0)
			pdf.SetXY(x+3, photoY+photoH/2-3)
			pdf.CellFormat(boxW-6, 6, photoLabel, "", 0, "C", false, 0, "")
		}
	}
}
