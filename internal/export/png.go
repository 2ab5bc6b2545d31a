/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"diarywriter/internal/gridlayout"
	"diarywriter/internal/render"
)

// DefaultDPI is the raster resolution used when none is configured.
const DefaultDPI = 150

// PNGOptions controls PNG export.
// - DPI: output resolution; DefaultDPI when zero
// - Pages: if empty, export all
// - DrawCellBorders: outline every grid slot
type PNGOptions struct {
	DPI             int
	Pages           []int
	DrawCellBorders bool
}

var (
	white     = color.RGBA{255, 255, 255, 255}
	black     = color.RGBA{0, 0, 0, 255}
	cellGrey  = color.RGBA{190, 190, 190, 255}
	errorRed  = color.RGBA{176, 0, 0, 255}
	lineSpace = 16
)

// pixelRect converts a millimeter rectangle to pixels at scale px/mm.
func pixelRect(r gridlayout.Rect, scale float64) image.Rectangle {
	s := render.Scale(r, scale)
	x0 := int(math.Round(s.X))
	y0 := int(math.Round(s.Y))
	return image.Rect(x0, y0, x0+int(math.Round(s.Width)), y0+int(math.Round(s.Height)))
}

// RenderPage rasterizes one page of tree.
func RenderPage(tree render.Tree, pg render.PageView, opt PNGOptions) (*image.RGBA, error) {
	dpi := opt.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	scale := float64(dpi) / 25.4
	pixW := int(math.Round(tree.PageWidth * scale))
	pixH := int(math.Round(tree.PageHeight * scale))
	img := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: white}, image.Point{}, draw.Src)

	if pg.Grid == nil {
		inset := int(math.Round(render.TextInsetMM * scale))
		drawBlocks(img, pg.Blocks, inset, pixW-2*inset)
		return img, nil
	}
	g := pg.Grid
	if g.HeaderText != "" {
		x := int(math.Round(g.Params.MarginLeft * scale))
		y := int(math.Round(g.Params.MarginHeader * scale / 2))
		drawText(img, g.HeaderText, x, y, black)
	}
	if !g.Layout.IsValid {
		inset := int(math.Round(render.TextInsetMM * scale))
		y := int(math.Round(30 * scale))
		for _, e := range g.Layout.Errors {
			drawText(img, e, inset, y, errorRed)
			y += lineSpace
		}
		return img, nil
	}
	for _, c := range g.Cells {
		cell := pixelRect(c.Rect, scale)
		if c.Image != nil {
			src, err := decodeResource(c.Image)
			if err != nil {
				return nil, fmt.Errorf("page %d slot %d: %w", pg.Number, c.Slot, err)
			}
			// the sub-image clips cover placements to the cell
			dst := img.SubImage(cell).(*image.RGBA)
			xdraw.CatmullRom.Scale(dst, pixelRect(c.ImageRect, scale), src, src.Bounds(), xdraw.Over, nil)
		}
		if opt.DrawCellBorders {
			strokeRect(img, cell.Min.X, cell.Min.Y, cell.Max.X-1, cell.Max.Y-1, cellGrey)
		}
	}
	return img, nil
}

// ExportPNG writes one PNG per page into outDir as <id>-page-<n>.png and
// returns the written paths.
func ExportPNG(tree render.Tree, outDir string, opt PNGOptions) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	var written []string
	for _, pg := range pageSelection(tree.Pages, func(p render.PageView) int { return p.Number }, opt.Pages) {
		img, err := RenderPage(tree, pg, opt)
		if err != nil {
			return written, err
		}
		name := filepath.Join(outDir, fmt.Sprintf("%s-page-%d.png", tree.ID, pg.Number))
		f, err := os.Create(name)
		if err != nil {
			return written, fmt.Errorf("create png: %w", err)
		}
		if err := png.Encode(f, img); err != nil {
			_ = f.Close()
			return written, fmt.Errorf("encode png: %w", err)
		}
		if err := f.Close(); err != nil {
			return written, fmt.Errorf("close png: %w", err)
		}
		written = append(written, name)
	}
	return written, nil
}

func drawBlocks(img *image.RGBA, blocks []render.Block, x, width int) {
	face := basicfont.Face7x13
	charW := face.Advance
	y := x
	for _, b := range blocks {
		indent := 0
		text := b.Text
		switch b.Kind {
		case render.BlockListItem:
			indent = 2 * charW * b.Level
			if b.Ordered {
				text = fmt.Sprintf("%d. %s", b.Index, text)
			} else {
				text = "* " + text
			}
		case render.BlockHeading:
			text = strings.ToUpper(text)
		}
		maxChars := max(1, (width-indent)/charW)
		for _, line := range wrap(text, maxChars) {
			y += lineSpace
			if y > img.Bounds().Dy()-x {
				return
			}
			drawText(img, line, x+indent, y, black)
		}
		y += lineSpace / 2
	}
}

func drawText(img *image.RGBA, s string, x, y int, col color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// wrap breaks s into lines of at most n characters at word boundaries.
func wrap(s string, n int) []string {
	var lines []string
	var cur strings.Builder
	for _, w := range strings.Fields(s) {
		for len([]rune(w)) > n {
			if cur.Len() > 0 {
				lines = append(lines, cur.String())
				cur.Reset()
			}
			r := []rune(w)
			lines = append(lines, string(r[:n]))
			w = string(r[n:])
		}
		switch {
		case cur.Len() == 0:
			cur.WriteString(w)
		case len([]rune(cur.String()))+1+len([]rune(w)) <= n:
			cur.WriteString(" ")
			cur.WriteString(w)
		default:
			lines = append(lines, cur.String())
			cur.Reset()
			cur.WriteString(w)
		}
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}
