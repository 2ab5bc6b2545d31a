/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render resolves a document into a page tree with final geometry and
// turns it into HTML for the editor and for printing. Every output, including
// the exporters, draws from the same tree; none of them computes layout.
package render

import (
	"diarywriter/internal/domain"
	"diarywriter/internal/gridlayout"
)

// Tree is a fully resolved document. Lengths are millimeters on an A4 sheet.
type Tree struct {
	ID         string
	Title      string
	PageWidth  float64
	PageHeight float64
	Pages      []PageView
}

// PageView is one resolved page.
type PageView struct {
	Number int
	Kind   domain.PageKind
	Locked bool
	// HTML is the sanitized rich text of a text page.
	HTML string
	// Blocks is the plain-text structure of HTML, for outputs that cannot render markup.
	Blocks []Block
	Grid   *GridView
}

// GridView is the resolved geometry of an image-grid page.
type GridView struct {
	Params gridlayout.Params
	Fit    domain.FitMode
	// Header is sanitized HTML; HeaderText is its plain text.
	Header     string
	HeaderText string
	Layout     gridlayout.Result
	Cells      []Cell
}

// Cell is a grid slot. ImageRect is where the image is drawn; with FitCover it
// may extend past Rect and is clipped to it.
type Cell struct {
	Slot      int
	Rect      gridlayout.Rect
	Image     *domain.ImageResource
	ImageRect gridlayout.Rect
}

// Build resolves doc. Pages in locks are marked read-only.
func Build(doc *domain.Document, locks []int) Tree {
	locked := make(map[int]bool, len(locks))
	for _, n := range locks {
		locked[n] = true
	}
	t := Tree{
		ID:         doc.ID,
		Title:      doc.Title,
		PageWidth:  gridlayout.PageWidthMM,
		PageHeight: gridlayout.PageHeightMM,
		Pages:      make([]PageView, len(doc.Pages)),
	}
	for i, pg := range doc.Pages {
		n := i + 1
		v := PageView{Number: n, Kind: pg.Kind, Locked: locked[n]}
		switch {
		case pg.Kind == domain.KindImageGrid && pg.Grid != nil:
			v.Grid = buildGrid(pg.Grid)
		default:
			v.Kind = domain.KindText
			v.HTML = Sanitize(pg.HTML)
			v.Blocks = Blocks(v.HTML)
		}
		t.Pages[i] = v
	}
	return t
}

func buildGrid(g *domain.ImageGrid) *GridView {
	res := gridlayout.Compute(g.Params)
	header := Sanitize(g.HeaderContent)
	gv := &GridView{Params: g.Params, Fit: g.Fit.Normalize(), Header: header, Layout: res}
	for i, b := range Blocks(header) {
		if i > 0 {
			gv.HeaderText += " "
		}
		gv.HeaderText += b.Text
	}
	if !res.IsValid {
		return gv
	}
	for slot, r := range gridlayout.Place(g.Params, res) {
		c := Cell{Slot: slot, Rect: r}
		if slot < len(g.Images) && g.Images[slot] != nil {
			img := g.Images[slot]
			c.Image = img
			c.ImageRect = ImagePlacement(r, img.Width, img.Height, gv.Fit)
		}
		gv.Cells = append(gv.Cells, c)
	}
	return gv
}

// ImagePlacement scales an imgW x imgH image into cell, centered. FitContain
// shows the whole image inside the cell; FitCover fills the cell and overflows
// on one axis. Unknown image sizes fill the cell.
func ImagePlacement(cell gridlayout.Rect, imgW, imgH int, fit domain.FitMode) gridlayout.Rect {
	if imgW <= 0 || imgH <= 0 || cell.Width <= 0 || cell.Height <= 0 {
		return cell
	}
	sx := cell.Width / float64(imgW)
	sy := cell.Height / float64(imgH)
	s := min(sx, sy)
	if fit.Normalize() == domain.FitCover {
		s = max(sx, sy)
	}
	w := float64(imgW) * s
	h := float64(imgH) * s
	return gridlayout.Rect{
		X:      cell.X + (cell.Width-w)/2,
		Y:      cell.Y + (cell.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

// Scale converts a millimeter rectangle into another unit.
func Scale(r gridlayout.Rect, perMM float64) gridlayout.Rect {
	return gridlayout.Rect{X: r.X * perMM, Y: r.Y * perMM, Width: r.Width * perMM, Height: r.Height * perMM}
}
