/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"diarywriter/internal/domain"
	"diarywriter/internal/gridlayout"
)

const (
	// CSSPixelsPerMM converts millimeters to CSS pixels (96 per inch).
	CSSPixelsPerMM = 96 / 25.4
	// TextInsetMM is the margin around the body of a text page.
	TextInsetMM = 20.0
)

//go:embed templates/*.gohtml
var templateFS embed.FS

var templates = template.Must(template.New("render").Funcs(template.FuncMap{
	"num":     formatNum,
	"imgsrc":  imageSource,
	"rawhtml": func(s string) template.HTML { return template.HTML(s) },
}).ParseFS(templateFS, "templates/*.gohtml"))

// sheet is the unit-resolved view a template receives.
type sheet struct {
	Unit     string
	Width    float64
	Height   float64
	Inset    float64
	Editable bool
	Page     PageView
	Header   *box
	Cells    []cellView
}

type box struct {
	X, Y, Width, Height float64
}

type cellView struct {
	Slot  int
	Box   box
	Image *domain.ImageResource
	// ImageBox is relative to the cell.
	ImageBox box
}

func toBox(r gridlayout.Rect, perMM float64) box {
	s := Scale(r, perMM)
	return box{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}
}

func newSheet(t Tree, p PageView, unit string, perMM float64) sheet {
	s := sheet{Unit: unit, Width: t.PageWidth * perMM, Height: t.PageHeight * perMM, Inset: TextInsetMM * perMM, Page: p}
	if p.Grid == nil {
		return s
	}
	prm := p.Grid.Params
	s.Header = &box{
		X:      prm.MarginLeft * perMM,
		Y:      0,
		Width:  (t.PageWidth - prm.MarginLeft - prm.MarginRight) * perMM,
		Height: prm.MarginHeader * perMM,
	}
	for _, c := range p.Grid.Cells {
		cv := cellView{Slot: c.Slot, Box: toBox(c.Rect, perMM), Image: c.Image}
		if c.Image != nil {
			rel := c.ImageRect
			rel.X -= c.Rect.X
			rel.Y -= c.Rect.Y
			cv.ImageBox = toBox(rel, perMM)
		}
		s.Cells = append(s.Cells, cv)
	}
	return s
}

// EditorHTML renders the pages as an HTML fragment in CSS pixels. Text pages
// are editable unless locked; grid slots carry data-page and data-slot so a
// click can be routed to the image pipeline.
func EditorHTML(t Tree, pages ...int) (string, error) {
	return renderSheets(t, true, "px", CSSPixelsPerMM, pages)
}

// PrintHTML renders a standalone HTML document in millimeters with one A4
// sheet per page, ready for a browser's print dialog.
func PrintHTML(t Tree) (string, error) {
	body, err := renderSheets(t, false, "mm", 1, nil)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = templates.ExecuteTemplate(&buf, "print", struct {
		Title string
		Body  template.HTML
	}{Title: t.Title, Body: template.HTML(body)})
	if err != nil {
		return "", fmt.Errorf("render print document: %w", err)
	}
	return buf.String(), nil
}

func renderSheets(t Tree, editable bool, unit string, perMM float64, only []int) (string, error) {
	want := map[int]bool{}
	for _, n := range only {
		want[n] = true
	}
	var buf bytes.Buffer
	for _, p := range t.Pages {
		if len(want) > 0 && !want[p.Number] {
			continue
		}
		s := newSheet(t, p, unit, perMM)
		s.Editable = editable
		if err := templates.ExecuteTemplate(&buf, "sheet", s); err != nil {
			return "", fmt.Errorf("render page %d: %w", p.Number, err)
		}
	}
	return buf.String(), nil
}

func formatNum(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// imageSource passes inline raster images through the template URL filter.
func imageSource(r *domain.ImageResource) template.URL {
	if r == nil || !strings.HasPrefix(r.DataURI, "data:image/") || strings.HasPrefix(r.DataURI, "data:image/svg") {
		return ""
	}
	return template.URL(r.DataURI)
}
