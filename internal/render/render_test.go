/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"diarywriter/internal/domain"
	"diarywriter/internal/gridlayout"
)

func gridDoc(fit domain.FitMode) *domain.Document {
	d := domain.NewDocument("r1", "Daily report")
	d.Pages[0].HTML = `<h2>Weather</h2><p onclick="x()">Sunny, <b>22°C</b></p><script>alert(1)</script><ul><li>Crew 4</li><li>Crane</li></ul>`
	p := gridlayout.DefaultParams()
	p.ImagesPerPage, p.ImagesPerRow = 3, 2
	pg := domain.NewImageGridPage(p, fit, "<b>Foundation</b>")
	pg.Grid.Images[0] = domain.NewImageResource("image/png", []byte{1, 2, 3}, 400, 100, "wide.png")
	pg.Grid.Images[2] = domain.NewImageResource("image/png", []byte{1, 2, 3}, 100, 400, "tall.png")
	d.Pages = append(d.Pages, pg)
	return d
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestImagePlacementContainAndCover(t *testing.T) {
	cell := gridlayout.Rect{X: 10, Y: 20, Width: 80, Height: 60}
	c := ImagePlacement(cell, 400, 100, domain.FitContain)
	if !near(c.Width, 80) || !near(c.Height, 20) || !near(c.X, 10) || !near(c.Y, 40) {
		t.Fatalf("contain = %+v", c)
	}
	v := ImagePlacement(cell, 400, 100, domain.FitCover)
	if !near(v.Height, 60) || !near(v.Width, 240) || !near(v.X, 10-80) || !near(v.Y, 20) {
		t.Fatalf("cover = %+v", v)
	}
	if u := ImagePlacement(cell, 0, 0, domain.FitContain); u != cell {
		t.Fatalf("unknown size should fill the cell, got %+v", u)
	}
}

func TestBuildResolvesPages(t *testing.T) {
	tree := Build(gridDoc(domain.FitContain), []int{2})
	if len(tree.Pages) != 2 || tree.PageWidth != 210 || tree.PageHeight != 297 {
		t.Fatalf("tree = %+v", tree)
	}
	text := tree.Pages[0]
	if strings.Contains(text.HTML, "script") || strings.Contains(text.HTML, "onclick") {
		t.Fatalf("unsanitized html: %s", text.HTML)
	}
	if len(text.Blocks) != 4 || text.Blocks[0].Kind != BlockHeading || text.Blocks[1].Text != "Sunny, 22°C" || text.Blocks[3].Kind != BlockListItem {
		t.Fatalf("blocks = %+v", text.Blocks)
	}
	grid := tree.Pages[1]
	if !grid.Locked || grid.Grid == nil || len(grid.Grid.Cells) != 3 || grid.Grid.HeaderText != "Foundation" {
		t.Fatalf("grid page = %+v", grid)
	}
	want := gridlayout.Place(grid.Grid.Params, gridlayout.Compute(grid.Grid.Params))
	for i, c := range grid.Grid.Cells {
		if c.Rect != want[i] {
			t.Fatalf("cell %d = %+v, want %+v", i, c.Rect, want[i])
		}
	}
	if grid.Grid.Cells[1].Image != nil || grid.Grid.Cells[0].ImageRect.Width == 0 {
		t.Fatalf("images not placed: %+v", grid.Grid.Cells)
	}
}

func TestBuildInvalidGridHasNoCells(t *testing.T) {
	d := domain.NewDocument("r", "")
	p := gridlayout.DefaultParams()
	p.ImagesPerRow = 6
	d.Pages = append(d.Pages, domain.NewImageGridPage(p, domain.FitContain, ""))
	g := Build(d, nil).Pages[1].Grid
	if g.Layout.IsValid || len(g.Cells) != 0 {
		t.Fatalf("grid = %+v", g)
	}
	out, err := EditorHTML(Build(d, nil), 2)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "layout-error") {
		t.Fatalf("expected a visible layout error: %s", out)
	}
}

var slotRe = regexp.MustCompile(`data-slot="(\d+)"[^>]*style="position:absolute;overflow:hidden;left:([\d.]+)(px|mm);top:([\d.]+)(?:px|mm);width:([\d.]+)(?:px|mm);height:([\d.]+)(?:px|mm)"`)

func parseSlots(t *testing.T, out string) [][4]float64 {
	t.Helper()
	var rects [][4]float64
	for _, m := range slotRe.FindAllStringSubmatch(out, -1) {
		var r [4]float64
		for i, idx := range []int{2, 4, 5, 6} {
			v, err := strconv.ParseFloat(m[idx], 64)
			if err != nil {
				t.Fatal(err)
			}
			r[i] = v
		}
		rects = append(rects, r)
	}
	return rects
}

func TestEditorAndPrintAreGeometricallyEquivalent(t *testing.T) {
	for _, fit := range []domain.FitMode{domain.FitContain, domain.FitCover} {
		tree := Build(gridDoc(fit), nil)
		ed, err := EditorHTML(tree)
		if err != nil {
			t.Fatal(err)
		}
		pr, err := PrintHTML(tree)
		if err != nil {
			t.Fatal(err)
		}
		edSlots, prSlots := parseSlots(t, ed), parseSlots(t, pr)
		if len(edSlots) != 3 || len(prSlots) != 3 {
			t.Fatalf("slot counts: editor %d, print %d", len(edSlots), len(prSlots))
		}
		for i := range edSlots {
			for k := 0; k < 4; k++ {
				if math.Abs(edSlots[i][k]/CSSPixelsPerMM-prSlots[i][k]) > 0.01 {
					t.Fatalf("%s slot %d differs: editor %v px, print %v mm", fit, i, edSlots[i], prSlots[i])
				}
			}
		}
	}
}

func TestEditorHTMLMarksLockedPages(t *testing.T) {
	tree := Build(gridDoc(domain.FitContain), []int{1})
	out, err := EditorHTML(tree, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `contenteditable="false"`) || !strings.Contains(out, "locked") {
		t.Fatalf("locked text page should be read-only: %s", out)
	}
	if strings.Contains(out, "data-slot") {
		t.Fatal("page filter ignored")
	}
	out, _ = EditorHTML(Build(gridDoc(domain.FitContain), nil), 1)
	if !strings.Contains(out, `contenteditable="true"`) {
		t.Fatalf("unlocked text page should be editable: %s", out)
	}
}

func TestPrintHTMLDocument(t *testing.T) {
	out, err := PrintHTML(Build(gridDoc(domain.FitContain), nil))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<!DOCTYPE html>", "size: A4", "width:210mm;height:297mm", "data:image/png;base64,", "<title>Daily report</title>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("print output lacks %q", want)
		}
	}
	if strings.Contains(out, "contenteditable") {
		t.Fatal("print output must not be editable")
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		`<p>ok</p>`:                                    `<p>ok</p>`,
		`<p onmouseover="x">hi</p>`:                    `<p>hi</p>`,
		`<a href="javascript:alert(1)">x</a>`:          `<a>x</a>`,
		"<a href=\" java\tscript:alert(1)\">x</a>":     `<a>x</a>`,
		`<img src="data:image/png;base64,AA==">`:       `<img src="data:image/png;base64,AA=="/>`,
		`<img src="data:text/html,boom">`:              `<img/>`,
		`<style>p{}</style><p>a<script>b</script></p>`: `<p>a</p>`,
		`<!-- note --><p>c</p>`:                        `<p>c</p>`,
		"":                                             "",
	}
	for in, want := range cases {
		if got := Sanitize(in); got != want {
			t.Errorf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBlocksNestedLists(t *testing.T) {
	got := Blocks(`<ol><li>one<ul><li>a</li></ul></li><li>two</li></ol>text<br>more`)
	if len(got) != 5 {
		t.Fatalf("blocks = %+v", got)
	}
	if got[0].Text != "one" || !got[0].Ordered || got[0].Index != 1 || got[1].Level != 2 || got[2].Index != 2 {
		t.Fatalf("list blocks = %+v", got[:3])
	}
	if got[3].Text != "text" || got[4].Text != "more" {
		t.Fatalf("tail = %+v", got[3:])
	}
}
