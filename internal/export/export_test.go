/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"diarywriter/internal/domain"
	"diarywriter/internal/gridlayout"
	"diarywriter/internal/render"
)

// solidPNG returns a w x h PNG filled with red.
func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sampleTree(t *testing.T, fit domain.FitMode) render.Tree {
	t.Helper()
	d := domain.NewDocument("rep-7", "Site diary")
	d.Pages[0].HTML = "<h1>Monday</h1><p>Concrete poured for the east wing.</p><ul><li>Pump truck</li></ul>"
	p := gridlayout.DefaultParams()
	p.ImagesPerPage, p.ImagesPerRow = 2, 2
	pg := domain.NewImageGridPage(p, fit, "Progress")
	pg.Grid.Images[0] = domain.NewImageResource("image/png", solidPNG(t, 40, 10), 40, 10, "strip.png")
	d.Pages = append(d.Pages, pg)
	return render.Build(d, nil)
}

func isRed(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xe000 && g < 0x2000 && b < 0x2000
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xf000 && g > 0xf000 && b > 0xf000
}

func TestRenderPageFollowsTreeGeometry(t *testing.T) {
	const dpi = 100
	scale := dpi / 25.4
	for _, fit := range []domain.FitMode{domain.FitContain, domain.FitCover} {
		tree := sampleTree(t, fit)
		pg := tree.Pages[1]
		img, err := RenderPage(tree, pg, PNGOptions{DPI: dpi})
		if err != nil {
			t.Fatal(err)
		}
		if want := int(math.Round(210 * scale)); img.Bounds().Dx() != want {
			t.Fatalf("width = %d, want %d", img.Bounds().Dx(), want)
		}
		cell := pg.Grid.Cells[0]
		center := image.Pt(int((cell.Rect.X+cell.Rect.Width/2)*scale), int((cell.Rect.Y+cell.Rect.Height/2)*scale))
		if !isRed(img.At(center.X, center.Y)) {
			t.Fatalf("%s: cell center not covered by image", fit)
		}
		// near the top edge of the cell: letterboxed for contain, covered for cover
		top := image.Pt(center.X, int((cell.Rect.Y+1)*scale))
		switch fit {
		case domain.FitContain:
			if !isWhite(img.At(top.X, top.Y)) {
				t.Fatalf("contain should letterbox a wide image")
			}
		case domain.FitCover:
			if !isRed(img.At(top.X, top.Y)) {
				t.Fatalf("cover should fill the cell")
			}
			// cover must be clipped to the cell
			outside := image.Pt(int((cell.Rect.X-1)*scale), center.Y)
			if !isWhite(img.At(outside.X, outside.Y)) {
				t.Fatalf("cover image leaked outside its cell")
			}
		}
	}
}

func TestWritePDF(t *testing.T) {
	for _, fit := range []domain.FitMode{domain.FitContain, domain.FitCover} {
		var buf bytes.Buffer
		if err := WritePDF(sampleTree(t, fit), &buf, PDFOptions{DrawCellBorders: true}); err != nil {
			t.Fatalf("%s: %v", fit, err)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
			t.Fatalf("not a pdf: %q", buf.Bytes()[:8])
		}
	}
}

func TestWritePDFReportsBrokenImage(t *testing.T) {
	tree := sampleTree(t, domain.FitContain)
	tree.Pages[1].Grid.Cells[0].Image = &domain.ImageResource{MIME: "image/webp", DataURI: "data:image/webp;base64,AAAA", Width: 1, Height: 1}
	if err := WritePDF(tree, io.Discard, PDFOptions{}); err == nil {
		t.Fatal("expected an error for an undecodable image")
	}
}

func TestExportPNGWritesOneFilePerPage(t *testing.T) {
	dir := t.TempDir()
	files, err := ExportPNG(sampleTree(t, domain.FitContain), dir, PNGOptions{DPI: 50, Pages: []int{2}})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "rep-7-page-2.png" {
		t.Fatalf("files = %v", files)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.DecodeConfig(f); err != nil {
		t.Fatalf("written file is not a png: %v", err)
	}
}

func TestExportArchive(t *testing.T) {
	out := filepath.Join(t.TempDir(), "bundle")
	if err := ExportArchive(sampleTree(t, domain.FitCover), out, PNGOptions{DPI: 30}); err != nil {
		t.Fatal(err)
	}
	zr, err := zip.OpenReader(out + ".zip")
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	if names["1.png"] == nil || names["2.png"] == nil || names["report.json"] == nil {
		t.Fatalf("entries = %v", names)
	}
	rc, err := names["report.json"].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	var m ArchiveManifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.ID != "rep-7" || m.TotalPages != 2 || len(m.Pages) != 2 || m.Pages[1].Images != 1 || m.Pages[1].Kind != "imageGrid" {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestBatchExportPresets(t *testing.T) {
	dir := t.TempDir()
	files, err := BatchExport(sampleTree(t, domain.FitContain), BatchOptions{Preset: PresetWeb, OutDir: dir, DPIOverride: 20})
	if err != nil {
		t.Fatal(err)
	}
	// two pngs, one html, one zip
	if len(files) != 4 {
		t.Fatalf("files = %v", files)
	}
	for _, f := range files {
		if !strings.HasPrefix(f, filepath.Join(dir, "web")) {
			t.Fatalf("%s outside preset dir", f)
		}
		if _, err := os.Stat(f); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := BatchExport(sampleTree(t, domain.FitContain), BatchOptions{Formats: []string{"svg"}, OutDir: dir}); err == nil {
		t.Fatal("unknown format should fail")
	}
}

func TestWrap(t *testing.T) {
	got := wrap("the quick brown fox jumps", 10)
	want := []string{"the quick", "brown fox", "jumps"}
	if len(got) != len(want) {
		t.Fatalf("wrap = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wrap = %q", got)
		}
	}
	if got := wrap("abcdefghij", 4); len(got) != 3 || got[2] != "ij" {
		t.Fatalf("long word = %q", got)
	}
}
