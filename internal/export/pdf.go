/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"diarywriter/internal/domain"
	"diarywriter/internal/render"
)

// PDFOptions controls PDF export.
// Units are millimeters on A4 portrait; geometry comes from the render tree
// unchanged. Text uses the built-in Helvetica so nothing needs embedding.
type PDFOptions struct {
	Pages           []int // if empty, export all pages
	Author          string
	DrawCellBorders bool
}

// WritePDF renders tree as a multi-page PDF to w.
func WritePDF(tree render.Tree, w io.Writer, opt PDFOptions) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(tree.Title, true)
	author := opt.Author
	if author == "" {
		author = "diarywriter"
	}
	pdf.SetAuthor(author, true)
	pdf.SetCreator("diarywriter", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pages := pageSelection(tree.Pages, func(p render.PageView) int { return p.Number }, opt.Pages)
	for _, pg := range pages {
		if pg.Grid != nil {
			writeGridPage(pdf, tree, pg, tr, opt)
		} else {
			writeTextPage(pdf, pg, tr)
		}
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("pdf page %d: %w", pg.Number, err)
		}
	}
	if len(pages) == 0 {
		pdf.AddPage()
	}
	return pdf.Output(w)
}

// ExportPDF writes tree to outPath, creating parent directories.
func ExportPDF(tree render.Tree, outPath string, opt PDFOptions) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	var buf bytes.Buffer
	if err := WritePDF(tree, &buf, opt); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func writeTextPage(pdf *gofpdf.Fpdf, pg render.PageView, tr func(string) string) {
	inset := render.TextInsetMM
	pdf.SetMargins(inset, inset, inset)
	// long text flows onto continuation sheets
	pdf.SetAutoPageBreak(true, inset)
	pdf.AddPage()
	for _, b := range pg.Blocks {
		switch b.Kind {
		case render.BlockHeading:
			size := 20.0 - 2*float64(b.Level)
			pdf.SetFont("Helvetica", "B", size)
			pdf.MultiCell(0, size*0.5, tr(b.Text), "", "L", false)
			pdf.Ln(1.5)
		case render.BlockListItem:
			pdf.SetFont("Helvetica", "", 11)
			marker := "•"
			if b.Ordered {
				marker = fmt.Sprintf("%d.", b.Index)
			}
			indent := 6.0 * float64(b.Level)
			pdf.SetX(inset + indent - 5)
			pdf.CellFormat(5, 5.5, tr(marker), "", 0, "L", false, 0, "")
			pdf.SetLeftMargin(inset + indent)
			pdf.MultiCell(0, 5.5, tr(b.Text), "", "L", false)
			pdf.SetLeftMargin(inset)
		default:
			pdf.SetFont("Helvetica", "", 11)
			pdf.MultiCell(0, 5.5, tr(b.Text), "", "L", false)
			pdf.Ln(2)
		}
	}
}

func writeGridPage(pdf *gofpdf.Fpdf, tree render.Tree, pg render.PageView, tr func(string) string, opt PDFOptions) {
	g := pg.Grid
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	if g.HeaderText != "" {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetXY(g.Params.MarginLeft, max(4, g.Params.MarginHeader/2-3))
		width := tree.PageWidth - g.Params.MarginLeft - g.Params.MarginRight
		pdf.CellFormat(width, 6, tr(g.HeaderText), "", 0, "L", false, 0, "")
	}
	if !g.Layout.IsValid {
		pdf.SetTextColor(176, 0, 0)
		pdf.SetFont("Helvetica", "", 11)
		pdf.SetXY(render.TextInsetMM, 30)
		pdf.MultiCell(tree.PageWidth-2*render.TextInsetMM, 5.5, tr(strings.Join(g.Layout.Errors, "\n")), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
		return
	}
	pdf.SetDrawColor(190, 190, 190)
	pdf.SetLineWidth(0.2)
	for _, c := range g.Cells {
		r := c.Rect
		if c.Image != nil {
			placeImage(pdf, pg.Number, c, g.Fit)
		}
		if opt.DrawCellBorders {
			pdf.Rect(r.X, r.Y, r.Width, r.Height, "D")
		}
	}
}

func placeImage(pdf *gofpdf.Fpdf, page int, c render.Cell, fit domain.FitMode) {
	data, typ, err := pdfImage(c.Image)
	if err != nil {
		pdf.SetError(fmt.Errorf("slot %d: %w", c.Slot, err))
		return
	}
	name := fmt.Sprintf("p%d-s%d", page, c.Slot)
	opts := gofpdf.ImageOptions{ImageType: typ, ReadDpi: false}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if pdf.Err() {
		return
	}
	ir := c.ImageRect
	if fit == domain.FitCover {
		pdf.ClipRect(c.Rect.X, c.Rect.Y, c.Rect.Width, c.Rect.Height, false)
		pdf.ImageOptions(name, ir.X, ir.Y, ir.Width, ir.Height, false, opts, 0, "")
		pdf.ClipEnd()
		return
	}
	pdf.ImageOptions(name, ir.X, ir.Y, ir.Width, ir.Height, false, opts, 0, "")
}
