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
	"os"
	"path/filepath"
	"strings"

	"diarywriter/internal/render"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// BatchOptions controls a multi-format export.
//
// Path semantics:
//   - Outputs go to <OutDir>/<preset>/; OutDir defaults to the working directory.
//   - PDF, HTML and ZIP are single files named <id>.<ext>.
//   - PNG pages go to a png/ subfolder as <id>-page-<n>.png.
type BatchOptions struct {
	Preset      PresetName
	Formats     []string // allowed: pdf, png, html, zip; empty means preset defaults
	Pages       []int    // page numbers; empty means all pages
	DPIOverride int      // when > 0 overrides the preset's raster DPI
	OutDir      string
}

// BatchExport runs exports according to the given preset and returns the
// written paths.
func BatchExport(tree render.Tree, opt BatchOptions) ([]string, error) {
	if len(tree.Pages) == 0 {
		return nil, fmt.Errorf("report has no pages")
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	preset := opt.Preset
	if preset == "" {
		preset = PresetPrint
	}
	baseOut := filepath.Join(opt.OutDir, string(preset))
	dpi := presetDPI(preset)
	if opt.DPIOverride > 0 {
		dpi = opt.DPIOverride
	}
	borders := preset == PresetWeb

	var written []string
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "pdf":
			out := filepath.Join(baseOut, tree.ID+".pdf")
			if err := ExportPDF(tree, out, PDFOptions{Pages: opt.Pages, DrawCellBorders: borders}); err != nil {
				return written, fmt.Errorf("pdf: %w", err)
			}
			written = append(written, out)
		case "png":
			files, err := ExportPNG(tree, filepath.Join(baseOut, "png"), PNGOptions{DPI: dpi, Pages: opt.Pages, DrawCellBorders: borders})
			written = append(written, files...)
			if err != nil {
				return written, fmt.Errorf("png: %w", err)
			}
		case "html":
			out := filepath.Join(baseOut, tree.ID+".html")
			doc, err := render.PrintHTML(tree)
			if err != nil {
				return written, fmt.Errorf("html: %w", err)
			}
			if err := os.MkdirAll(baseOut, 0o755); err != nil {
				return written, fmt.Errorf("ensure out dir: %w", err)
			}
			if err := os.WriteFile(out, []byte(doc), 0o644); err != nil {
				return written, fmt.Errorf("write html: %w", err)
			}
			written = append(written, out)
		case "zip":
			out := filepath.Join(baseOut, tree.ID+".zip")
			if err := ExportArchive(tree, out, PNGOptions{DPI: dpi, Pages: opt.Pages, DrawCellBorders: borders}); err != nil {
				return written, fmt.Errorf("zip: %w", err)
			}
			written = append(written, out)
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
	}
	return written, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{"png", "html", "zip"}
	case PresetPrint:
		return []string{"pdf", "png"}
	default:
		return []string{"pdf"}
	}
}

func presetDPI(p PresetName) int {
	switch p {
	case PresetWeb:
		return 96
	case PresetPrint:
		return 300
	default:
		return DefaultDPI
	}
}
