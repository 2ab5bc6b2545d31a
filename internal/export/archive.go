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
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"diarywriter/internal/render"
)

// ArchiveManifest is written as report.json next to the page images.
type ArchiveManifest struct {
	ID         string         `json:"id"`
	Title      string         `json:"title,omitempty"`
	TotalPages int            `json:"totalPages"`
	DPI        int            `json:"dpi"`
	CreatedAt  time.Time      `json:"createdAt"`
	Pages      []ArchivedPage `json:"pages"`
}

type ArchivedPage struct {
	Number int    `json:"number"`
	Kind   string `json:"kind"`
	File   string `json:"file"`
	Images int    `json:"images,omitempty"`
}

// ExportArchive packages the selected pages as PNG images into a ZIP archive
// with a report.json manifest.
func ExportArchive(tree render.Tree, outPath string, opt PNGOptions) error {
	if !strings.HasSuffix(strings.ToLower(outPath), ".zip") {
		outPath += ".zip"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() { _ = f.Close() }()
	zw := zip.NewWriter(f)

	pages := pageSelection(tree.Pages, func(p render.PageView) int { return p.Number }, opt.Pages)
	pad := len(fmt.Sprint(len(pages)))
	dpi := opt.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	manifest := ArchiveManifest{ID: tree.ID, Title: tree.Title, TotalPages: len(tree.Pages), DPI: dpi, CreatedAt: time.Now().UTC()}

	imgBuf := &bytes.Buffer{}
	for i, pg := range pages {
		img, err := RenderPage(tree, pg, opt)
		if err != nil {
			return err
		}
		imgBuf.Reset()
		if err := png.Encode(imgBuf, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		name := fmt.Sprintf("%0*d.png", pad, i+1)
		if err := addZipFile(zw, name, imgBuf.Bytes()); err != nil {
			return fmt.Errorf("zip add image: %w", err)
		}
		entry := ArchivedPage{Number: pg.Number, Kind: string(pg.Kind), File: name}
		if pg.Grid != nil {
			for _, c := range pg.Grid.Cells {
				if c.Image != nil {
					entry.Images++
				}
			}
		}
		manifest.Pages = append(manifest.Pages, entry)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("build manifest: %w", err)
	}
	if err := addZipFile(zw, "report.json", data); err != nil {
		return fmt.Errorf("zip add manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
