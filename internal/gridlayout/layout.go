/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package gridlayout computes the cell geometry of image-grid pages on an A4 sheet.
// It is pure: the editor, print and export renderers all call Compute and Place
// with the page's parameters and never derive geometry on their own.
package gridlayout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Physical sheet and grid constants, in millimeters.
const (
	PageWidthMM  = 210.0
	PageHeightMM = 297.0
	GutterMM     = 5.0

	// MinCellMM is the smallest printable cell edge; below it the layout is rejected.
	MinCellMM = 10.0
	// LegibleCellMM is the edge below which the layout is accepted with a warning.
	LegibleCellMM = 30.0

	MaxImagesPerPage = 20
	MaxImagesPerRow  = 4
)

// Params are the user-chosen parameters of an image-grid page.
type Params struct {
	ImagesPerPage      int     `json:"imagesPerPage" yaml:"images_per_page"`
	ImagesPerRow       int     `json:"imagesPerRow" yaml:"images_per_row"`
	MarginLeft         float64 `json:"marginLeft" yaml:"margin_left"`
	MarginRight        float64 `json:"marginRight" yaml:"margin_right"`
	MarginBottom       float64 `json:"marginBottom" yaml:"margin_bottom"`
	MarginHeader       float64 `json:"marginHeader" yaml:"margin_header"`
	AspectRatio        string  `json:"aspectRatio" yaml:"aspect_ratio"`
	CenterHorizontally bool    `json:"centerHorizontally" yaml:"center_horizontally"`
}

// DefaultParams returns a 2x2 grid of 4:3 cells with 15 mm margins and a 25 mm header band.
func DefaultParams() Params {
	return Params{
		ImagesPerPage:      4,
		ImagesPerRow:       2,
		MarginLeft:         15,
		MarginRight:        15,
		MarginBottom:       15,
		MarginHeader:       25,
		AspectRatio:        "4:3",
		CenterHorizontally: true,
	}
}

// Result is the derived geometry of a grid page. It is never persisted.
type Result struct {
	CellWidth       float64  `json:"cellWidth"`
	CellHeight      float64  `json:"cellHeight"`
	Rows            int      `json:"rows"`
	Columns         int      `json:"columns"`
	AvailableWidth  float64  `json:"availableWidth"`
	AvailableHeight float64  `json:"availableHeight"`
	IsValid         bool     `json:"isValid"`
	Errors          []string `json:"errors,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

// Err returns the validation errors as a single error, or nil for a valid result.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return fmt.Errorf("invalid grid layout: %s", strings.Join(r.Errors, "; "))
}

// Rect is an axis-aligned rectangle in millimeters, origin at the sheet's top-left corner.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Compute derives the cell geometry for p. Same input, same output.
func Compute(p Params) Result {
	var r Result
	if p.ImagesPerPage < 1 || p.ImagesPerPage > MaxImagesPerPage {
		r.Errors = append(r.Errors, fmt.Sprintf("images per page must be between 1 and %d (got %d)", MaxImagesPerPage, p.ImagesPerPage))
	}
	if p.ImagesPerRow < 1 || p.ImagesPerRow > MaxImagesPerRow {
		r.Errors = append(r.Errors, fmt.Sprintf("images per row must be between 1 and %d (got %d)", MaxImagesPerRow, p.ImagesPerRow))
	}
	for _, m := range []struct {
		name string
		v    float64
	}{
		{"left", p.MarginLeft}, {"right", p.MarginRight}, {"bottom", p.MarginBottom}, {"header", p.MarginHeader},
	} {
		if !(m.v > 0) || math.IsInf(m.v, 0) {
			r.Errors = append(r.Errors, fmt.Sprintf("%s margin must be positive (got %g mm)", m.name, m.v))
		}
	}
	ratio, err := ParseRatio(p.AspectRatio)
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
	if len(r.Errors) > 0 {
		return r
	}

	r.Columns = p.ImagesPerRow
	r.Rows = (p.ImagesPerPage + p.ImagesPerRow - 1) / p.ImagesPerRow
	r.AvailableWidth = PageWidthMM - p.MarginLeft - p.MarginRight
	r.AvailableHeight = PageHeightMM - p.MarginHeader - p.MarginBottom
	if r.AvailableWidth <= 0 || r.AvailableHeight <= 0 {
		r.Errors = append(r.Errors, fmt.Sprintf("margins leave no printable area (%.1f x %.1f mm)", r.AvailableWidth, r.AvailableHeight))
		return r
	}

	cols, rows := float64(r.Columns), float64(r.Rows)
	w := (r.AvailableWidth - GutterMM*(cols-1)) / cols
	h := w / ratio
	if rows*h+GutterMM*(rows-1) > r.AvailableHeight {
		// Shrink the cell, keeping its ratio, until the rows fit.
		h = (r.AvailableHeight - GutterMM*(rows-1)) / rows
		w = h * ratio
		if h > 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("cells reduced to %.1f x %.1f mm to fit %d rows on the page", w, h, r.Rows))
		}
	}
	if w < MinCellMM || h < MinCellMM {
		r.Errors = append(r.Errors, fmt.Sprintf("%d images at %s do not fit: cells would be %.1f x %.1f mm (minimum %.0f mm)",
			p.ImagesPerPage, p.AspectRatio, math.Max(w, 0), math.Max(h, 0), MinCellMM))
		return r
	}
	if w < LegibleCellMM || h < LegibleCellMM {
		r.Warnings = append(r.Warnings, fmt.Sprintf("cells of %.1f x %.1f mm may be hard to read in print", w, h))
	}
	r.CellWidth = w
	r.CellHeight = h
	r.IsValid = true
	return r
}

// Place returns the cell rectangles of a valid layout in slot order, row by row.
// The horizontal origin is the left margin, plus half of the unused width when
// the grid is centered. Invalid results have no cells.
func Place(p Params, r Result) []Rect {
	if !r.IsValid || r.Columns == 0 {
		return nil
	}
	cols := r.Columns
	used := float64(cols)*r.CellWidth + GutterMM*float64(cols-1)
	x0 := p.MarginLeft
	if p.CenterHorizontally {
		x0 += (r.AvailableWidth - used) / 2
	}
	y0 := p.MarginHeader
	out := make([]Rect, p.ImagesPerPage)
	for i := range out {
		row, col := i/cols, i%cols
		out[i] = Rect{
			X:      x0 + float64(col)*(r.CellWidth+GutterMM),
			Y:      y0 + float64(row)*(r.CellHeight+GutterMM),
			Width:  r.CellWidth,
			Height: r.CellHeight,
		}
	}
	return out
}

// ParseRatio parses "W:H" (or "W/H") into W/H.
func ParseRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	sep := ":"
	if !strings.Contains(s, sep) {
		sep = "/"
	}
	a, b, ok := strings.Cut(s, sep)
	if !ok {
		return 0, fmt.Errorf("aspect ratio %q must look like 4:3", s)
	}
	w, err1 := strconv.ParseFloat(strings.TrimSpace(a), 64)
	h, err2 := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err1 != nil || err2 != nil || !(w > 0) || !(h > 0) || math.IsInf(w, 0) || math.IsInf(h, 0) {
		return 0, fmt.Errorf("aspect ratio %q must have two positive numbers", s)
	}
	return w / h, nil
}
