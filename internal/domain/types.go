/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the construction diary document model. Page numbers are not
// stored: a page's number is its 1-based position in Document.Pages, so the
// contiguous 1..N numbering holds by construction.

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"diarywriter/internal/gridlayout"
)

// PageKind discriminates the page variants.
type PageKind string

const (
	KindText      PageKind = "text"
	KindImageGrid PageKind = "imageGrid"
)

// Valid reports whether k names a known variant.
func (k PageKind) Valid() bool { return k == KindText || k == KindImageGrid }

// FitMode selects how an image is scaled into its cell. It is fixed per page so
// every renderer scales the same way.
type FitMode string

const (
	FitContain FitMode = "contain"
	FitCover   FitMode = "cover"
)

// Normalize returns FitContain for unknown values.
func (f FitMode) Normalize() FitMode {
	if f == FitCover {
		return FitCover
	}
	return FitContain
}

// Document is a construction diary.
type Document struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Pages        []Page    `json:"pages"`
	LastModified time.Time `json:"lastModified"`
}

// NewDocument returns a document with a single empty text page.
func NewDocument(id, title string) *Document {
	return &Document{
		ID:           id,
		Title:        title,
		Pages:        []Page{NewTextPage("")},
		LastModified: time.Now().UTC(),
	}
}

// TotalPages returns the number of pages.
func (d *Document) TotalPages() int { return len(d.Pages) }

// Page returns the page with the 1-based number n.
func (d *Document) Page(n int) (Page, bool) {
	if n < 1 || n > len(d.Pages) {
		return Page{}, false
	}
	return d.Pages[n-1], true
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Pages = make([]Page, len(d.Pages))
	for i, p := range d.Pages {
		out.Pages[i] = p.Clone()
	}
	return &out
}

// Page is either a text page (HTML set, Grid nil) or an image-grid page (Grid set).
type Page struct {
	Kind PageKind   `json:"kind"`
	HTML string     `json:"html,omitempty"`
	Grid *ImageGrid `json:"grid,omitempty"`
}

// NewTextPage returns a text page holding html.
func NewTextPage(html string) Page { return Page{Kind: KindText, HTML: html} }

// NewImageGridPage returns an image-grid page with one empty slot per image.
func NewImageGridPage(params gridlayout.Params, fit FitMode, header string) Page {
	return Page{Kind: KindImageGrid, Grid: &ImageGrid{
		Params:        params,
		Fit:           fit.Normalize(),
		HeaderContent: header,
		Images:        make([]*ImageResource, params.ImagesPerPage),
	}}
}

// Clone returns a deep copy of the page.
func (p Page) Clone() Page {
	if p.Grid != nil {
		g := p.Grid.Clone()
		p.Grid = &g
	}
	return p
}

// ErrMalformedPage reports a page whose variant tag and payload disagree.
var ErrMalformedPage = errors.New("malformed page")

// Check verifies that the variant tag matches the payload.
func (p Page) Check() error {
	switch p.Kind {
	case KindText:
		if p.Grid != nil {
			return errors.Join(ErrMalformedPage, errors.New("text page carries grid configuration"))
		}
	case KindImageGrid:
		if p.Grid == nil {
			return errors.Join(ErrMalformedPage, errors.New("image-grid page without configuration"))
		}
		if len(p.Grid.Images) != p.Grid.ImagesPerPage {
			return errors.Join(ErrMalformedPage, errors.New("image slot count does not match imagesPerPage"))
		}
	default:
		return errors.Join(ErrMalformedPage, errors.New("unknown page kind "+string(p.Kind)))
	}
	return nil
}

// ImageGrid holds the configuration and images of an image-grid page.
type ImageGrid struct {
	gridlayout.Params
	Fit           FitMode          `json:"fit,omitempty"`
	HeaderContent string           `json:"headerContent,omitempty"`
	Images        []*ImageResource `json:"images"`
}

// Clone returns a deep copy.
func (g ImageGrid) Clone() ImageGrid {
	imgs := make([]*ImageResource, len(g.Images))
	for i, im := range g.Images {
		if im != nil {
			c := *im
			imgs[i] = &c
		}
	}
	g.Images = imgs
	return g
}

// Filled returns the number of non-empty slots.
func (g ImageGrid) Filled() int {
	n := 0
	for _, im := range g.Images {
		if im != nil {
			n++
		}
	}
	return n
}

// ImageResource is an inline image: the encoded bytes travel inside the
// document as a data URI, so exports never fetch anything.
type ImageResource struct {
	MIME    string `json:"mime"`
	DataURI string `json:"dataUri"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Name    string `json:"name,omitempty"`
}

// NewImageResource encodes raw image bytes into a data URI resource.
func NewImageResource(mime string, data []byte, width, height int, name string) *ImageResource {
	return &ImageResource{
		MIME:    mime,
		DataURI: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		Width:   width,
		Height:  height,
		Name:    name,
	}
}

// Bytes decodes the data URI payload.
func (r *ImageResource) Bytes() ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil image resource")
	}
	rest, ok := strings.CutPrefix(r.DataURI, "data:")
	if !ok {
		return nil, errors.New("image resource is not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, errors.New("image resource is not base64 encoded")
	}
	return base64.StdEncoding.DecodeString(payload)
}
