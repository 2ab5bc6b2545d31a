/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"diarywriter/internal/domain"
	applog "diarywriter/internal/log"
)

//go:embed report.schema.json
var reportSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(reportSchema)

// ErrInvalidPayload reports a stored report that fails schema validation or cannot be decoded.
var ErrInvalidPayload = errors.New("invalid report payload")

// MaxPages bounds the page count of a stored report. report.schema.json carries the same limit.
const MaxPages = 10000

// Payload is the wire and storage shape of a diary, shared by the remote API and
// the local caches. Image-grid configuration is keyed by page number.
type Payload struct {
	ID               string                      `json:"id"`
	Title            string                      `json:"title,omitempty"`
	TotalPages       int                         `json:"totalPages"`
	Pages            []PagePayload               `json:"pages"`
	ImagePagesConfig map[string]domain.ImageGrid `json:"imagePagesConfig"`
	LockedPages      []int                       `json:"lockedPages,omitempty"`
	LastModified     time.Time                   `json:"lastModified"`
}

// PagePayload carries a page's number, variant and text content.
type PagePayload struct {
	Number int             `json:"number"`
	Kind   domain.PageKind `json:"kind,omitempty"`
	HTML   string          `json:"html,omitempty"`
}

// Encode converts a document and its lock set into a payload.
func Encode(doc *domain.Document, locked []int) *Payload {
	p := &Payload{
		ID:               doc.ID,
		Title:            doc.Title,
		TotalPages:       len(doc.Pages),
		Pages:            make([]PagePayload, len(doc.Pages)),
		ImagePagesConfig: make(map[string]domain.ImageGrid),
		LockedPages:      append([]int(nil), locked...),
		LastModified:     doc.LastModified.UTC(),
	}
	for i, pg := range doc.Pages {
		n := i + 1
		p.Pages[i] = PagePayload{Number: n, Kind: pg.Kind, HTML: pg.HTML}
		if pg.Kind == domain.KindImageGrid && pg.Grid != nil {
			p.ImagePagesConfig[strconv.Itoa(n)] = pg.Grid.Clone()
		}
	}
	return p
}

// Decode rebuilds a document from a payload. Payloads written by older clients
// may lack page kinds; for them the presence of a grid configuration decides
// the variant. Configurations for page numbers outside 1..totalPages are dropped
// and logged, since they cannot belong to any page.
func Decode(p *Payload) (*domain.Document, []int, error) {
	if p == nil {
		return nil, nil, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "decode").With(slog.String("doc", p.ID))
	total := p.TotalPages
	if total <= 0 {
		for _, pg := range p.Pages {
			total = max(total, pg.Number)
		}
	}
	if total > MaxPages {
		return nil, nil, fmt.Errorf("%w: report %q declares %d pages (limit %d)", ErrInvalidPayload, p.ID, total, MaxPages)
	}
	if total <= 0 {
		return nil, nil, fmt.Errorf("%w: report %q has no pages", ErrInvalidPayload, p.ID)
	}

	byNumber := make(map[int]PagePayload, len(p.Pages))
	for _, pg := range p.Pages {
		if pg.Number < 1 || pg.Number > total {
			l.Warn("page entry outside document dropped", slog.Int("page", pg.Number), slog.Int("total", total))
			continue
		}
		byNumber[pg.Number] = pg
	}
	grids := make(map[int]domain.ImageGrid, len(p.ImagePagesConfig))
	for key, g := range p.ImagePagesConfig {
		n, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || n < 1 || n > total {
			l.Warn("orphaned image grid configuration dropped", slog.String("page", key), slog.Int("total", total))
			continue
		}
		grids[n] = g
	}

	doc := &domain.Document{ID: p.ID, Title: p.Title, LastModified: p.LastModified, Pages: make([]domain.Page, total)}
	for n := 1; n <= total; n++ {
		entry := byNumber[n]
		g, hasGrid := grids[n]
		switch {
		case hasGrid:
			if entry.Kind == domain.KindText {
				l.Warn("page tagged text carries grid configuration; grid wins", slog.Int("page", n))
			}
			g = g.Clone()
			g.Fit = g.Fit.Normalize()
			if len(g.Images) != g.ImagesPerPage && g.ImagesPerPage >= 0 {
				imgs := make([]*domain.ImageResource, g.ImagesPerPage)
				copy(imgs, g.Images)
				g.Images = imgs
			}
			doc.Pages[n-1] = domain.Page{Kind: domain.KindImageGrid, Grid: &g}
		case entry.Kind == domain.KindImageGrid:
			l.Warn("image grid page without configuration restored as text", slog.Int("page", n))
			doc.Pages[n-1] = domain.NewTextPage(entry.HTML)
		default:
			doc.Pages[n-1] = domain.NewTextPage(entry.HTML)
		}
	}

	var locks []int
	seen := map[int]bool{}
	for _, n := range p.LockedPages {
		if n >= 1 && n <= total && !seen[n] {
			seen[n] = true
			locks = append(locks, n)
		}
	}
	sort.Ints(locks)
	return doc, locks, nil
}

// Marshal serializes a payload in the indented, human-readable form used on disk.
func Marshal(p *Payload) ([]byte, error) {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return append(b, '\n'), nil
}

// Unmarshal validates data against the report schema and decodes it.
func Unmarshal(data []byte) (*Payload, error) {
	res, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(msgs, "; "))
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}
