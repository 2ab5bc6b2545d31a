/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"diarywriter/internal/domain"
	"diarywriter/internal/gridlayout"
)

func sampleDoc() *domain.Document {
	d := domain.NewDocument("site-42", "Bridge repair")
	d.LastModified = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	params := gridlayout.DefaultParams()
	params.ImagesPerPage = 2
	d.Pages = append(d.Pages, domain.NewImageGridPage(params, domain.FitCover, "Photos"))
	d.Pages[0].HTML = "<p>Day one</p>"
	d.Pages[1].Grid.Images[1] = domain.NewImageResource("image/png", []byte{0x89, 'P', 'N', 'G'}, 4, 3, "a.png")
	return d
}

func TestEncodeDecodeKeepsVariantsAndLocks(t *testing.T) {
	p := Encode(sampleDoc(), []int{2})
	if p.TotalPages != 2 || len(p.Pages) != 2 {
		t.Fatalf("unexpected payload shape: %+v", p)
	}
	if _, ok := p.ImagePagesConfig["2"]; !ok {
		t.Fatalf("grid config for page 2 missing: %v", p.ImagePagesConfig)
	}
	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc, locks, err := Decode(back)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Pages[0].Kind != domain.KindText || doc.Pages[0].HTML != "<p>Day one</p>" {
		t.Fatalf("page 1 = %+v", doc.Pages[0])
	}
	g := doc.Pages[1].Grid
	if doc.Pages[1].Kind != domain.KindImageGrid || g == nil || g.Fit != domain.FitCover || g.HeaderContent != "Photos" {
		t.Fatalf("page 2 = %+v", doc.Pages[1])
	}
	if len(g.Images) != 2 || g.Images[0] != nil || g.Images[1] == nil || g.Images[1].Name != "a.png" {
		t.Fatalf("images not restored: %+v", g.Images)
	}
	if len(locks) != 1 || locks[0] != 2 {
		t.Fatalf("locks = %v", locks)
	}
	if !doc.LastModified.Equal(sampleDoc().LastModified) {
		t.Fatalf("lastModified = %v", doc.LastModified)
	}
}

func TestDecodeLegacyPayloadWithoutKinds(t *testing.T) {
	raw := `{"id":"old","totalPages":3,
		"pages":[{"number":1,"html":"<p>a</p>"},{"number":3,"html":"<p>c</p>"}],
		"imagePagesConfig":{"2":{"imagesPerPage":4,"imagesPerRow":2,"marginLeft":15,"marginRight":15,"marginBottom":15,"marginHeader":25,"aspectRatio":"4:3","centerHorizontally":true,"images":[]},
			"7":{"imagesPerPage":1,"imagesPerRow":1}},
		"lockedPages":[3,9]}`
	p, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	doc, locks, err := Decode(p)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.TotalPages() != 3 {
		t.Fatalf("total = %d", doc.TotalPages())
	}
	if doc.Pages[1].Kind != domain.KindImageGrid || len(doc.Pages[1].Grid.Images) != 4 {
		t.Fatalf("page 2 should be a 4-slot grid: %+v", doc.Pages[1])
	}
	if doc.Pages[1].Grid.Fit != domain.FitContain {
		t.Fatalf("fit should default to contain, got %q", doc.Pages[1].Grid.Fit)
	}
	if doc.Pages[2].Kind != domain.KindText || doc.Pages[2].HTML != "<p>c</p>" {
		t.Fatalf("page 3 = %+v", doc.Pages[2])
	}
	if len(locks) != 1 || locks[0] != 3 {
		t.Fatalf("out-of-range lock should be dropped: %v", locks)
	}
}

func TestDecodeGridKindWithoutConfigFallsBackToText(t *testing.T) {
	p := &Payload{ID: "x", TotalPages: 1, Pages: []PagePayload{{Number: 1, Kind: domain.KindImageGrid}}}
	doc, _, err := Decode(p)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Pages[0].Kind != domain.KindText {
		t.Fatalf("expected text fallback, got %q", doc.Pages[0].Kind)
	}
}

func TestDecodeRejectsEmptyReport(t *testing.T) {
	_, _, err := Decode(&Payload{ID: "x"})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecodeRejectsOversizedPageCount(t *testing.T) {
	cases := map[string]*Payload{
		"declared": {ID: "r1", TotalPages: MaxPages * 1000, Pages: []PagePayload{{Number: 1, Kind: domain.KindText}}},
		"derived":  {ID: "r1", Pages: []PagePayload{{Number: MaxPages + 1}}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := Decode(p); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestUnmarshalSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing id":      `{"totalPages":1,"pages":[]}`,
		"negative total":  `{"id":"a","totalPages":-1,"pages":[]}`,
		"bad page number": `{"id":"a","totalPages":1,"pages":[{"number":0}]}`,
		"bad kind":        `{"id":"a","totalPages":1,"pages":[{"number":1,"kind":"video"}]}`,
		"bad image uri":   `{"id":"a","totalPages":1,"pages":[],"imagePagesConfig":{"1":{"imagesPerPage":1,"imagesPerRow":1,"images":[{"dataUri":"http://x"}]}}}`,
		"not json":        `{"id":`,
		"huge total":      `{"id":"a","totalPages":1125899906842624,"pages":[{"number":1}]}`,
		"huge page":       `{"id":"a","totalPages":0,"pages":[{"number":99999999}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(raw))
			if !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestMarshalIsIndented(t *testing.T) {
	b, err := Marshal(Encode(sampleDoc(), nil))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "\n  \"id\": \"site-42\"") {
		t.Fatalf("expected indented JSON, got %s", b[:40])
	}
}
