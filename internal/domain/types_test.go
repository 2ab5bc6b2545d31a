package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"diarywriter/internal/gridlayout"
)

func TestNewDocumentHasOneEmptyTextPage(t *testing.T) {
	d := NewDocument("d1", "Site A")
	if d.TotalPages() != 1 {
		t.Fatalf("TotalPages = %d, want 1", d.TotalPages())
	}
	p, ok := d.Page(1)
	if !ok || p.Kind != KindText || p.HTML != "" {
		t.Fatalf("page 1 = %+v, want empty text page", p)
	}
	if _, ok := d.Page(2); ok {
		t.Fatalf("page 2 should not exist")
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := NewDocument("d1", "x")
	d.Pages = append(d.Pages, NewImageGridPage(gridlayout.DefaultParams(), FitCover, "hdr"))
	d.Pages[1].Grid.Images[0] = &ImageResource{MIME: "image/png", DataURI: "data:image/png;base64,AA=="}

	c := d.Clone()
	c.Pages[1].Grid.Images[0].Name = "changed"
	c.Pages[1].Grid.ImagesPerRow = 1
	if d.Pages[1].Grid.Images[0].Name != "" || d.Pages[1].Grid.ImagesPerRow == 1 {
		t.Fatalf("clone shares state with original")
	}
}

func TestPageCheck(t *testing.T) {
	good := NewImageGridPage(gridlayout.DefaultParams(), FitContain, "")
	if err := good.Check(); err != nil {
		t.Fatalf("valid grid page: %v", err)
	}
	bad := []Page{
		{Kind: KindText, Grid: good.Grid},
		{Kind: KindImageGrid},
		{Kind: "other"},
		{Kind: KindImageGrid, Grid: &ImageGrid{Params: gridlayout.DefaultParams()}},
	}
	for i, p := range bad {
		if err := p.Check(); !errors.Is(err, ErrMalformedPage) {
			t.Errorf("case %d: err = %v, want ErrMalformedPage", i, err)
		}
	}
}

func TestImageResourceBytes(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	r := NewImageResource("image/png", raw, 4, 3, "a.png")
	got, err := r.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("Bytes = %v, want %v", got, raw)
	}
	if _, err := (&ImageResource{DataURI: "https://example.com/x.png"}).Bytes(); err == nil {
		t.Fatalf("expected error for non data URI")
	}
}

func TestImageGridJSONFlattensParams(t *testing.T) {
	p := NewImageGridPage(gridlayout.DefaultParams(), FitContain, "")
	b, err := json.Marshal(p.Grid)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["imagesPerPage"]; !ok {
		t.Fatalf("imagesPerPage not flattened into grid JSON: %s", b)
	}
}
