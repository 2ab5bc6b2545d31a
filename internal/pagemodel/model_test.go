/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pagemodel

import (
	"errors"
	"reflect"
	"testing"

	"diarywriter/internal/domain"
	"diarywriter/internal/gridlayout"
)

func gridSpec(perPage, perRow int) GridSpec {
	p := gridlayout.DefaultParams()
	p.ImagesPerPage = perPage
	p.ImagesPerRow = perRow
	return GridSpec{Params: p, Fit: domain.FitContain}
}

// threeTextPages returns a model with pages "p1", "p2", "p3".
func threeTextPages(t *testing.T) *Model {
	t.Helper()
	m := NewEmpty("d", "t")
	if _, err := m.AppendPages(domain.KindText, 2, GridSpec{}); err != nil {
		t.Fatalf("append: %v", err)
	}
	for n, s := range map[int]string{1: "p1", 2: "p2", 3: "p3"} {
		if err := m.SetText(n, s); err != nil {
			t.Fatalf("SetText(%d): %v", n, err)
		}
	}
	return m
}

func html(t *testing.T, m *Model, n int) string {
	t.Helper()
	p, err := m.Page(n)
	if err != nil {
		t.Fatalf("Page(%d): %v", n, err)
	}
	return p.HTML
}

func TestAppendImageGridPage(t *testing.T) {
	m := NewEmpty("d", "t")
	added, err := m.AppendPages(domain.KindImageGrid, 1, gridSpec(4, 2))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !reflect.DeepEqual(added, []int{2}) || m.TotalPages() != 2 {
		t.Fatalf("added %v, total %d", added, m.TotalPages())
	}
	p, _ := m.Page(2)
	if p.Kind != domain.KindImageGrid || len(p.Grid.Images) != 4 {
		t.Fatalf("page 2 = %+v", p)
	}
	res := gridlayout.Compute(p.Grid.Params)
	if !res.IsValid || res.Rows != 2 || res.Columns != 2 {
		t.Fatalf("layout = %+v, want valid 2x2", res)
	}
}

func TestAppendInvalidGridIsAtomic(t *testing.T) {
	m := NewEmpty("d", "t")
	var notified int
	m.Subscribe(func(Change) { notified++ })
	_, err := m.AppendPages(domain.KindImageGrid, 3, gridSpec(4, 5))
	if !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("err = %v, want ErrInvalidGrid", err)
	}
	if m.TotalPages() != 1 || notified != 0 {
		t.Fatalf("invalid append mutated the model: total %d, notifications %d", m.TotalPages(), notified)
	}
	if _, err := m.AppendPages(domain.KindText, 0, GridSpec{}); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("count 0: err = %v", err)
	}
	if _, err := m.AppendPages("video", 1, GridSpec{}); !errors.Is(err, ErrUnknownPageKind) {
		t.Fatalf("unknown kind: err = %v", err)
	}
}

func TestAppendDiaryBatchNumbersAtEnd(t *testing.T) {
	m := threeTextPages(t)
	added, err := m.AppendPages(domain.KindImageGrid, 3, gridSpec(6, 3))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !reflect.DeepEqual(added, []int{4, 5, 6}) {
		t.Fatalf("added = %v", added)
	}
	// Batch pages do not share slot storage.
	if err := m.SetImage(4, 0, &domain.ImageResource{Name: "a"}); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	p5, _ := m.Page(5)
	if p5.Grid.Images[0] != nil {
		t.Fatalf("image leaked into sibling batch page")
	}
}

func TestDeleteMiddlePageCompacts(t *testing.T) {
	m := threeTextPages(t)
	remap, err := m.DeletePages([]int{2})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if m.TotalPages() != 2 {
		t.Fatalf("total = %d, want 2", m.TotalPages())
	}
	if html(t, m, 1) != "p1" || html(t, m, 2) != "p3" {
		t.Fatalf("pages after delete: %q, %q", html(t, m, 1), html(t, m, 2))
	}
	if !reflect.DeepEqual(remap, Remap{1: 1, 3: 2}) {
		t.Fatalf("remap = %v", remap)
	}
	if got := remap.Deleted(3); !reflect.DeepEqual(got, []int{2}) {
		t.Fatalf("deleted = %v", got)
	}
	if got := remap.Moved(); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("moved = %v", got)
	}
	if err := m.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestDeleteCarriesVariantAndConfig(t *testing.T) {
	m := NewEmpty("d", "t")
	// pages: 1 text, 2 text, 3 grid(2), 4 text, 5 grid(6)
	_, _ = m.AppendPages(domain.KindText, 1, GridSpec{})
	_, _ = m.AppendPages(domain.KindImageGrid, 1, gridSpec(2, 2))
	_, _ = m.AppendPages(domain.KindText, 1, GridSpec{})
	_, _ = m.AppendPages(domain.KindImageGrid, 1, gridSpec(6, 3))
	_ = m.SetText(4, "four")
	_ = m.SetImage(5, 5, &domain.ImageResource{Name: "last"})

	if _, err := m.DeletePages([]int{2, 3}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p2, _ := m.Page(2)
	p3, _ := m.Page(3)
	if p2.Kind != domain.KindText || p2.HTML != "four" {
		t.Fatalf("new page 2 = %+v, want former page 4", p2)
	}
	if p3.Kind != domain.KindImageGrid || p3.Grid.ImagesPerPage != 6 || p3.Grid.Images[5].Name != "last" {
		t.Fatalf("new page 3 = %+v, want former page 5", p3)
	}
}

func TestDeleteRejections(t *testing.T) {
	m := threeTextPages(t)
	cases := []struct {
		in   []int
		want error
	}{
		{nil, ErrEmptySelection},
		{[]int{1}, ErrProtectedPage},
		{[]int{1, 2}, ErrProtectedPage},
		{[]int{1, 2, 3}, ErrRemovesAllPages},
		{[]int{4}, ErrNoSuchPage},
		{[]int{0}, ErrNoSuchPage},
	}
	for _, c := range cases {
		if _, err := m.DeletePages(c.in); !errors.Is(err, c.want) {
			t.Errorf("DeletePages(%v) err = %v, want %v", c.in, err, c.want)
		}
	}
	if m.TotalPages() != 3 || m.Epoch() != 0 {
		t.Fatalf("rejected deletes mutated the model")
	}
	single := NewEmpty("d", "t")
	if _, err := single.DeletePages([]int{1}); err == nil {
		t.Fatalf("deleting the only page must fail")
	}
}

func TestDeleteRemapsLocksAndCurrent(t *testing.T) {
	m := threeTextPages(t)
	_, _ = m.AppendPages(domain.KindText, 2, GridSpec{}) // 4, 5
	_ = m.Lock(3)
	_ = m.Lock(5)
	_ = m.Navigate(5)

	var got Change
	m.Subscribe(func(c Change) { got = c })
	if _, err := m.DeletePages([]int{2, 4}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !reflect.DeepEqual(m.LockedPages(), []int{2, 3}) {
		t.Fatalf("locks = %v, want [2 3]", m.LockedPages())
	}
	if m.Current() != 3 {
		t.Fatalf("current = %d, want 3", m.Current())
	}
	if got.Kind != ChangeStructure || got.Current != 3 || got.Total != 3 || got.Epoch != 1 {
		t.Fatalf("change = %+v", got)
	}
}

func TestDeleteCurrentMovesToNearestLower(t *testing.T) {
	cases := []struct {
		name    string
		current int
		del     []int
		want    int
	}{
		{"deleted current, lower survives", 4, []int{4}, 3},
		{"deleted run", 4, []int{3, 4}, 2},
		{"only page 1 below", 3, []int{2, 3, 5}, 1},
		{"current survives after deleted", 5, []int{2}, 4},
		{"current survives before deleted", 2, []int{4, 5}, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := NewEmpty("d", "t")
			_, _ = m.AppendPages(domain.KindText, 4, GridSpec{})
			_ = m.Navigate(c.current)
			if _, err := m.DeletePages(c.del); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if m.Current() != c.want {
				t.Fatalf("current = %d, want %d", m.Current(), c.want)
			}
		})
	}
}

func TestSetTextIsVariantPreserving(t *testing.T) {
	m := NewEmpty("d", "t")
	_, _ = m.AppendPages(domain.KindImageGrid, 1, gridSpec(4, 2))
	if err := m.SetText(2, "<p>stray</p>"); !errors.Is(err, ErrVariantMismatch) {
		t.Fatalf("SetText on grid page: err = %v", err)
	}
	p, _ := m.Page(2)
	if p.Kind != domain.KindImageGrid || p.HTML != "" || p.Grid == nil {
		t.Fatalf("grid page changed: %+v", p)
	}
	if err := m.SetImage(1, 0, &domain.ImageResource{}); !errors.Is(err, ErrVariantMismatch) {
		t.Fatalf("SetImage on text page: err = %v", err)
	}
	if err := m.SetImage(2, 4, &domain.ImageResource{}); !errors.Is(err, ErrSlotOutOfRange) {
		t.Fatalf("SetImage slot 4: err = %v", err)
	}
}

func TestUpdateGridKeepsImagesThatFit(t *testing.T) {
	m := NewEmpty("d", "t")
	_, _ = m.AppendPages(domain.KindImageGrid, 1, gridSpec(4, 2))
	_ = m.SetImage(2, 0, &domain.ImageResource{Name: "a"})
	_ = m.SetImage(2, 3, &domain.ImageResource{Name: "d"})

	p := gridlayout.DefaultParams()
	p.ImagesPerPage, p.ImagesPerRow = 2, 1
	if err := m.UpdateGrid(2, p, domain.FitCover); err != nil {
		t.Fatalf("UpdateGrid: %v", err)
	}
	pg, _ := m.Page(2)
	if len(pg.Grid.Images) != 2 || pg.Grid.Images[0].Name != "a" || pg.Grid.Fit != domain.FitCover {
		t.Fatalf("grid after update = %+v", pg.Grid)
	}
	p.ImagesPerRow = 9
	if err := m.UpdateGrid(2, p, domain.FitCover); !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("invalid update err = %v", err)
	}
}

func TestNavigateAndLocks(t *testing.T) {
	m := threeTextPages(t)
	if err := m.Navigate(4); !errors.Is(err, ErrNoSuchPage) {
		t.Fatalf("Navigate(4) err = %v", err)
	}
	if err := m.Navigate(3); err != nil || m.Current() != 3 {
		t.Fatalf("Navigate(3): %v current %d", err, m.Current())
	}
	if err := m.Lock(2); err != nil || !m.IsLocked(2) {
		t.Fatalf("Lock(2): %v", err)
	}
	// Locks guard edits from the editor, not model CRUD.
	if err := m.SetText(2, "still writable by the model"); err != nil {
		t.Fatalf("SetText on locked page through the model: %v", err)
	}
	if _, err := m.DeletePages([]int{2}); err != nil {
		t.Fatalf("DeletePages on locked page: %v", err)
	}
	if len(m.LockedPages()) != 0 {
		t.Fatalf("lock survived deletion of its page: %v", m.LockedPages())
	}
}

func TestNewRejectsMalformedDocuments(t *testing.T) {
	if _, err := New(&domain.Document{}, nil); !errors.Is(err, ErrEmptyDocument) {
		t.Fatalf("empty doc err = %v", err)
	}
	d := domain.NewDocument("d", "t")
	d.Pages = append(d.Pages, domain.Page{Kind: domain.KindImageGrid})
	if _, err := New(d, nil); !errors.Is(err, domain.ErrMalformedPage) {
		t.Fatalf("malformed page err = %v", err)
	}
	d = domain.NewDocument("d", "t")
	bad := gridlayout.DefaultParams()
	bad.ImagesPerRow = 7
	d.Pages = append(d.Pages, domain.NewImageGridPage(bad, domain.FitContain, ""))
	if _, err := New(d, nil); !errors.Is(err, ErrInvalidGrid) {
		t.Fatalf("invalid grid err = %v", err)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	m := threeTextPages(t)
	_ = m.Lock(2)
	doc, locks := m.Snapshot()
	doc.Pages[0].HTML = "mutated"
	locks[0] = 99
	if html(t, m, 1) != "p1" || !m.IsLocked(2) {
		t.Fatalf("snapshot aliases model state")
	}
}
