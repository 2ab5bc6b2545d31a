/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pagemodel owns the mutable diary document. Every change to pages,
// numbering, locks or the current page goes through a Model method, so the
// 1..N numbering and everything keyed by page number stay consistent.
package pagemodel

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"diarywriter/internal/domain"
	"diarywriter/internal/gridlayout"
	applog "diarywriter/internal/log"
)

var (
	ErrNoSuchPage      = errors.New("no such page")
	ErrProtectedPage   = errors.New("page 1 cannot be deleted")
	ErrRemovesAllPages = errors.New("cannot delete every page")
	ErrEmptySelection  = errors.New("no pages selected")
	ErrVariantMismatch = errors.New("operation does not match the page type")
	ErrInvalidGrid     = errors.New("invalid image grid")
	ErrInvalidCount    = errors.New("invalid page count")
	ErrSlotOutOfRange  = errors.New("image slot out of range")
	ErrEmptyDocument   = errors.New("document has no pages")
	ErrUnknownPageKind = errors.New("unknown page kind")
	ErrStaleEpoch      = errors.New("page numbering changed")
	ErrPageLocked      = errors.New("page is locked")
)

// MaxAppendCount bounds a single append batch.
const MaxAppendCount = 100

// GridSpec describes the image-grid pages created by an append.
type GridSpec struct {
	Params gridlayout.Params
	Fit    domain.FitMode
	Header string
}

// ChangeKind classifies a model notification.
type ChangeKind int

const (
	ChangeContent ChangeKind = iota + 1
	ChangeStructure
	ChangeNavigation
	ChangeLock
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeContent:
		return "content"
	case ChangeStructure:
		return "structure"
	case ChangeNavigation:
		return "navigation"
	case ChangeLock:
		return "lock"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers after every successful mutation.
type Change struct {
	Kind    ChangeKind
	Pages   []int // pages touched, numbered after the change
	Remap   Remap // set for deletions
	Current int
	Total   int
	Epoch   uint64
}

// Model is the single owner of a diary document.
// Subscribers run while the model is locked and must not call back into it.
type Model struct {
	mu      sync.Mutex
	doc     *domain.Document
	locks   map[int]struct{}
	current int
	epoch   uint64
	subs    map[int]func(Change)
	nextSub int
	now     func() time.Time
	log     *slog.Logger
}

// New takes ownership of a copy of doc. locked lists read-only pages.
func New(doc *domain.Document, locked []int) (*Model, error) {
	if doc == nil || len(doc.Pages) == 0 {
		return nil, ErrEmptyDocument
	}
	d := doc.Clone()
	for i, p := range d.Pages {
		if err := p.Check(); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		if p.Kind == domain.KindImageGrid {
			if res := gridlayout.Compute(p.Grid.Params); !res.IsValid {
				return nil, fmt.Errorf("page %d: %w: %v", i+1, ErrInvalidGrid, res.Err())
			}
		}
	}
	m := &Model{
		doc:     d,
		locks:   make(map[int]struct{}),
		current: 1,
		subs:    make(map[int]func(Change)),
		now:     func() time.Time { return time.Now().UTC() },
		log:     applog.WithComponent("pagemodel"),
	}
	for _, n := range locked {
		if n >= 1 && n <= len(d.Pages) {
			m.locks[n] = struct{}{}
		}
	}
	return m, nil
}

// NewEmpty returns a model for a new document holding one empty text page.
func NewEmpty(id, title string) *Model {
	m, _ := New(domain.NewDocument(id, title), nil)
	return m
}

// Subscribe registers fn for change notifications and returns a function that removes it.
func (m *Model) Subscribe(fn func(Change)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// ID returns the document id.
func (m *Model) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.ID
}

// TotalPages returns the number of pages.
func (m *Model) TotalPages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.doc.Pages)
}

// Current returns the current page number.
func (m *Model) Current() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Epoch increments whenever pages are renumbered.
func (m *Model) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Page returns a copy of page n.
func (m *Model) Page(n int) (domain.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.doc.Page(n)
	if !ok {
		return domain.Page{}, fmt.Errorf("%w: %d", ErrNoSuchPage, n)
	}
	return p.Clone(), nil
}

// Snapshot returns a deep copy of the document and the sorted lock set.
func (m *Model) Snapshot() (*domain.Document, []int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc.Clone(), m.lockedLocked()
}

// SetTitle renames the document.
func (m *Model) SetTitle(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc.Title = title
	m.touchLocked()
	m.emitLocked(Change{Kind: ChangeContent})
}

// AppendPages adds count pages of the given kind after the last page and returns
// their numbers. Image-grid batches are validated first; an invalid spec
// changes nothing.
func (m *Model) AppendPages(kind domain.PageKind, count int, spec GridSpec) ([]int, error) {
	if count < 1 || count > MaxAppendCount {
		return nil, fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidCount, count, MaxAppendCount)
	}
	var tmpl domain.Page
	switch kind {
	case domain.KindText:
		tmpl = domain.NewTextPage("")
	case domain.KindImageGrid:
		if res := gridlayout.Compute(spec.Params); !res.IsValid {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGrid, res.Err())
		}
		tmpl = domain.NewImageGridPage(spec.Params, spec.Fit, spec.Header)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPageKind, kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	start := len(m.doc.Pages) + 1
	added := make([]int, count)
	for i := range added {
		m.doc.Pages = append(m.doc.Pages, tmpl.Clone())
		added[i] = start + i
	}
	m.touchLocked()
	m.verifyLocked("append")
	m.emitLocked(Change{Kind: ChangeStructure, Pages: added})
	return added, nil
}

// DeletePages removes the given pages and renumbers the rest to 1..N in their
// original order. Locks and the current page are remapped in the same step. If
// the current page is deleted, the nearest surviving page before it becomes
// current.
func (m *Model) DeletePages(numbers []int) (Remap, error) {
	if len(numbers) == 0 {
		return nil, ErrEmptySelection
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	total := len(m.doc.Pages)
	del := make(map[int]struct{}, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > total {
			return nil, fmt.Errorf("%w: %d", ErrNoSuchPage, n)
		}
		del[n] = struct{}{}
	}
	if len(del) >= total {
		return nil, ErrRemovesAllPages
	}
	if _, ok := del[1]; ok {
		return nil, ErrProtectedPage
	}

	remap := make(Remap, total-len(del))
	pages := make([]domain.Page, 0, total-len(del))
	for i, p := range m.doc.Pages {
		old := i + 1
		if _, gone := del[old]; gone {
			continue
		}
		pages = append(pages, p)
		remap[old] = len(pages)
	}

	locks := make(map[int]struct{}, len(m.locks))
	for n := range m.locks {
		if nn, ok := remap[n]; ok {
			locks[nn] = struct{}{}
		}
	}

	current, ok := remap[m.current]
	if !ok {
		current = 1
		for old := m.current - 1; old >= 1; old-- {
			if nn, ok := remap[old]; ok {
				current = nn
				break
			}
		}
	}

	m.doc.Pages = pages
	m.locks = locks
	m.current = current
	m.epoch++
	m.touchLocked()
	m.verifyLocked("delete")
	m.log.Debug("pages deleted", slog.Int("deleted", len(del)), slog.Int("total", len(pages)), slog.Int("current", current))
	m.emitLocked(Change{Kind: ChangeStructure, Remap: remap})
	return remap, nil
}

// SetText replaces the HTML of text page n. Image-grid pages reject it.
func (m *Model) SetText(n int, html string) error {
	return m.mutate(n, ChangeContent, func(p *domain.Page) error {
		if p.Kind != domain.KindText {
			return fmt.Errorf("%w: page %d is %s", ErrVariantMismatch, n, p.Kind)
		}
		p.HTML = html
		return nil
	})
}

// SetHeader replaces the header text of image-grid page n.
func (m *Model) SetHeader(n int, header string) error {
	return m.mutate(n, ChangeContent, func(p *domain.Page) error {
		if p.Kind != domain.KindImageGrid {
			return fmt.Errorf("%w: page %d is %s", ErrVariantMismatch, n, p.Kind)
		}
		p.Grid.HeaderContent = header
		return nil
	})
}

// UpdateGrid changes the parameters of image-grid page n. Images keep their
// slots; slots beyond the new capacity are dropped.
func (m *Model) UpdateGrid(n int, params gridlayout.Params, fit domain.FitMode) error {
	if res := gridlayout.Compute(params); !res.IsValid {
		return fmt.Errorf("%w: %v", ErrInvalidGrid, res.Err())
	}
	return m.mutate(n, ChangeContent, func(p *domain.Page) error {
		if p.Kind != domain.KindImageGrid {
			return fmt.Errorf("%w: page %d is %s", ErrVariantMismatch, n, p.Kind)
		}
		imgs := make([]*domain.ImageResource, params.ImagesPerPage)
		copy(imgs, p.Grid.Images)
		if dropped := len(p.Grid.Images) - params.ImagesPerPage; dropped > 0 {
			m.log.Info("grid shrunk", slog.Int("page", n), slog.Int("slots_dropped", dropped))
		}
		p.Grid.Params = params
		p.Grid.Fit = fit.Normalize()
		p.Grid.Images = imgs
		return nil
	})
}

// SetImage stores res in slot of image-grid page n. A nil res clears the slot.
func (m *Model) SetImage(n, slot int, res *domain.ImageResource) error {
	return m.mutate(n, ChangeContent, setImage(n, slot, res))
}

func setImage(n, slot int, res *domain.ImageResource) func(p *domain.Page) error {
	return func(p *domain.Page) error {
		if p.Kind != domain.KindImageGrid {
			return fmt.Errorf("%w: page %d is %s", ErrVariantMismatch, n, p.Kind)
		}
		if slot < 0 || slot >= len(p.Grid.Images) {
			return fmt.Errorf("%w: slot %d on page %d", ErrSlotOutOfRange, slot, n)
		}
		if res != nil {
			c := *res
			res = &c
		}
		p.Grid.Images[slot] = res
		return nil
	}
}

// CommitImage stores res in slot of page n only if the page numbering is still
// at epoch and the page is not locked. The checks and the write are atomic.
func (m *Model) CommitImage(epoch uint64, n, slot int, res *domain.ImageResource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return fmt.Errorf("%w: epoch %d, now %d", ErrStaleEpoch, epoch, m.epoch)
	}
	if _, locked := m.locks[n]; locked {
		return fmt.Errorf("%w: %d", ErrPageLocked, n)
	}
	return m.mutateLocked(n, ChangeContent, setImage(n, slot, res))
}

// ClearImage empties slot of image-grid page n.
func (m *Model) ClearImage(n, slot int) error { return m.SetImage(n, slot, nil) }

// Navigate makes n the current page.
func (m *Model) Navigate(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 1 || n > len(m.doc.Pages) {
		return fmt.Errorf("%w: %d", ErrNoSuchPage, n)
	}
	if n == m.current {
		return nil
	}
	m.current = n
	m.emitLocked(Change{Kind: ChangeNavigation, Pages: []int{n}})
	return nil
}

// Lock marks page n read-only.
func (m *Model) Lock(n int) error { return m.setLock(n, true) }

// Unlock makes page n editable again.
func (m *Model) Unlock(n int) error { return m.setLock(n, false) }

func (m *Model) setLock(n int, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 1 || n > len(m.doc.Pages) {
		return fmt.Errorf("%w: %d", ErrNoSuchPage, n)
	}
	_, was := m.locks[n]
	if was == locked {
		return nil
	}
	if locked {
		m.locks[n] = struct{}{}
	} else {
		delete(m.locks, n)
	}
	m.emitLocked(Change{Kind: ChangeLock, Pages: []int{n}})
	return nil
}

// IsLocked reports whether page n is read-only.
func (m *Model) IsLocked(n int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[n]
	return ok
}

// LockedPages returns the locked page numbers in ascending order.
func (m *Model) LockedPages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockedLocked()
}

// Verify checks the document invariants: every page's tag matches its payload
// and every lock and the current page refer to existing pages.
func (m *Model) Verify() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked()
}

func (m *Model) mutate(n int, kind ChangeKind, fn func(p *domain.Page) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutateLocked(n, kind, fn)
}

func (m *Model) mutateLocked(n int, kind ChangeKind, fn func(p *domain.Page) error) error {
	if n < 1 || n > len(m.doc.Pages) {
		return fmt.Errorf("%w: %d", ErrNoSuchPage, n)
	}
	if err := fn(&m.doc.Pages[n-1]); err != nil {
		return err
	}
	m.touchLocked()
	m.emitLocked(Change{Kind: kind, Pages: []int{n}})
	return nil
}

func (m *Model) lockedLocked() []int {
	out := make([]int, 0, len(m.locks))
	for n := range m.locks {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (m *Model) touchLocked() { m.doc.LastModified = m.now() }

func (m *Model) checkLocked() error {
	total := len(m.doc.Pages)
	if total == 0 {
		return ErrEmptyDocument
	}
	for i, p := range m.doc.Pages {
		if err := p.Check(); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
	}
	for n := range m.locks {
		if n < 1 || n > total {
			return fmt.Errorf("lock on missing page %d", n)
		}
	}
	if m.current < 1 || m.current > total {
		return fmt.Errorf("current page %d outside 1..%d", m.current, total)
	}
	return nil
}

// verifyLocked runs after structural operations. A failure is a programming error.
func (m *Model) verifyLocked(op string) {
	if err := m.checkLocked(); err != nil {
		m.log.Error("document invariant violated", slog.String("op", op), slog.Any("err", err))
	}
}

func (m *Model) emitLocked(c Change) {
	c.Current = m.current
	c.Total = len(m.doc.Pages)
	c.Epoch = m.epoch
	for _, fn := range m.subs {
		fn(c)
	}
}
