/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-page text history for the editor.
package undo

import (
	"sync"
	"time"

	"diarywriter/internal/pagemodel"
)

// Entry is a text state of one page captured before an edit.
type Entry struct {
	HTML string
	TS   time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries across pages are pruned when exceeded.
	MaxBytes int
	// MaxPerPage limits entries kept per page (0 means unlimited).
	MaxPerPage int
	// MinInterval merges edits to the same page that follow each other closely,
	// so a burst of keystrokes undoes as one step.
	MinInterval time.Duration
}

// History is an undo/redo stack per page. It is safe for concurrent use.
type History struct {
	cfg Config
	mu  sync.Mutex
	// per-page stacks
	undo map[int][]Entry
	redo map[int][]Entry
	// accounting
	totalBytes int
}

func NewHistory(cfg Config) *History {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &History{cfg: cfg, undo: make(map[int][]Entry), redo: make(map[int][]Entry)}
}

// Record stores before, the page text prior to an edit made at ts. Within
// MinInterval of the previous record the older state is kept. Redo is cleared.
func (h *History) Record(page int, before string, ts time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropRedoLocked(page)
	stack := h.undo[page]
	if n := len(stack); n > 0 && ts.Sub(stack[n-1].TS) < h.cfg.MinInterval {
		stack[n-1].TS = ts
		return
	}
	h.undo[page] = append(stack, Entry{HTML: before, TS: ts})
	h.totalBytes += len(before)
	h.enforceCapsLocked(page)
}

// Undo returns the text page should revert to; current becomes redoable.
func (h *History) Undo(page int, current string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.undo[page]
	if len(stack) == 0 {
		return "", false
	}
	e := stack[len(stack)-1]
	h.undo[page] = stack[:len(stack)-1]
	h.totalBytes -= len(e.HTML)
	h.redo[page] = append(h.redo[page], Entry{HTML: current, TS: time.Now()})
	h.totalBytes += len(current)
	return e.HTML, true
}

// Redo reapplies the most recently undone edit; current becomes undoable.
func (h *History) Redo(page int, current string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.redo[page]
	if len(r) == 0 {
		return "", false
	}
	e := r[len(r)-1]
	h.redo[page] = r[:len(r)-1]
	h.totalBytes -= len(e.HTML)
	// zero time keeps the next Record from merging into this entry
	h.undo[page] = append(h.undo[page], Entry{HTML: current})
	h.totalBytes += len(current)
	h.enforceCapsLocked(page)
	return e.HTML, true
}

// CanUndo and CanRedo report whether the page has history in that direction.
func (h *History) CanUndo(page int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo[page]) > 0
}

func (h *History) CanRedo(page int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo[page]) > 0
}

// ClearPage drops all history of a page.
func (h *History) ClearPage(page int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clearLocked(page)
}

// Remap moves history along with renumbered pages. History of deleted pages
// is dropped.
func (h *History) Remap(r pagemodel.Remap) {
	h.mu.Lock()
	defer h.mu.Unlock()
	undo := make(map[int][]Entry, len(h.undo))
	redo := make(map[int][]Entry, len(h.redo))
	total := 0
	for old, stack := range h.undo {
		if n, ok := r.Lookup(old); ok {
			undo[n] = stack
			for _, e := range stack {
				total += len(e.HTML)
			}
		}
	}
	for old, stack := range h.redo {
		if n, ok := r.Lookup(old); ok {
			redo[n] = stack
			for _, e := range stack {
				total += len(e.HTML)
			}
		}
	}
	h.undo, h.redo, h.totalBytes = undo, redo, total
}

// Stats returns current sizes for diagnostics.
func (h *History) Stats() (totalBytes int, pages int, entries int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.undo {
		if len(v) > 0 {
			pages++
		}
		entries += len(v)
	}
	return h.totalBytes, pages, entries
}

func (h *History) clearLocked(page int) {
	for _, e := range h.undo[page] {
		h.totalBytes -= len(e.HTML)
	}
	h.dropRedoLocked(page)
	delete(h.undo, page)
	delete(h.redo, page)
	if h.totalBytes < 0 {
		h.totalBytes = 0
	}
}

func (h *History) dropRedoLocked(page int) {
	for _, e := range h.redo[page] {
		h.totalBytes -= len(e.HTML)
	}
	h.redo[page] = nil
}

func (h *History) enforceCapsLocked(page int) {
	if h.cfg.MaxPerPage > 0 {
		stack := h.undo[page]
		if len(stack) > h.cfg.MaxPerPage {
			toDrop := len(stack) - h.cfg.MaxPerPage
			for i := 0; i < toDrop; i++ {
				h.totalBytes -= len(stack[i].HTML)
			}
			h.undo[page] = append([]Entry{}, stack[toDrop:]...)
		}
	}
	// global memory cap: prune oldest across all pages
	for h.cfg.MaxBytes > 0 && h.totalBytes > h.cfg.MaxBytes {
		oldestPage := 0
		found := false
		var oldestTS time.Time
		for p, stack := range h.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestPage, oldestTS, found = p, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := h.undo[oldestPage]
		h.totalBytes -= len(stack[0].HTML)
		h.undo[oldestPage] = stack[1:]
		if len(h.undo[oldestPage]) == 0 {
			delete(h.undo, oldestPage)
		}
	}
}
