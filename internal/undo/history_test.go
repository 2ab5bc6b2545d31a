/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"

	"diarywriter/internal/pagemodel"
)

func TestRecordUndoRedo(t *testing.T) {
	h := NewHistory(Config{MinInterval: time.Millisecond})
	t0 := time.Unix(1000, 0)
	h.Record(1, "<p>a</p>", t0)
	h.Record(1, "<p>ab</p>", t0.Add(time.Second))

	got, ok := h.Undo(1, "<p>abc</p>")
	if !ok || got != "<p>ab</p>" {
		t.Fatalf("undo 1: got %q ok=%v", got, ok)
	}
	got, ok = h.Undo(1, "<p>ab</p>")
	if !ok || got != "<p>a</p>" {
		t.Fatalf("undo 2: got %q ok=%v", got, ok)
	}
	if _, ok := h.Undo(1, "<p>a</p>"); ok {
		t.Fatalf("expected empty undo stack")
	}
	got, ok = h.Redo(1, "<p>a</p>")
	if !ok || got != "<p>ab</p>" {
		t.Fatalf("redo 1: got %q ok=%v", got, ok)
	}
	got, ok = h.Redo(1, "<p>ab</p>")
	if !ok || got != "<p>abc</p>" {
		t.Fatalf("redo 2: got %q ok=%v", got, ok)
	}
	if h.CanRedo(1) {
		t.Fatalf("redo stack should be empty")
	}
}

func TestRecordCoalescesBurst(t *testing.T) {
	h := NewHistory(Config{MinInterval: 500 * time.Millisecond})
	t0 := time.Unix(1000, 0)
	h.Record(2, "", t0)
	h.Record(2, "a", t0.Add(100*time.Millisecond))
	h.Record(2, "ab", t0.Add(200*time.Millisecond))
	_, _, entries := h.Stats()
	if entries != 1 {
		t.Fatalf("expected 1 coalesced entry, got %d", entries)
	}
	got, _ := h.Undo(2, "abc")
	if got != "" {
		t.Fatalf("burst should undo to the state before it, got %q", got)
	}
}

func TestRecordClearsRedo(t *testing.T) {
	h := NewHistory(Config{MinInterval: time.Millisecond})
	t0 := time.Unix(1000, 0)
	h.Record(1, "x", t0)
	h.Undo(1, "y")
	if !h.CanRedo(1) {
		t.Fatalf("expected redo after undo")
	}
	h.Record(1, "x", t0.Add(time.Minute))
	if h.CanRedo(1) {
		t.Fatalf("a new edit must clear redo")
	}
}

func TestPerPageCap(t *testing.T) {
	h := NewHistory(Config{MaxPerPage: 3, MinInterval: time.Millisecond})
	t0 := time.Unix(1000, 0)
	for i := 0; i < 10; i++ {
		h.Record(1, string(rune('a'+i)), t0.Add(time.Duration(i)*time.Second))
	}
	_, _, entries := h.Stats()
	if entries != 3 {
		t.Fatalf("expected 3 entries, got %d", entries)
	}
	got, _ := h.Undo(1, "z")
	if got != "j" {
		t.Fatalf("newest entry should survive, got %q", got)
	}
}

func TestGlobalByteCapPrunesOldest(t *testing.T) {
	h := NewHistory(Config{MaxBytes: 10, MinInterval: time.Millisecond})
	t0 := time.Unix(1000, 0)
	h.Record(1, "aaaa", t0)
	h.Record(2, "bbbb", t0.Add(time.Second))
	h.Record(3, "cccc", t0.Add(2*time.Second))
	total, _, _ := h.Stats()
	if total > 10 {
		t.Fatalf("total bytes %d over cap", total)
	}
	if h.CanUndo(1) {
		t.Fatalf("oldest page history should have been pruned")
	}
	if !h.CanUndo(3) {
		t.Fatalf("newest page history should remain")
	}
}

func TestRemapFollowsRenumbering(t *testing.T) {
	h := NewHistory(Config{MinInterval: time.Millisecond})
	t0 := time.Unix(1000, 0)
	h.Record(1, "one", t0)
	h.Record(2, "two", t0)
	h.Record(3, "three", t0)
	// page 2 deleted, 3 becomes 2
	h.Remap(pagemodel.Remap{1: 1, 3: 2})

	got, ok := h.Undo(2, "now")
	if !ok || got != "three" {
		t.Fatalf("page 3 history should move to 2, got %q ok=%v", got, ok)
	}
	if h.CanUndo(3) {
		t.Fatalf("old number must not keep history")
	}
	total, pages, _ := h.Stats()
	if pages != 1 {
		t.Fatalf("pages: got %d", pages)
	}
	// "one" on page 1 plus "now" on page 2 redo
	if total != len("one")+len("now") {
		t.Fatalf("byte accounting after remap: %d", total)
	}
}

func TestClearPage(t *testing.T) {
	h := NewHistory(Config{})
	h.Record(4, "abc", time.Now())
	h.ClearPage(4)
	total, pages, entries := h.Stats()
	if total != 0 || pages != 0 || entries != 0 {
		t.Fatalf("expected empty stats, got %d %d %d", total, pages, entries)
	}
}
