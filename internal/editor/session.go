/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor ties the page model to autosave, image acquisition, undo
// and the editor render adapter. It is what a host surface drives.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"diarywriter/internal/autosave"
	"diarywriter/internal/domain"
	"diarywriter/internal/imagepipe"
	applog "diarywriter/internal/log"
	"diarywriter/internal/pagemodel"
	"diarywriter/internal/render"
	"diarywriter/internal/storage"
	"diarywriter/internal/undo"
)

// ErrPageLocked is returned for edits to a read-only page.
var ErrPageLocked = pagemodel.ErrPageLocked

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Mode is the render mode of the current page.
type Mode string

const (
	ModeText      Mode = "text"
	ModeImageGrid Mode = "imageGrid"
)

// Store is the persistence the session loads from and saves to.
type Store interface {
	Load(ctx context.Context, id string) (*storage.Payload, storage.Source, error)
	Save(ctx context.Context, p *storage.Payload) (storage.Ack, error)
}

// Options configures a session. Zero values pick defaults.
type Options struct {
	// Title is used when no saved document exists.
	Title         string
	Picker        imagepipe.FilePicker
	AutosaveDelay time.Duration
	QueueSize     int
	Undo          undo.Config
	// Refresh is called when content of the current page changed outside a
	// direct call, such as an image commit.
	Refresh func(page int)
	// Outcome receives the result of every image commit.
	Outcome func(imagepipe.Outcome)
}

// Session is one open document.
type Session struct {
	model   *pagemodel.Model
	saver   *autosave.Saver
	queue   *imagepipe.Queue
	pipe    *imagepipe.Pipeline
	applier *imagepipe.Applier
	history *undo.History
	unsub   func()
	stop    context.CancelFunc
	done    chan struct{}
	source  storage.Source
	created bool
	now     func() time.Time
	l       *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open loads document id from store. When nothing is saved under id a new
// document with one empty text page is created. Any other load failure,
// including storage.ErrUnavailable, is returned and nothing is written.
func Open(ctx context.Context, id string, store Store, opt Options) (*Session, error) {
	if !storage.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidID, id)
	}
	l := applog.WithComponent("editor").With(slog.String("doc", id))

	var (
		model   *pagemodel.Model
		source  storage.Source
		created bool
	)
	p, src, err := store.Load(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		l.Info("no saved report, starting empty")
		model = pagemodel.NewEmpty(id, opt.Title)
		created = true
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", id, err)
	default:
		doc, locks, err := storage.Decode(p)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		model, err = pagemodel.New(doc, locks)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", id, err)
		}
		source = src
		l.Info("report loaded", slog.String("source", string(src)), slog.Int("pages", model.TotalPages()))
	}

	s := &Session{
		model:   model,
		history: undo.NewHistory(opt.Undo),
		queue:   imagepipe.NewQueue(opt.QueueSize),
		source:  source,
		created: created,
		now:     time.Now,
		done:    make(chan struct{}),
		l:       l,
	}
	s.saver = autosave.New(model, store, opt.AutosaveDelay)
	s.pipe = imagepipe.NewPipeline(opt.Picker, s.queue)
	s.applier = imagepipe.NewApplier(model, opt.Refresh)
	s.unsub = model.Subscribe(s.onChange)

	runCtx, stop := context.WithCancel(context.Background())
	s.stop = stop
	go func() {
		defer close(s.done)
		s.applier.Run(runCtx, s.queue, opt.Outcome)
	}()
	return s, nil
}

// onChange runs under the model lock.
func (s *Session) onChange(c pagemodel.Change) {
	if c.Remap != nil {
		s.history.Remap(c.Remap)
	}
	if c.Kind != pagemodel.ChangeNavigation {
		s.saver.Notify()
	}
}

// Model exposes the page model for read access and lower level edits.
func (s *Session) Model() *pagemodel.Model { return s.model }

// Created reports whether Open started a new document.
func (s *Session) Created() bool { return s.created }

// Source reports the tier the document was loaded from.
func (s *Session) Source() storage.Source { return s.source }

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Mode returns the render mode of the current page.
func (s *Session) Mode() Mode {
	p, err := s.model.Page(s.model.Current())
	if err == nil && p.Kind == domain.KindImageGrid {
		return ModeImageGrid
	}
	return ModeText
}

// Navigate issues a save of the page being left and then makes n current.
func (s *Session) Navigate(n int) (Mode, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if n < 1 || n > s.model.TotalPages() {
		return s.Mode(), fmt.Errorf("%w: %d", pagemodel.ErrNoSuchPage, n)
	}
	if n != s.model.Current() {
		s.saver.FlushAsync()
	}
	if err := s.model.Navigate(n); err != nil {
		return s.Mode(), err
	}
	return s.Mode(), nil
}

// SetText replaces the HTML of text page n and records the previous text for undo.
func (s *Session) SetText(n int, html string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.model.IsLocked(n) {
		return fmt.Errorf("%w: %d", ErrPageLocked, n)
	}
	p, err := s.model.Page(n)
	if err != nil {
		return err
	}
	if p.Kind != domain.KindText {
		return fmt.Errorf("%w: page %d is %s", pagemodel.ErrVariantMismatch, n, p.Kind)
	}
	if p.HTML == html {
		return nil
	}
	if err := s.model.SetText(n, html); err != nil {
		return err
	}
	s.history.Record(n, p.HTML, s.now())
	return nil
}

// SetHeader replaces the header of image-grid page n.
func (s *Session) SetHeader(n int, header string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.model.IsLocked(n) {
		return fmt.Errorf("%w: %d", ErrPageLocked, n)
	}
	return s.model.SetHeader(n, header)
}

// Undo reverts the last text edit of page n. It reports false when there is
// nothing to undo.
func (s *Session) Undo(n int) (bool, error) {
	return s.step(n, s.history.Undo)
}

// Redo reapplies the last undone text edit of page n.
func (s *Session) Redo(n int) (bool, error) {
	return s.step(n, s.history.Redo)
}

func (s *Session) step(n int, op func(page int, current string) (string, bool)) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	if s.model.IsLocked(n) {
		return false, fmt.Errorf("%w: %d", ErrPageLocked, n)
	}
	p, err := s.model.Page(n)
	if err != nil {
		return false, err
	}
	if p.Kind != domain.KindText {
		return false, fmt.Errorf("%w: page %d is %s", pagemodel.ErrVariantMismatch, n, p.Kind)
	}
	html, ok := op(n, p.HTML)
	if !ok {
		return false, nil
	}
	return true, s.model.SetText(n, html)
}

// AppendDiary adds count image-grid pages built from spec.
func (s *Session) AppendDiary(count int, spec pagemodel.GridSpec) ([]int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.model.AppendPages(domain.KindImageGrid, count, spec)
}

// AppendText adds count empty text pages.
func (s *Session) AppendText(count int) ([]int, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.model.AppendPages(domain.KindText, count, pagemodel.GridSpec{})
}

// Delete removes pages and renumbers the rest. Undo history follows the
// renumbering; image acquisitions started before the call are discarded.
func (s *Session) Delete(pages []int) (pagemodel.Remap, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.model.DeletePages(pages)
}

// Lock makes page n read-only.
func (s *Session) Lock(n int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.model.Lock(n)
}

// Unlock makes page n editable.
func (s *Session) Unlock(n int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.model.Unlock(n)
}

// ClickSlot starts an image acquisition for slot of the current page. The
// result is applied asynchronously and only if the page still has the same
// number when it arrives.
func (s *Session) ClickSlot(ctx context.Context, slot int) (*imagepipe.Acquisition, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	n := s.model.Current()
	if s.model.IsLocked(n) {
		return nil, fmt.Errorf("%w: %d", ErrPageLocked, n)
	}
	p, err := s.model.Page(n)
	if err != nil {
		return nil, err
	}
	if p.Kind != domain.KindImageGrid {
		return nil, fmt.Errorf("%w: page %d is %s", pagemodel.ErrVariantMismatch, n, p.Kind)
	}
	if slot < 0 || slot >= len(p.Grid.Images) {
		return nil, fmt.Errorf("%w: %d", pagemodel.ErrSlotOutOfRange, slot)
	}
	t := imagepipe.Target{Page: n, Slot: slot, Epoch: s.model.Epoch()}
	s.l.Debug("slot clicked", slog.Int("page", n), slog.Int("slot", slot))
	return s.pipe.Start(ctx, t), nil
}

// Save writes the whole document now.
func (s *Session) Save(ctx context.Context) (storage.Ack, error) {
	if err := s.checkOpen(); err != nil {
		return storage.Ack{}, err
	}
	return s.saver.Flush(ctx)
}

// Tree resolves the document for the render adapters.
func (s *Session) Tree() render.Tree {
	doc, locks := s.model.Snapshot()
	return render.Build(doc, locks)
}

// View renders the current page for the editor surface.
func (s *Session) View() (string, error) {
	return render.EditorHTML(s.Tree(), s.model.Current())
}

// Close stops image commits, writes the document and waits for pending
// background saves.
func (s *Session) Close(ctx context.Context) (storage.Ack, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.saver.LastAck()
	}
	s.closed = true
	s.mu.Unlock()

	s.queue.Close()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.stop()
		<-s.done
	}
	s.stop()
	s.unsub()
	s.saver.Stop()
	ack, err := s.saver.Flush(ctx)
	s.saver.Wait()
	if err != nil {
		s.l.Warn("final save failed", slog.Any("err", err))
	}
	return ack, err
}
