/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package autosave persists a diary shortly after each edit and on demand.
package autosave

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"diarywriter/internal/domain"
	applog "diarywriter/internal/log"
	"diarywriter/internal/storage"
)

// DefaultDelay is the quiet period after the last edit before a save starts.
const DefaultDelay = time.Second

// DefaultWriteTimeout bounds a single background save.
const DefaultWriteTimeout = 30 * time.Second

// Source yields a consistent copy of the document and its lock set.
type Source interface {
	Snapshot() (*domain.Document, []int)
}

// Persister writes a payload to durable storage.
type Persister interface {
	Save(ctx context.Context, p *storage.Payload) (storage.Ack, error)
}

// Saver debounces edit notifications into saves. Snapshots are taken at the
// moment a save is requested; writes are serialized and a write whose snapshot
// is older than one already written is skipped.
type Saver struct {
	src       Source
	dst       Persister
	debounced func(func())
	timeout   time.Duration
	l         *slog.Logger

	wg        sync.WaitGroup
	captureMu sync.Mutex
	writeMu   sync.Mutex

	mu      sync.Mutex
	seq     uint64
	written uint64
	dirty   bool
	stopped bool
	lastAck storage.Ack
	lastErr error
	onSaved func(storage.Ack, error)
}

// New returns a saver with the given debounce delay (DefaultDelay when zero).
func New(src Source, dst Persister, delay time.Duration) *Saver {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Saver{
		src:       src,
		dst:       dst,
		debounced: debounce.New(delay),
		timeout:   DefaultWriteTimeout,
		l:         applog.WithComponent("autosave"),
	}
}

// OnSaved registers a callback invoked after every completed write.
func (s *Saver) OnSaved(fn func(storage.Ack, error)) {
	s.mu.Lock()
	s.onSaved = fn
	s.mu.Unlock()
}

// Notify marks the document dirty and (re)starts the debounce timer.
func (s *Saver) Notify() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
	s.debounced(s.fire)
}

// Dirty reports whether edits happened since the last captured snapshot.
func (s *Saver) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Stop disables debounced saves. A timer still pending when Stop returns does
// nothing; explicit Flush calls keep working.
func (s *Saver) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *Saver) fire() {
	s.mu.Lock()
	if s.stopped || !s.dirty {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	s.writeAsync()
}

// Flush captures a snapshot and writes it before returning.
func (s *Saver) Flush(ctx context.Context) (storage.Ack, error) {
	seq, p := s.capture()
	return s.write(ctx, seq, p)
}

// FlushAsync captures a snapshot now and writes it in the background. Use Wait
// to block until pending writes are done.
func (s *Saver) FlushAsync() {
	s.mu.Lock()
	s.wg.Add(1)
	s.mu.Unlock()
	s.writeAsync()
}

// writeAsync captures and writes in the background. The caller has already
// added to wg.
func (s *Saver) writeAsync() {
	seq, p := s.capture()
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.write(ctx, seq, p)
	}()
}

// Wait blocks until every background write has finished.
func (s *Saver) Wait() { s.wg.Wait() }

// LastAck returns the outcome of the most recent write.
func (s *Saver) LastAck() (storage.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAck, s.lastErr
}

func (s *Saver) capture() (uint64, *storage.Payload) {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	doc, locks := s.src.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.dirty = false
	return s.seq, storage.Encode(doc, locks)
}

func (s *Saver) write(ctx context.Context, seq uint64, p *storage.Payload) (storage.Ack, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if seq < s.written {
		ack, err := s.lastAck, s.lastErr
		s.mu.Unlock()
		s.l.Debug("stale snapshot skipped", slog.Uint64("seq", seq), slog.Uint64("written", s.written))
		return ack, err
	}
	s.mu.Unlock()

	ack, err := s.dst.Save(applog.ContextWithDocument(ctx, p.ID), p)
	if err != nil {
		s.l.Error("autosave failed", slog.String("doc", p.ID), slog.Any("err", err))
	}

	s.mu.Lock()
	s.written = seq
	s.lastAck, s.lastErr = ack, err
	cb := s.onSaved
	s.mu.Unlock()
	if cb != nil {
		cb(ack, err)
	}
	return ack, err
}
