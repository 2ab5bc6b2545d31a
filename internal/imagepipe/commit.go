/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imagepipe

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"diarywriter/internal/domain"
	applog "diarywriter/internal/log"
	"diarywriter/internal/pagemodel"
)

// ErrQueueClosed is returned when sending to a closed queue.
var ErrQueueClosed = errors.New("commit queue closed")

// Commit is the envelope an acquisition posts once its image is encoded.
type Commit struct {
	Target
	Resource *domain.ImageResource
}

// Queue carries commits from acquisitions to the applier.
type Queue struct {
	ch     chan Commit
	mu     sync.RWMutex
	closed bool
}

func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan Commit, size)}
}

// Send posts c, blocking while the queue is full.
func (q *Queue) Send(ctx context.Context, c Commit) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C exposes the receive side.
func (q *Queue) C() <-chan Commit { return q.ch }

// Close stops the queue. Pending commits can still be received.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Outcome is the result of applying one commit.
type Outcome struct {
	Commit  Commit
	Applied bool
	// Reason explains a discard.
	Reason string
}

// Model is the part of the page model the applier needs.
type Model interface {
	CommitImage(epoch uint64, n, slot int, res *domain.ImageResource) error
	Current() int
}

// Applier writes commits into the page model. Commits whose page was deleted
// or renumbered, is not an image grid, is locked, or lacks the slot are
// dropped; they are never redirected to another page.
type Applier struct {
	Model Model
	// Refresh, when set, is called after a commit lands on the current page.
	Refresh func(page int)
	l       *slog.Logger
}

func NewApplier(m Model, refresh func(page int)) *Applier {
	return &Applier{Model: m, Refresh: refresh, l: applog.WithComponent("imagepipe")}
}

// Apply writes c if its target is still valid.
func (a *Applier) Apply(c Commit) Outcome {
	l := a.l
	if l == nil {
		l = applog.WithComponent("imagepipe")
	}
	err := a.Model.CommitImage(c.Epoch, c.Page, c.Slot, c.Resource)
	if err != nil {
		reason := discardReason(err)
		l.Info("commit discarded", slog.Int("page", c.Page), slog.Int("slot", c.Slot), slog.String("reason", reason))
		return Outcome{Commit: c, Reason: reason}
	}
	if a.Refresh != nil && a.Model.Current() == c.Page {
		a.Refresh(c.Page)
	}
	return Outcome{Commit: c, Applied: true}
}

// Run applies commits until the queue closes or ctx ends.
func (a *Applier) Run(ctx context.Context, q *Queue, report func(Outcome)) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-q.C():
			if !ok {
				return
			}
			o := a.Apply(c)
			if report != nil {
				report(o)
			}
		}
	}
}

// Drain applies every commit already waiting in q without blocking.
func (a *Applier) Drain(q *Queue) []Outcome {
	var out []Outcome
	for {
		select {
		case c, ok := <-q.C():
			if !ok {
				return out
			}
			out = append(out, a.Apply(c))
		default:
			return out
		}
	}
}

func discardReason(err error) string {
	switch {
	case errors.Is(err, pagemodel.ErrStaleEpoch):
		return "page numbering changed"
	case errors.Is(err, pagemodel.ErrNoSuchPage):
		return "page no longer exists"
	case errors.Is(err, pagemodel.ErrVariantMismatch):
		return "page is not an image grid"
	case errors.Is(err, pagemodel.ErrPageLocked):
		return "page is locked"
	case errors.Is(err, pagemodel.ErrSlotOutOfRange):
		return "slot out of range"
	default:
		return err.Error()
	}
}
