/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package imagepipe acquires an image for a grid slot: it asks a FilePicker for
// a file, validates and encodes it, and posts a Commit envelope tagged with the
// target page, slot and numbering epoch. An Applier consumes the envelopes and
// discards those whose target no longer exists.
package imagepipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"diarywriter/internal/domain"
	applog "diarywriter/internal/log"
)

const (
	DefaultMaxBytes     = 5 << 20
	DefaultTimeout      = 30 * time.Second
	DefaultMaxDimension = 2400
	// MaxPixels bounds the declared size of an image before it is decoded.
	MaxPixels = 40_000_000
)

var (
	ErrCanceled = errors.New("image selection canceled")
	ErrNotImage = errors.New("file is not a supported image")
	ErrTooLarge = errors.New("image exceeds size limit")
	ErrTimeout  = errors.New("image acquisition timed out")
)

// Target identifies the slot an acquisition writes to and the numbering epoch
// it was started under.
type Target struct {
	Page  int
	Slot  int
	Epoch uint64
}

// Pipeline starts acquisitions. Its zero limits fall back to the defaults.
type Pipeline struct {
	Picker       FilePicker
	Queue        *Queue
	MaxBytes     int64
	MaxDimension int
	Timeout      time.Duration
}

func NewPipeline(picker FilePicker, q *Queue) *Pipeline {
	return &Pipeline{
		Picker:       picker,
		Queue:        q,
		MaxBytes:     DefaultMaxBytes,
		MaxDimension: DefaultMaxDimension,
		Timeout:      DefaultTimeout,
	}
}

// Acquisition is one running slot fill. Its state is safe to read from any goroutine.
type Acquisition struct {
	Target Target

	mu      sync.Mutex
	state   State
	history []State
	err     error
	res     *domain.ImageResource
	done    chan struct{}
	cancel  context.CancelFunc
}

func (a *Acquisition) set(s State) {
	a.mu.Lock()
	a.state = s
	a.history = append(a.history, s)
	a.mu.Unlock()
}

// State returns the current step.
func (a *Acquisition) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// History returns every state entered so far, in order.
func (a *Acquisition) History() []State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]State(nil), a.history...)
}

// Err returns the failure that sent the acquisition back to idle, if any.
func (a *Acquisition) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Resource returns the encoded image once the acquisition reached StateEncoded.
func (a *Acquisition) Resource() *domain.ImageResource {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.res
}

// Done is closed when the acquisition ends in StateCommitted or StateIdle.
func (a *Acquisition) Done() <-chan struct{} { return a.done }

// Cancel abandons the acquisition. Resources held by it are released.
func (a *Acquisition) Cancel() { a.cancel() }

// Wait blocks until the acquisition ends and returns its error.
func (a *Acquisition) Wait() error {
	<-a.done
	return a.Err()
}

// Start begins filling t. The returned acquisition runs in its own goroutine
// and is bounded by the pipeline timeout whatever the picker does.
func (p *Pipeline) Start(ctx context.Context, t Target) *Acquisition {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	a := &Acquisition{Target: t, state: StateIdle, history: []State{StateIdle}, done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(a.done)
		defer cancel()
		err := p.run(ctx, a)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", ErrTimeout, err)
			} else if errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%w: %v", ErrCanceled, err)
			}
			a.mu.Lock()
			a.err = err
			a.res = nil
			a.mu.Unlock()
			a.set(StateIdle)
		}
	}()
	return a
}

func (p *Pipeline) run(ctx context.Context, a *Acquisition) error {
	l := applog.WithOperation(applog.WithComponent("imagepipe"), "acquire").With(
		slog.Int("page", a.Target.Page), slog.Int("slot", a.Target.Slot))

	a.set(StateAwaitingFile)
	f, err := p.pick(ctx)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			l.Debug("selection canceled")
		} else {
			l.Warn("file selection failed", slog.Any("err", err))
		}
		return err
	}
	defer f.Body.Close()

	a.set(StateReading)
	maxBytes := p.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if f.Size > maxBytes {
		l.Info("file rejected", slog.String("file", f.Name), slog.Int64("size", f.Size), slog.String("reason", "too large"))
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, f.Size, maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(ctxReader{ctx, f.Body}, maxBytes+1))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		l.Info("file rejected", slog.String("file", f.Name), slog.String("reason", "too large"))
		return fmt.Errorf("%w: limit %d bytes", ErrTooLarge, maxBytes)
	}
	res, err := encodeResource(f.Name, data, p.MaxDimension)
	if err != nil {
		l.Info("file rejected", slog.String("file", f.Name), slog.Any("err", err))
		return err
	}
	a.mu.Lock()
	a.res = res
	a.mu.Unlock()
	a.set(StateEncoded)

	if p.Queue != nil {
		if err := p.Queue.Send(ctx, Commit{Target: a.Target, Resource: res}); err != nil {
			return err
		}
	}
	a.set(StateCommitted)
	l.Debug("image committed", slog.String("mime", res.MIME), slog.Int("width", res.Width), slog.Int("height", res.Height))
	return nil
}

// pick runs the picker in its own goroutine so an unresponsive picker cannot
// outlive the acquisition. A file delivered after the deadline is closed.
func (p *Pipeline) pick(ctx context.Context) (File, error) {
	if p.Picker == nil {
		return File{}, errors.New("no file picker configured")
	}
	type result struct {
		f   File
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := p.Picker.Pick(ctx)
		ch <- result{f, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			if r.f.Body != nil {
				_ = r.f.Body.Close()
			}
			return File{}, r.err
		}
		if r.f.Body == nil {
			return File{}, ErrCanceled
		}
		return r.f, nil
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.f.Body != nil {
				_ = r.f.Body.Close()
			}
		}()
		return File{}, ctx.Err()
	}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
