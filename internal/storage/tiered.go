/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	applog "diarywriter/internal/log"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = 200 * time.Millisecond
)

// Precedence decides which tier wins when both hold a report.
type Precedence string

const (
	// PreferPrimary always picks the primary when it has the report. This is the default.
	PreferPrimary Precedence = "primary"
	// PreferNewest picks the payload with the later lastModified; ties go to the primary.
	PreferNewest Precedence = "newest"
)

// Source names the tier a loaded report came from.
type Source string

const (
	SourcePrimary Source = "primary"
	SourceCache   Source = "cache"
)

// Ack reports the outcome of a save on each tier.
type Ack struct {
	PrimaryErr error
	CacheErr   error
	// Verified is true when a read-back after the write reported the same page count.
	Verified   bool
	TotalPages int
	SavedAt    time.Time
}

// OK reports whether at least one tier accepted the write.
func (a Ack) OK() bool { return a.PrimaryErr == nil || a.CacheErr == nil }

// Tiered coordinates the remote primary and the local cache. Primary may be nil
// for an offline session.
type Tiered struct {
	Primary    PrimaryStore
	Cache      CacheStore
	Attempts   int
	Backoff    time.Duration
	Precedence Precedence
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewTiered(primary PrimaryStore, cache CacheStore) *Tiered {
	return &Tiered{
		Primary:    primary,
		Cache:      cache,
		Attempts:   DefaultAttempts,
		Backoff:    DefaultBackoff,
		Precedence: PreferPrimary,
		Sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (t *Tiered) attempts() int {
	if t.Attempts <= 0 {
		return 1
	}
	return t.Attempts
}

func (t *Tiered) wait(ctx context.Context, attempt int) error {
	if attempt >= t.attempts() {
		return nil
	}
	d := t.Backoff << (attempt - 1)
	sleep := t.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return sleep(ctx, d)
}

// Save writes p to the primary (with retries) and then to the cache. The cache
// write happens whatever the primary's outcome. An error is returned only when
// no tier accepted the report.
func (t *Tiered) Save(ctx context.Context, p *Payload) (Ack, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "save").With(slog.String("doc", p.ID))
	ack := Ack{TotalPages: p.TotalPages, SavedAt: time.Now()}

	if t.Primary == nil {
		ack.PrimaryErr = errors.New("no primary store configured")
	} else {
		for attempt := 1; attempt <= t.attempts(); attempt++ {
			ack.PrimaryErr = t.Primary.Put(ctx, p)
			if ack.PrimaryErr == nil || errors.Is(ack.PrimaryErr, ErrInvalidID) || errors.Is(ack.PrimaryErr, ErrUnauthorized) {
				break
			}
			l.Warn("primary write failed", slog.Int("attempt", attempt), slog.Any("err", ack.PrimaryErr))
			if err := t.wait(ctx, attempt); err != nil {
				ack.PrimaryErr = err
				break
			}
		}
	}
	if t.Cache != nil {
		ack.CacheErr = t.Cache.Put(ctx, p)
	} else {
		ack.CacheErr = errors.New("no cache store configured")
	}
	if ack.CacheErr != nil {
		l.Warn("cache write failed", slog.Any("err", ack.CacheErr))
	}
	if !ack.OK() {
		l.Error("report not persisted", slog.Any("primary_err", ack.PrimaryErr), slog.Any("cache_err", ack.CacheErr))
		return ack, fmt.Errorf("save report %s: primary: %v; cache: %w", p.ID, ack.PrimaryErr, ack.CacheErr)
	}

	ack.Verified = t.verify(ctx, l, p, ack)
	l.Debug("report saved", slog.Int("total_pages", p.TotalPages), slog.Bool("verified", ack.Verified), slog.Bool("primary_ok", ack.PrimaryErr == nil))
	return ack, nil
}

// verify re-reads the report from the tier that accepted it, preferring the
// primary, and compares page counts. A mismatch is logged; it does not fail the save.
func (t *Tiered) verify(ctx context.Context, l *slog.Logger, p *Payload, ack Ack) bool {
	var store Store = t.Cache
	if ack.PrimaryErr == nil {
		store = t.Primary
	}
	got, err := store.Get(ctx, p.ID)
	if err != nil {
		l.Warn("save verification read failed", slog.Any("err", err))
		return false
	}
	if got.TotalPages != p.TotalPages {
		l.Warn("save verification mismatch", slog.Int("expected_pages", p.TotalPages), slog.Int("stored_pages", got.TotalPages))
		return false
	}
	return true
}

// Load reads the report from both tiers. When either holds it the two are
// merged by precedence. When neither does, the read is retried with a doubling
// backoff. After the last attempt the result is ErrNotFound when every tier
// answered "not found", and ErrUnavailable wrapping the last failure otherwise.
func (t *Tiered) Load(ctx context.Context, id string) (*Payload, Source, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "load").With(slog.String("doc", id))
	var lastErr error
	for attempt := 1; attempt <= t.attempts(); attempt++ {
		var primary, cached *Payload
		if t.Primary != nil {
			p, err := t.Primary.Get(ctx, id)
			if err != nil && !errors.Is(err, ErrNotFound) {
				lastErr = err
				l.Warn("primary read failed", slog.Int("attempt", attempt), slog.Any("err", err))
			}
			primary = p
		}
		if t.Cache != nil {
			c, err := t.Cache.Get(ctx, id)
			if err != nil && !errors.Is(err, ErrNotFound) {
				lastErr = err
				l.Warn("cache read failed", slog.Int("attempt", attempt), slog.Any("err", err))
			}
			cached = c
		}
		if p, src := t.pick(primary, cached); p != nil {
			l.Debug("report loaded", slog.String("source", string(src)), slog.Int("attempt", attempt))
			return p, src, nil
		}
		if err := t.wait(ctx, attempt); err != nil {
			return nil, "", err
		}
	}
	if lastErr != nil {
		return nil, "", fmt.Errorf("load report %s: %w: %w", id, ErrUnavailable, lastErr)
	}
	return nil, "", ErrNotFound
}

func (t *Tiered) pick(primary, cached *Payload) (*Payload, Source) {
	switch {
	case primary == nil && cached == nil:
		return nil, ""
	case cached == nil:
		return primary, SourcePrimary
	case primary == nil:
		return cached, SourceCache
	}
	if t.Precedence == PreferPrimary {
		return primary, SourcePrimary
	}
	if cached.LastModified.After(primary.LastModified) {
		return cached, SourceCache
	}
	return primary, SourcePrimary
}
