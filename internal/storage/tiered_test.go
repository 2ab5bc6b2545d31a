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
	"strings"
	"testing"
	"time"
)

// flakyStore fails the first n calls of each kind, then delegates.
type flakyStore struct {
	*MemoryStore
	getFails, putFails int
	gets, puts         int
	err                error
}

func (f *flakyStore) Get(ctx context.Context, id string) (*Payload, error) {
	f.gets++
	if f.gets <= f.getFails {
		return nil, f.err
	}
	return f.MemoryStore.Get(ctx, id)
}

func (f *flakyStore) Put(ctx context.Context, p *Payload) error {
	f.puts++
	if f.puts <= f.putFails {
		return f.err
	}
	return f.MemoryStore.Put(ctx, p)
}

// truncatingStore stores a payload with one page fewer than it was given.
type truncatingStore struct{ *MemoryStore }

func (s truncatingStore) Put(ctx context.Context, p *Payload) error {
	cp := *p
	cp.TotalPages--
	cp.Pages = cp.Pages[:cp.TotalPages]
	return s.MemoryStore.Put(ctx, &cp)
}

func newTestTiered(primary PrimaryStore, cache CacheStore) (*Tiered, *[]time.Duration) {
	t := NewTiered(primary, cache)
	var waits []time.Duration
	t.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return t, &waits
}

func TestSaveWritesBothTiersAndVerifies(t *testing.T) {
	primary, cache := NewMemoryStore(), NewMemoryStore()
	tr, _ := newTestTiered(primary, cache)
	p := Encode(sampleDoc(), nil)
	ack, err := tr.Save(context.Background(), p)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ack.PrimaryErr != nil || ack.CacheErr != nil || !ack.Verified || ack.TotalPages != 2 {
		t.Fatalf("ack = %+v", ack)
	}
	for name, s := range map[string]*MemoryStore{"primary": primary, "cache": cache} {
		if _, err := s.Get(context.Background(), p.ID); err != nil {
			t.Fatalf("%s missing report: %v", name, err)
		}
	}
}

func TestSaveCacheWrittenWhenPrimaryDown(t *testing.T) {
	down := errors.New("connection refused")
	primary := &flakyStore{MemoryStore: NewMemoryStore(), putFails: 99, err: down}
	cache := NewMemoryStore()
	tr, waits := newTestTiered(primary, cache)
	ack, err := tr.Save(context.Background(), Encode(sampleDoc(), nil))
	if err != nil {
		t.Fatalf("save should succeed via cache: %v", err)
	}
	if !errors.Is(ack.PrimaryErr, down) || ack.CacheErr != nil || !ack.Verified {
		t.Fatalf("ack = %+v", ack)
	}
	if primary.puts != DefaultAttempts {
		t.Fatalf("primary puts = %d, want %d", primary.puts, DefaultAttempts)
	}
	want := []time.Duration{200 * time.Millisecond, 400 * time.Millisecond}
	if len(*waits) != len(want) || (*waits)[0] != want[0] || (*waits)[1] != want[1] {
		t.Fatalf("backoff = %v, want %v", *waits, want)
	}
}

func TestSaveFailsWhenBothTiersFail(t *testing.T) {
	primary := NewMemoryStore()
	primary.Fail = errors.New("remote down")
	cache := NewMemoryStore()
	cache.Fail = errors.New("disk full")
	tr, _ := newTestTiered(primary, cache)
	ack, err := tr.Save(context.Background(), Encode(sampleDoc(), nil))
	if err == nil || ack.OK() {
		t.Fatalf("expected failure, ack=%+v", ack)
	}
}

func TestSaveVerificationMismatchIsReported(t *testing.T) {
	tr, _ := newTestTiered(truncatingStore{NewMemoryStore()}, NewMemoryStore())
	ack, err := tr.Save(context.Background(), Encode(sampleDoc(), nil))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if ack.Verified {
		t.Fatal("expected verification to fail on page count mismatch")
	}
}

func TestLoadRetriesUntilPrimaryAnswers(t *testing.T) {
	mem := NewMemoryStore()
	p := Encode(sampleDoc(), nil)
	_ = mem.Put(context.Background(), p)
	primary := &flakyStore{MemoryStore: mem, getFails: 2, err: errors.New("timeout")}
	tr, waits := newTestTiered(primary, NewMemoryStore())
	got, src, err := tr.Load(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if src != SourcePrimary || got.TotalPages != 2 || primary.gets != 3 || len(*waits) != 2 {
		t.Fatalf("src=%s total=%d gets=%d waits=%v", src, got.TotalPages, primary.gets, *waits)
	}
}

func TestLoadNotFoundAfterAttempts(t *testing.T) {
	tr, waits := newTestTiered(NewMemoryStore(), NewMemoryStore())
	_, _, err := tr.Load(context.Background(), "nothing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(*waits) != DefaultAttempts-1 {
		t.Fatalf("waits = %v", *waits)
	}
}

func TestLoadUnavailableIsNotNotFound(t *testing.T) {
	primary := NewMemoryStore()
	primary.Fail = errors.New("connection refused")
	tr, waits := newTestTiered(primary, NewMemoryStore())
	_, _, err := tr.Load(context.Background(), "site-1")
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("outage reported as not found: %v", err)
	}
	if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected ErrUnavailable with cause, got %v", err)
	}
	if len(*waits) != DefaultAttempts-1 {
		t.Fatalf("waits = %v", *waits)
	}
}

func TestLoadPrecedence(t *testing.T) {
	older := Encode(sampleDoc(), nil)
	newer := Encode(sampleDoc(), nil)
	newer.LastModified = older.LastModified.Add(time.Hour)
	newer.Title = "cache copy"

	primary, cache := NewMemoryStore(), NewMemoryStore()
	_ = primary.Put(context.Background(), older)
	_ = cache.Put(context.Background(), newer)

	tr, _ := newTestTiered(primary, cache)
	if tr.Precedence != PreferPrimary {
		t.Fatalf("default precedence = %s", tr.Precedence)
	}
	tr.Precedence = PreferNewest
	got, src, err := tr.Load(context.Background(), older.ID)
	if err != nil || src != SourceCache || got.Title != "cache copy" {
		t.Fatalf("newest: src=%s title=%q err=%v", src, got.Title, err)
	}

	tr.Precedence = PreferPrimary
	got, src, err = tr.Load(context.Background(), older.ID)
	if err != nil || src != SourcePrimary || got.Title != older.Title {
		t.Fatalf("primary: src=%s title=%q err=%v", src, got.Title, err)
	}
}

func TestLoadFallsBackToCacheWhenPrimaryDown(t *testing.T) {
	primary := NewMemoryStore()
	primary.Fail = errors.New("offline")
	cache := NewMemoryStore()
	p := Encode(sampleDoc(), nil)
	_ = cache.Put(context.Background(), p)
	tr, waits := newTestTiered(primary, cache)
	_, src, err := tr.Load(context.Background(), p.ID)
	if err != nil || src != SourceCache || len(*waits) != 0 {
		t.Fatalf("src=%s err=%v waits=%v", src, err, *waits)
	}
}
