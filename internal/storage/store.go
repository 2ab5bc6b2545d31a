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
	"regexp"
	"sort"
	"sync"
)

// ErrNotFound reports that a store holds no report under the requested id.
var ErrNotFound = errors.New("report not found")

// ErrInvalidID rejects report ids that cannot be used as a file or object name.
var ErrInvalidID = errors.New("invalid report id")

// ErrUnavailable reports that no tier could be read. The report may exist, so
// callers must not treat it as absent.
var ErrUnavailable = errors.New("report store unavailable")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidID reports whether id is usable across every store backend.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// Store is a keyed report store. Both the authoritative remote and the local
// caches implement it.
type Store interface {
	Get(ctx context.Context, id string) (*Payload, error)
	Put(ctx context.Context, p *Payload) error
}

// PrimaryStore is the authoritative remote tier.
type PrimaryStore interface{ Store }

// CacheStore is the local tier. It is written on every save regardless of the
// primary's outcome.
type CacheStore interface{ Store }

// Lister is implemented by stores that can enumerate the reports they hold.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// MemoryStore keeps payloads in process memory. It backs tests and offline sessions.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string][]byte
	// Fail, when set, is returned by every call.
	Fail error
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{items: make(map[string][]byte)} }

func (m *MemoryStore) Get(_ context.Context, id string) (*Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	b, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return Unmarshal(b)
}

func (m *MemoryStore) Put(_ context.Context, p *Payload) error {
	if p == nil || !ValidID(p.ID) {
		return ErrInvalidID
	}
	b, err := Marshal(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.items[p.ID] = b
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
