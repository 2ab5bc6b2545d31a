/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend is a reference reports server speaking the remote store
// protocol: GET /reports/{id} and POST /reports.
package backend

import (
	"context"

	"diarywriter/internal/storage"
)

// Repository persists whole reports keyed by id.
type Repository interface {
	GetReport(ctx context.Context, id string) (*storage.Payload, error)
	PutReport(ctx context.Context, p *storage.Payload) error
	Ping(ctx context.Context) error
}

// MemoryRepository keeps reports in process memory.
type MemoryRepository struct {
	store *storage.MemoryStore
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: storage.NewMemoryStore()}
}

func (m *MemoryRepository) GetReport(ctx context.Context, id string) (*storage.Payload, error) {
	return m.store.Get(ctx, id)
}

func (m *MemoryRepository) PutReport(ctx context.Context, p *storage.Payload) error {
	return m.store.Put(ctx, p)
}

func (m *MemoryRepository) Ping(context.Context) error { return nil }
