/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnauthorized reports a request the reports API rejected for its credentials.
var ErrUnauthorized = errors.New("unauthorized")

// maxResponseBytes caps how much of a server reply is read into memory.
const maxResponseBytes = 64 << 20

// HTTPStore talks to the reports API: GET /reports/{id} and POST /reports.
// A 404 or an empty body is reported as ErrNotFound.
type HTTPStore struct {
	BaseURL string
	Token   string // bearer token
	client  *http.Client
}

// NewHTTPStore creates a store for baseURL. A trailing slash is normalized away.
func NewHTTPStore(baseURL, token string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	u, err := url.Parse(s.BaseURL + path)
	if err != nil {
		return nil, err
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	return s.client.Do(req)
}

func (s *HTTPStore) Get(ctx context.Context, id string) (*Payload, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	resp, err := s.do(ctx, http.MethodGet, "/reports/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: GET /reports/%s: %s", ErrUnauthorized, id, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server GET /reports/%s: %s", id, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, ErrNotFound
	}
	p, err := Unmarshal(trimmed)
	if err != nil {
		return nil, err
	}
	if p.TotalPages == 0 && len(p.Pages) == 0 {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *HTTPStore) Put(ctx context.Context, p *Payload) error {
	if p == nil || !ValidID(p.ID) {
		return ErrInvalidID
	}
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	resp, err := s.do(ctx, http.MethodPost, "/reports", data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: POST /reports: %s", ErrUnauthorized, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server POST /reports: %s", resp.Status)
	}
	return nil
}
