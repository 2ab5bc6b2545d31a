/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	applog "diarywriter/internal/log"
	"diarywriter/internal/storage"
	"diarywriter/internal/version"
)

// MaxReportBytes bounds a POST /reports body. Images travel inline.
const MaxReportBytes = 64 << 20

// DevSecret signs tokens when no secret is configured.
const DevSecret = "dev-secret-change-me"

// Server serves reports from a Repository.
type Server struct {
	repo   Repository
	tokens tokenIssuer
	now    func() time.Time
	l      *slog.Logger
}

// NewServer returns a server signing tokens with secret (DevSecret when empty).
func NewServer(repo Repository, secret string) *Server {
	l := applog.WithComponent("backend")
	if secret == "" {
		secret = DevSecret
		l.Warn("no auth secret configured; using insecure dev secret")
	}
	return &Server{repo: repo, tokens: newTokenIssuer(secret), now: time.Now, l: l}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	// Health endpoints
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.repo.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("db not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(version.String()))
	})
	mux.HandleFunc("POST /api/auth/token", s.issueToken)
	mux.HandleFunc("GET /reports/{id}", s.withAuth(s.getReport))
	mux.HandleFunc("POST /reports", s.withAuth(s.putReport))
	return mux
}

// POST /api/auth/token → { token, expires_at }
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	// Optional JSON body: { "subject": "name", "ttl_seconds": 3600 }
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	_ = json.Unmarshal(b, &req)
	if req.Subject == "" {
		req.Subject = "dev"
	}
	if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
		req.TTLSeconds = 3600
	}
	tok, exp, err := s.tokens.issue(req.Subject, s.now(), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request, sub string) {
	id := r.PathValue("id")
	if !storage.ValidID(id) {
		writeError(w, http.StatusBadRequest, storage.ErrInvalidID)
		return
	}
	p, err := s.repo.GetReport(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		s.l.Error("report read failed", slog.String("doc", id), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putReport(w http.ResponseWriter, r *http.Request, sub string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxReportBytes+1))
	_ = r.Body.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > MaxReportBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("report exceeds %d bytes", MaxReportBytes))
		return
	}
	p, err := storage.Unmarshal(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !storage.ValidID(p.ID) {
		writeError(w, http.StatusBadRequest, storage.ErrInvalidID)
		return
	}
	if err := s.repo.PutReport(r.Context(), p); err != nil {
		s.l.Error("report write failed", slog.String("doc", p.ID), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.l.Debug("report stored", slog.String("doc", p.ID), slog.Int("total_pages", p.TotalPages), slog.String("sub", sub))
	writeJSON(w, http.StatusOK, map[string]any{"id": p.ID, "totalPages": p.TotalPages})
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.l.Info("reports server listening", slog.String("addr", ln.Addr().String()))
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
