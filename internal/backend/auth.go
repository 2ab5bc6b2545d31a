/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package backend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	errTokenMalformed = errors.New("malformed token")
	errTokenSignature = errors.New("token signature mismatch")
	errTokenExpired   = errors.New("token expired")
)

// grant is the signed body of a bearer token.
type grant struct {
	Subject string `json:"sub"`
	Issued  int64  `json:"iat"`
	Expires int64  `json:"exp"`
}

// tokenIssuer signs and checks "<body>.<mac>" tokens, both parts base64url.
type tokenIssuer struct{ key []byte }

func newTokenIssuer(secret string) tokenIssuer { return tokenIssuer{key: []byte(secret)} }

func (ti tokenIssuer) mac(body []byte) []byte {
	h := hmac.New(sha256.New, ti.key)
	_, _ = h.Write(body)
	return h.Sum(nil)
}

func (ti tokenIssuer) issue(subject string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	body, err := json.Marshal(grant{Subject: subject, Issued: now.Unix(), Expires: exp.Unix()})
	if err != nil {
		return "", time.Time{}, err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(body) + "." + enc.EncodeToString(ti.mac(body)), exp, nil
}

func (ti tokenIssuer) verify(token string, now time.Time) (grant, error) {
	bodyPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return grant{}, errTokenMalformed
	}
	body, err := base64.RawURLEncoding.DecodeString(bodyPart)
	if err != nil {
		return grant{}, errTokenMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return grant{}, errTokenMalformed
	}
	if !hmac.Equal(ti.mac(body), sig) {
		return grant{}, errTokenSignature
	}
	var g grant
	if err := json.Unmarshal(body, &g); err != nil || g.Subject == "" {
		return grant{}, errTokenMalformed
	}
	if g.Expires < now.Unix() {
		return grant{}, errTokenExpired
	}
	return g, nil
}

type reportHandler func(w http.ResponseWriter, r *http.Request, subject string)

// withAuth rejects requests without a valid bearer token and passes the
// token's subject on.
func (s *Server) withAuth(next reportHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme, token, _ := strings.Cut(r.Header.Get("Authorization"), " ")
		if !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		g, err := s.tokens.verify(strings.TrimSpace(token), s.now())
		if err != nil {
			s.l.Debug("token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		next(w, r, g.Subject)
	}
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiError{Error: err.Error()})
}
