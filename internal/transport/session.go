// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package transport wraps the shared HTTP client, session/credential
// binding, and the generic retry-with-backoff policy used by every
// outbound call to the upstream API.
package transport

import (
	"net/http"
	"time"
)

// Session binds one HTTP client to (at most) one credential value at a
// time. Each pipeline worker creates its own Session at startup; sessions
// are never migrated between workers, so a failure observed on a session
// always attributes to the credential currently bound to it, never to some
// other worker's credential. The retry loop may Rebind it after a
// credential-related failure.
type Session struct {
	Client      *http.Client
	Credential  string
	HasCred     bool
	UserAgent   string
}

// NewSession builds a Session with sane transport-level pooling defaults,
// binding the given credential value (if any) until the next Rebind.
func NewSession(credential string, hasCred bool, userAgent string, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Session{
		Client:     &http.Client{Transport: transport, Timeout: timeout},
		Credential: credential,
		HasCred:    hasCred,
		UserAgent:  userAgent,
	}
}

// Rebind swaps the session's bound credential in place. Used by the retry
// loop after a credential-related failure: callers hold a pointer to this
// Session, so the next attempt transparently picks up the new credential
// without the caller having to reconstruct its closure.
func (s *Session) Rebind(credential string, hasCred bool) {
	s.Credential = credential
	s.HasCred = hasCred
}

// ApplyHeaders sets the session's User-Agent and cookie headers on req,
// if present, plus a fixed Referer.
func (s *Session) ApplyHeaders(req *http.Request) {
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	if s.HasCred {
		req.Header.Set("Cookie", s.Credential)
	}
	req.Header.Set("Referer", "https://www.bilibili.com")
}
