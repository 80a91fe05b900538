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

// Package stats tracks pipeline emission/skip counters per entity kind
// using the VSA (vector-scalar accumulator) pattern: each counter absorbs
// increments in an in-memory vector, and a background worker periodically
// folds the vector into the Prometheus-visible scalar. This keeps the hot
// path (a worker goroutine bumping a counter after every record) lock-free
// beyond a single VSA's own mutex, instead of hitting Prometheus directly
// on every increment.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"biliclaw/pkg/vsa"
)

// managedCounter pairs a VSA with bookkeeping: when it was last touched,
// and an armed flag set at creation (mirrors the rate limiter's own
// managedVSA wrapper). The flush worker reads neither field; it flushes
// every counter whose vector is non-zero on each cycle.
type managedCounter struct {
	instance     *vsa.VSA
	lastAccessed int64
	armed        atomic.Bool
}

// Store is the in-memory set of named counters: "emitted:video",
// "skipped:comment", "emitted:account", and so on. Stage code only
// ever calls Incr; the flush worker is the sole reader of ForEach.
type Store struct {
	counters sync.Map
}

// NewStore constructs an empty counter store.
func NewStore() *Store { return &Store{} }

func (s *Store) getOrCreate(key string) *managedCounter {
	if actual, ok := s.counters.Load(key); ok {
		mc := actual.(*managedCounter)
		atomic.StoreInt64(&mc.lastAccessed, time.Now().UnixNano())
		return mc
	}
	now := time.Now().UnixNano()
	fresh := &managedCounter{instance: vsa.New(0), lastAccessed: now}
	fresh.armed.Store(true)
	if actual, loaded := s.counters.LoadOrStore(key, fresh); loaded {
		mc := actual.(*managedCounter)
		atomic.StoreInt64(&mc.lastAccessed, now)
		return mc
	}
	return fresh
}

// Incr bumps the named counter by delta (typically +1 per emitted or
// skipped record). Safe for concurrent use across every worker goroutine.
// A nil Store is a no-op, so callers that run without metrics wiring (e.g.
// tests) don't need to guard every call site.
func (s *Store) Incr(key string, delta int64) {
	if s == nil {
		return
	}
	s.getOrCreate(key).instance.Update(delta)
}

// ForEach iterates every tracked counter. Intended for the flush worker
// only; stage code should use Incr.
func (s *Store) ForEach(f func(key string, mc *managedCounter)) {
	s.counters.Range(func(k, v interface{}) bool {
		f(k.(string), v.(*managedCounter))
		return true
	})
}
