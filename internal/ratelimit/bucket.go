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

// Package ratelimit implements a single global token bucket shared by every
// outbound call the pipeline makes, so the whole process stays polite to
// the upstream regardless of how many worker goroutines are in flight.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a floating-point token bucket: tokens accumulate continuously
// at Rate per second, up to Capacity, and Acquire blocks (if requested)
// until enough tokens are available.
type Bucket struct {
	mu       sync.Mutex
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
}

// New creates a bucket starting at full capacity.
func New(rate, capacity float64) *Bucket {
	return &Bucket{
		rate:     rate,
		capacity: capacity,
		tokens:   capacity,
		last:     time.Now(),
	}
}

// refill must be called with mu held.
func (b *Bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = minFloat(b.capacity, b.tokens+elapsed*b.rate)
	b.last = now
}

// Acquire attempts to take n tokens. If blocking is false, it returns
// immediately with false when there are not enough tokens. If blocking is
// true, it sleeps until enough tokens should have accumulated and retries;
// because Rate may be changed concurrently, a single sleep is not assumed
// to be sufficient, so the wait is re-computed on each pass.
func (b *Bucket) Acquire(n float64, blocking bool) bool {
	for {
		b.mu.Lock()
		b.refill()

		if b.tokens >= n {
			b.tokens -= n
			b.mu.Unlock()
			return true
		}

		if !blocking {
			b.mu.Unlock()
			return false
		}

		deficit := n - b.tokens
		rate := b.rate
		b.mu.Unlock()

		wait := time.Duration(deficit / rate * float64(time.Second))
		if wait <= 0 {
			wait = time.Millisecond
		}
		time.Sleep(wait)
		// Loop back around: refill and re-check. A concurrent SetRate could
		// mean this sleep undershot, so we never deduct without re-verifying
		// tokens under the lock.
	}
}

// SetRate refills from elapsed time under the current rate before adopting
// the new one, so partially-accumulated tokens aren't lost or double-counted.
func (b *Bucket) SetRate(rate float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	b.rate = rate
}

// SetCapacity refills, then clamps tokens to the new capacity.
func (b *Bucket) SetCapacity(capacity float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	b.capacity = capacity
	if b.tokens > capacity {
		b.tokens = capacity
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
