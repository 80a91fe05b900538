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

package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"biliclaw/internal/creds"
	"biliclaw/internal/ratelimit"
)

func fastOptions() RetryOptions {
	return RetryOptions{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDoSucceedsWithoutRetry(t *testing.T) {
	limiter := ratelimit.New(1000, 1000)
	pool := creds.New(creds.RoundRobin, nil)
	sess := NewSession("", false, "test-agent", time.Second)

	calls := 0
	got, err := Do(context.Background(), limiter, pool, sess, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if calls != 1 {
		t.Fatalf("attempt() called %d times, want 1", calls)
	}
}

func TestDoRetriesTransportError(t *testing.T) {
	limiter := ratelimit.New(1000, 1000)
	pool := creds.New(creds.RoundRobin, nil)
	sess := NewSession("", false, "test-agent", time.Second)

	calls := 0
	got, err := Do(context.Background(), limiter, pool, sess, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransportError(errors.New("dial tcp: timeout"))
		}
		return "ok", nil
	}, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if calls != 3 {
		t.Fatalf("attempt() called %d times, want 3", calls)
	}
}

func TestDoMarksBoundCredentialFailure(t *testing.T) {
	limiter := ratelimit.New(1000, 1000)
	pool := creds.New(creds.RoundRobin, nil)
	pool.MarkFailure("cookie-a", false) // no-op: unknown value, just exercises the ignore path
	pool.Add("a", "cookie-a")

	sess := NewSession("cookie-a", true, "test-agent", time.Second)

	calls := 0
	_, err := Do(context.Background(), limiter, pool, sess, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewAPIError(-352, "risk control")
	}, fastOptions())
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 4 {
		t.Fatalf("attempt() called %d times, want 4 (1 + 3 retries)", calls)
	}
	// Three -352 failures reach the default fail threshold of 3.
	if pool.Len() != 0 {
		t.Fatalf("pool.Len() = %d, want 0: the bound credential should be excluded after repeated failures", pool.Len())
	}
}

func TestDoRebindsSessionAfterCredentialFailure(t *testing.T) {
	limiter := ratelimit.New(1000, 1000)
	pool := creds.New(creds.RoundRobin, nil)
	pool.Add("c1", "cookie-c1")
	pool.Add("c2", "cookie-c2")
	first, _ := pool.Next() // advances the round-robin cursor past c1
	sess := NewSession(first, true, "test-agent", time.Second)

	var boundAt []string
	calls := 0
	got, err := Do(context.Background(), limiter, pool, sess, func(ctx context.Context) (int, error) {
		calls++
		boundAt = append(boundAt, sess.Credential)
		if calls == 1 {
			return 0, NewAPIError(-352, "risk control")
		}
		return 7, nil
	}, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
	if calls != 2 {
		t.Fatalf("attempt() called %d times, want 2", calls)
	}
	if boundAt[0] != "cookie-c1" {
		t.Fatalf("first attempt bound to %q, want cookie-c1", boundAt[0])
	}
	if boundAt[1] != "cookie-c2" {
		t.Fatalf("second attempt bound to %q, want cookie-c2 (rebind after credential failure)", boundAt[1])
	}
	if sess.Credential != "cookie-c2" {
		t.Fatalf("session left bound to %q, want cookie-c2", sess.Credential)
	}
}

func TestDoDoesNotRetryPermanentDataError(t *testing.T) {
	limiter := ratelimit.New(1000, 1000)
	pool := creds.New(creds.RoundRobin, nil)
	sess := NewSession("", false, "test-agent", time.Second)

	calls := 0
	_, err := Do(context.Background(), limiter, pool, sess, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewPermanentDataError("bvid")
	}, fastOptions())
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("attempt() called %d times, want 1 (no retry on permanent data error)", calls)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	limiter := ratelimit.New(1000, 1000)
	pool := creds.New(creds.RoundRobin, nil)
	sess := NewSession("", false, "test-agent", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(2 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, limiter, pool, sess, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewTransportError(errors.New("timeout"))
	}, RetryOptions{MaxRetries: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second})
	if err == nil {
		t.Fatalf("expected error from cancellation")
	}
}
