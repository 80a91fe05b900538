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
	"math/rand"
	"time"

	"biliclaw/internal/creds"
	"biliclaw/internal/ratelimit"
)

// RetryOptions configures the backoff loop shared by every endpoint call.
type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryOptions matches the source's retry_with_backoff defaults.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Do runs attempt up to opts.MaxRetries+1 times total. A rate-limiter token
// is acquired before every attempt, including retries, so retries also pay
// the rate cost. On a credential-related APIError, the session's bound
// credential is marked failed and the session is rebound in place to the
// pool's next available credential (or to none) before the backoff sleep,
// so a subsequent attempt is likely to use a different one.
// Transport errors and non-credential application errors are retried the
// same way, just without the credential penalty. A PermanentData error is
// never retried: it is returned to the caller immediately.
func Do[T any](ctx context.Context, limiter *ratelimit.Bucket, pool *creds.Pool, sess *Session, attempt func(ctx context.Context) (T, error), opts RetryOptions) (T, error) {
	var zero T
	var lastErr error

	for n := 0; n <= opts.MaxRetries; n++ {
		limiter.Acquire(1, true)

		result, err := attempt(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		apiErr, ok := err.(*APIError)
		if ok && apiErr.Kind == KindPermanentData {
			return zero, err
		}

		if ok && apiErr.Kind == KindCredential {
			if sess.HasCred {
				pool.MarkFailure(sess.Credential, false)
			}
			// Rebind before the backoff sleep so the next attempt, on the
			// same *Session the caller's closure already captured, picks up
			// a different credential rather than hammering the one that
			// just failed.
			if next, ok := pool.Next(); ok {
				sess.Rebind(next, true)
			} else {
				sess.Rebind("", false)
			}
		}

		if n == opts.MaxRetries {
			break
		}

		delay := backoffDelay(opts, n)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// backoffDelay computes min(base*2^attempt + uniform(0,1), cap).
func backoffDelay(opts RetryOptions, attempt int) time.Duration {
	base := opts.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	cap := opts.MaxDelay
	if cap <= 0 {
		cap = 30 * time.Second
	}

	d := float64(base) * float64(uint64(1)<<uint(attempt))
	d += rand.Float64() * float64(time.Second)
	if d > float64(cap) {
		d = float64(cap)
	}
	return time.Duration(d)
}
