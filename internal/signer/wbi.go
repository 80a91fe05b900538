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

// Package signer derives and caches the WBI mixin key used to sign the
// first-level comment endpoint, and computes the (wts, w_rid) pair for a
// given parameter set.
package signer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// FallbackMixinKey is used when the bootstrap call fails; it may be stale,
// but it beats refusing to sign at all.
const FallbackMixinKey = "ea1db124af3c7062474693fa704f4ff8"

// CacheTTL is how long a successfully derived mixin key is trusted.
const CacheTTL = 3600 * time.Second

// mixinKeyEncTab is the fixed 64-element permutation used to scramble the
// concatenated img/sub keys into the mixin key.
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// Bootstrapper fetches the two daily-rotating WBI key fragments (already
// stripped of path and extension) from the nav endpoint. It is supplied by
// the caller (the bilibili client) so this package stays free of any HTTP
// dependency, matching the explicit-dependency-injection design used
// throughout this module.
type Bootstrapper func(ctx context.Context) (imgKey, subKey string, err error)

// Signer caches the derived mixin key and signs request parameters.
type Signer struct {
	bootstrap Bootstrapper

	mu      sync.Mutex
	mixin   string
	expires time.Time

	// onFallback, if set, is notified every time bootstrap fails and the
	// signer must fall back to the static key.
	onFallback func(err error)
}

// New constructs a Signer. onFallback may be nil.
func New(bootstrap Bootstrapper, onFallback func(err error)) *Signer {
	return &Signer{bootstrap: bootstrap, onFallback: onFallback}
}

// mixinKey derives the 32-character mixin key from the two 32-hex-character
// source keys by permuting their concatenation through mixinKeyEncTab and
// truncating to 32 characters.
func mixinKey(imgKey, subKey string) string {
	combined := imgKey + subKey
	out := make([]byte, 0, 32)
	for i := 0; i < 32; i++ {
		idx := mixinKeyEncTab[i]
		if idx < len(combined) {
			out = append(out, combined[idx])
		}
	}
	return string(out)
}

// MixinKey returns the cached mixin key, refetching through Bootstrapper if
// the cache is empty or stale. A stale cached value is never returned: on
// a cache miss the bootstrap call happens synchronously while the signer
// lock is held, so concurrent callers serialize on the refresh rather than
// racing to fetch it independently.
func (s *Signer) MixinKey(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mixin != "" && time.Now().Before(s.expires) {
		return s.mixin
	}

	imgKey, subKey, err := s.bootstrap(ctx)
	if err != nil || imgKey == "" || subKey == "" {
		if s.onFallback != nil {
			if err == nil {
				err = fmt.Errorf("signer: bootstrap returned empty keys")
			}
			s.onFallback(err)
		}
		return FallbackMixinKey
	}

	s.mixin = mixinKey(imgKey, subKey)
	s.expires = time.Now().Add(CacheTTL)
	return s.mixin
}

// Sign computes (w_rid, wts) for the given parameter map. params must not
// already contain "wts" or "w_rid". Values must already be in their final,
// on-the-wire encoded form (see SignQuery's doc for why).
func (s *Signer) Sign(ctx context.Context, params map[string]string) (wRid string, wts int64) {
	mixin := s.MixinKey(ctx)
	wts = time.Now().Unix()
	query := SignQuery(params, wts)
	sum := md5.Sum([]byte(query + mixin))
	return hex.EncodeToString(sum[:]), wts
}

// SignQuery builds the canonical sorted "k=v&k=v..." string used both to
// compute and to verify a signature. Critically, this must operate on the
// exact encoded string that goes on the wire: callers are expected to pass
// already-URL-encoded values for any parameter that needs encoding (e.g.
// pagination_str), and must build the outbound request URL from the same
// encoded strings rather than letting an HTTP library re-encode them.
func SignQuery(params map[string]string, wts int64) string {
	keys := make([]string, 0, len(params)+1)
	all := make(map[string]string, len(params)+1)
	for k, v := range params {
		keys = append(keys, k)
		all[k] = v
	}
	keys = append(keys, "wts")
	all["wts"] = fmt.Sprintf("%d", wts)
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+all[k])
	}
	return strings.Join(parts, "&")
}
