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

package pipeline

import (
	"context"
	"sync"
	"time"

	"biliclaw/internal/bilibili"
	"biliclaw/internal/creds"
	"biliclaw/internal/ratelimit"
	"biliclaw/internal/signer"
	"biliclaw/internal/sink"
)

// published is one recorded fakeSink.Publish call, kept for assertions.
type published struct {
	Topic sink.Topic
	Key   string
	Value []byte
}

// fakeSink captures every Publish call in order instead of writing
// anywhere, standing in for sink.LoggingSink/sink.JSONLFileSink in tests.
type fakeSink struct {
	mu   sync.Mutex
	recs []published
}

func (f *fakeSink) Publish(topic sink.Topic, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	f.recs = append(f.recs, published{Topic: topic, Key: key, Value: buf})
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) countTopic(topic sink.Topic) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.recs {
		if r.Topic == topic {
			n++
		}
	}
	return n
}

// testSigner returns a Signer whose bootstrap always succeeds with fixed
// stub key fragments; the stub HTTP servers in these tests never validate
// w_rid/wts, so the derived mixin key's actual value doesn't matter.
func testSigner() *signer.Signer {
	return signer.New(func(ctx context.Context) (string, string, error) {
		return "0000000000000000000000000000000000000000000000000000000000000000",
			"1111111111111111111111111111111111111111111111111111111111111111", nil
	}, nil)
}

// fastClient builds a bilibili.Client pointed at an httptest server with a
// high-capacity rate limiter and a short retry backoff, so tests run fast.
func fastClient(baseURL string, pool *creds.Pool) *bilibili.Client {
	c := bilibili.New(ratelimit.New(1e6, 1e6), pool, testSigner())
	c.BaseURL = baseURL
	c.RetryOpts.BaseDelay = time.Millisecond
	c.RetryOpts.MaxDelay = 5 * time.Millisecond
	return c
}
