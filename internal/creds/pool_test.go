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

package creds

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNextReturnsFalseOnEmptyPool(t *testing.T) {
	p := New(RoundRobin, nil)
	if _, ok := p.Next(); ok {
		t.Fatalf("Next() on empty pool should report unavailable")
	}
}

func TestRoundRobinFairness(t *testing.T) {
	p := New(RoundRobin, nil)
	p.Add("c1", "v1")
	p.Add("c2", "v2")
	p.Add("c3", "v3")

	counts := map[string]int{}
	const m = 100
	for i := 0; i < m; i++ {
		v, ok := p.Next()
		if !ok {
			t.Fatalf("Next() unexpectedly unavailable at iteration %d", i)
		}
		counts[v]++
	}

	lo, hi := m/3, m/3+1
	for v, c := range counts {
		if c != lo && c != hi {
			t.Fatalf("credential %q selected %d times, want %d or %d", v, c, lo, hi)
		}
	}
}

func TestMarkFailureExcludesAfterMaxFails(t *testing.T) {
	p := New(RoundRobin, nil)
	p.Add("c1", "v1")

	for i := 0; i < defaultMaxFails; i++ {
		p.MarkFailure("v1", false)
	}

	if _, ok := p.Next(); ok {
		t.Fatalf("credential should be excluded after %d failures", defaultMaxFails)
	}
	st := p.Status()
	if st.Valid != 0 {
		t.Fatalf("Status.Valid = %d, want 0", st.Valid)
	}
}

func TestMarkFailureUnknownValueIsIgnored(t *testing.T) {
	p := New(RoundRobin, nil)
	p.Add("c1", "v1")
	p.MarkFailure("does-not-exist", false)

	if _, ok := p.Next(); !ok {
		t.Fatalf("unrelated failure must not affect the only registered credential")
	}
}

func TestMarkFailurePermanentDisablesImmediately(t *testing.T) {
	p := New(RoundRobin, nil)
	p.Add("c1", "v1")
	p.MarkFailure("v1", true)

	if _, ok := p.Next(); ok {
		t.Fatalf("permanent failure should disable the credential on the first call")
	}
	st := p.Status()
	if st.Enabled != 0 {
		t.Fatalf("Status.Enabled = %d, want 0 after permanent failure", st.Enabled)
	}
}

func TestResetRestoresCredential(t *testing.T) {
	p := New(RoundRobin, nil)
	p.Add("c1", "v1")
	for i := 0; i < defaultMaxFails; i++ {
		p.MarkFailure("v1", false)
	}
	p.Reset("v1")

	if _, ok := p.Next(); !ok {
		t.Fatalf("Reset should make the credential selectable again")
	}
}

func TestEmptyPoolProceedsUnauthenticated(t *testing.T) {
	p := New(Random, nil)
	v, ok := p.Next()
	if ok || v != "" {
		t.Fatalf("Next() on empty pool = (%q, %v), want (\"\", false)", v, ok)
	}
}

func TestValidateOneSetsValidFromProber(t *testing.T) {
	p := New(RoundRobin, func(ctx context.Context, value string) (bool, error) {
		return value == "good", nil
	})
	p.Add("c1", "good")
	p.Add("c2", "bad")

	p.ValidateOne(context.Background(), "bad")
	st := p.Status()
	if st.Valid != 1 {
		t.Fatalf("Status.Valid = %d, want 1 after invalidating one of two", st.Valid)
	}
}

func TestValidateAllProbesEveryEnabledCredential(t *testing.T) {
	probed := map[string]bool{}
	p := New(RoundRobin, func(ctx context.Context, value string) (bool, error) {
		probed[value] = true
		return false, errors.New("nav: not logged in")
	})
	p.Add("c1", "v1")
	p.Add("c2", "v2")

	p.ValidateAll(context.Background())
	if !probed["v1"] || !probed["v2"] {
		t.Fatalf("ValidateAll did not probe every credential: %v", probed)
	}
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after every probe reports invalid", p.Len())
	}
}

func TestLoadFileMissingYieldsEmptyPool(t *testing.T) {
	p, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 for a missing cookies file", p.Len())
	}
}

func TestLoadFileParsesCookiesAndStrategy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.json")
	body := `{
		"settings": {"strategy": "random"},
		"cookies": [
			{"name": "alice", "value": "cookie-alice"},
			{"name": "bob", "value": "cookie-bob", "enabled": false},
			{"name": "carol", "value": ""}
		]
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	p, err := LoadFile(path, nil)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	st := p.Status()
	if st.Strategy != Random {
		t.Fatalf("Strategy = %v, want random", st.Strategy)
	}
	// bob is disabled and carol has an empty value, so only alice should load.
	if st.Total != 1 {
		t.Fatalf("Total = %d, want 1 (disabled/empty-value cookies skipped)", st.Total)
	}
}

func TestCredentialRelatedCodes(t *testing.T) {
	for _, code := range []int{-101, -352, -412} {
		if !CredentialRelatedCode(code) {
			t.Fatalf("CredentialRelatedCode(%d) = false, want true", code)
		}
	}
	if CredentialRelatedCode(0) || CredentialRelatedCode(-404) {
		t.Fatalf("CredentialRelatedCode should be false for non-credential codes")
	}
}
