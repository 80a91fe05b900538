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

// Package creds implements the process-wide credential pool: a set of
// cookie values with round-robin or random selection, failure accounting,
// and exclusion once a credential's fail count crosses its threshold.
package creds

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"sync"
)

// Strategy selects how the pool picks the next credential.
type Strategy string

const (
	RoundRobin Strategy = "round_robin"
	Random     Strategy = "random"
)

const defaultMaxFails = 3

// Credential is a single rotatable cookie value plus its mutable health state.
// The pool owns all mutation of these fields.
type Credential struct {
	Name     string
	Value    string
	Enabled  bool
	Valid    bool
	FailCount int
	MaxFails int
}

func (c *Credential) available() bool { return c.Enabled && c.Valid }

// markFailed increments the fail count and disables the credential once
// FailCount reaches MaxFails. Returns true if this call disabled it.
func (c *Credential) markFailed() bool {
	c.FailCount++
	if c.FailCount >= c.MaxFails {
		c.Valid = false
		return true
	}
	return false
}

func (c *Credential) reset() {
	c.FailCount = 0
	c.Valid = true
}

// Status is a point-in-time snapshot of pool health.
type Status struct {
	Total    int
	Enabled  int
	Valid    int
	Strategy Strategy
}

// Prober probes a single credential's validity, e.g. by calling the
// upstream's logged-in-session endpoint. It is supplied by the caller so
// the pool itself has no HTTP dependency.
type Prober func(ctx context.Context, value string) (bool, error)

// Pool is the process-wide set of credentials. All state is guarded by a
// single mutex; validation does not recursively lock, so a plain Mutex
// (rather than the original source's reentrant lock) is sufficient.
type Pool struct {
	mu    sync.Mutex
	creds []*Credential
	index int
	strategy Strategy
	prober   Prober
}

// FileConfig mirrors the on-disk cookie pool configuration: a strategy
// plus a list of named cookie values.
type FileConfig struct {
	Settings struct {
		Strategy       string `json:"strategy"`
		ValidateOnLoad bool   `json:"validate_on_load"`
	} `json:"settings"`
	Cookies []struct {
		Name    string `json:"name"`
		Value   string `json:"value"`
		Enabled *bool  `json:"enabled"`
	} `json:"cookies"`
}

// New constructs an empty pool with the given selection strategy and prober.
// prober may be nil; ValidateOne/ValidateAll become no-ops in that case.
func New(strategy Strategy, prober Prober) *Pool {
	if strategy != Random {
		strategy = RoundRobin
	}
	return &Pool{strategy: strategy, prober: prober}
}

// LoadFile loads credentials from a JSON configuration file in the shape
// of FileConfig, the Go equivalent of cookie_pool.py's cookies.json loader.
// A missing file yields an empty (unauthenticated) pool, not an error.
func LoadFile(path string, prober Prober) (*Pool, error) {
	p := New(RoundRobin, prober)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}

	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.Settings.Strategy == string(Random) {
		p.strategy = Random
	}
	for _, c := range cfg.Cookies {
		enabled := true
		if c.Enabled != nil {
			enabled = *c.Enabled
		}
		if !enabled || c.Value == "" {
			continue
		}
		p.creds = append(p.creds, &Credential{
			Name:     c.Name,
			Value:    c.Value,
			Enabled:  enabled,
			Valid:    true,
			MaxFails: defaultMaxFails,
		})
	}
	if cfg.Settings.ValidateOnLoad && prober != nil {
		p.ValidateAll(context.Background())
	}
	return p, nil
}

// Add registers a credential directly, bypassing LoadFile's JSON config.
// Useful for wiring a pool from a source other than the on-disk cookie
// file, and for tests.
func (p *Pool) Add(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = append(p.creds, &Credential{
		Name: name, Value: value, Enabled: true, Valid: true, MaxFails: defaultMaxFails,
	})
}

// Next returns the next available credential value using the configured
// strategy. "Available" means Enabled && Valid. Returns ("", false) if the
// pool has no available credential, in which case callers should proceed
// unauthenticated.
func (p *Pool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.availableLocked()
	if len(available) == 0 {
		return "", false
	}

	if p.strategy == Random {
		return available[rand.Intn(len(available))].Value, true
	}

	p.index = p.index % len(available)
	c := available[p.index]
	p.index++
	return c.Value, true
}

func (p *Pool) availableLocked() []*Credential {
	var out []*Credential
	for _, c := range p.creds {
		if c.available() {
			out = append(out, c)
		}
	}
	return out
}

// MarkFailure records a failed call against the given credential value. If
// permanent is true the credential is disabled outright (e.g. a
// credential-owner action, not a transient upstream error); otherwise its
// fail count is incremented and it is excluded once MaxFails is reached.
// Failures reported for an unknown value are silently ignored.
func (p *Pool) MarkFailure(value string, permanent bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if c.Value != value {
			continue
		}
		if permanent {
			c.Valid = false
			c.Enabled = false
		} else {
			c.markFailed()
		}
		return
	}
}

// Reset clears the fail count and re-validates a credential, e.g. after an
// operator rotates it back in manually.
func (p *Pool) Reset(value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if c.Value == value {
			c.reset()
			return
		}
	}
}

// ValidateOne probes a single credential value through the configured
// Prober and sets its Valid flag to whatever the probe reports. A nil
// prober or unknown value is a no-op.
func (p *Pool) ValidateOne(ctx context.Context, value string) {
	if p.prober == nil {
		return
	}
	valid, err := p.prober(ctx, value)
	if err != nil {
		valid = false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if c.Value == value {
			c.Valid = valid
			return
		}
	}
}

// ValidateAll serially probes every enabled credential. Intended to be
// called once at load time when the config requests it.
func (p *Pool) ValidateAll(ctx context.Context) {
	if p.prober == nil {
		return
	}
	p.mu.Lock()
	values := make([]string, 0, len(p.creds))
	for _, c := range p.creds {
		if c.Enabled {
			values = append(values, c.Value)
		}
	}
	p.mu.Unlock()

	for _, v := range values {
		p.ValidateOne(ctx, v)
	}
}

// Status returns a snapshot of the pool's current health.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{Strategy: p.strategy}
	for _, c := range p.creds {
		s.Total++
		if c.Enabled {
			s.Enabled++
			if c.Valid {
				s.Valid++
			}
		}
	}
	return s
}

// Len reports the number of currently available (enabled && valid) credentials.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.availableLocked())
}

// CredentialRelatedCode reports whether an upstream response code indicates
// a credential-related failure: -101 (not logged in), -352 (risk-control
// failure), -412 (request intercepted).
func CredentialRelatedCode(code int) bool {
	switch code {
	case -101, -352, -412:
		return true
	default:
		return false
	}
}
