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
	"fmt"
	"sync"
	"time"

	"biliclaw/internal/bilibili"
	"biliclaw/internal/creds"
	"biliclaw/internal/progress"
	"biliclaw/internal/sink"
	"biliclaw/internal/stats"
	"biliclaw/internal/transport"
)

// Config holds the tunables for one crawl run. Every duration/count here
// has a sensible zero value filled in by DefaultConfig.
type Config struct {
	Keyword string

	// Workers is the per-stage worker count (search pages, detail lookups,
	// comment pagers, reply pagers, user lookups all use this same count).
	Workers int
	// PagesPerWorker is how many search result pages each search worker
	// claims, so Workers*PagesPerWorker is the total page budget.
	PagesPerWorker int
	PageSize       int
	// CommentPageSize is the page size used when paging second-level
	// replies.
	CommentPageSize int

	DelayMin time.Duration
	DelayMax time.Duration

	QueueSize      int
	DequeueTimeout time.Duration

	UserAgent      string
	SessionTimeout time.Duration

	ResumePendingUsers bool
}

// DefaultConfig fills in the tunables a caller typically leaves alone,
// keeping only Keyword mandatory.
func DefaultConfig(keyword string) Config {
	return Config{
		Keyword:            keyword,
		Workers:            4,
		PagesPerWorker:     5,
		PageSize:           20,
		CommentPageSize:    20,
		DelayMin:           300 * time.Millisecond,
		DelayMax:           900 * time.Millisecond,
		QueueSize:          4096,
		DequeueTimeout:     2 * time.Second,
		UserAgent:          "Mozilla/5.0 (compatible; biliclaw/1.0)",
		SessionTimeout:     15 * time.Second,
		ResumePendingUsers: true,
	}
}

// Deps wires every shared dependency a stage worker needs. Each worker
// constructs its own transport.Session from Pool/UserAgent/SessionTimeout
// via NewSession, binding one credential at a time (transport.Do may
// rebind it after a credential-related failure) so failures attribute to
// the credential bound when they occur.
type Deps struct {
	Client   *bilibili.Client
	Pool     *creds.Pool
	Store    progress.Store
	Sink     sink.Sink
	Observer *userObserver
	Stats    *stats.Store

	UserAgent      string
	SessionTimeout time.Duration
}

// NewSession binds a fresh session to the next available credential (or
// none, if the pool is empty/exhausted).
func (d Deps) NewSession() *transport.Session {
	value, ok := d.Pool.Next()
	return transport.NewSession(value, ok, d.UserAgent, d.SessionTimeout)
}

// Run drives the full five-stage pipeline to completion: search, detail
// enrichment, first-level comment paging, second-level reply paging, and
// user profile enrichment. It blocks until every stage has drained and
// every producers-done latch has fired, then performs an orderly
// shutdown of the progress store's pending-users ledger.
func Run(ctx context.Context, cfg Config, deps Deps) error {
	done, inProgress := deps.Store.Summary()
	fmt.Printf("[pipeline] resume summary: %d videos done, %d in progress\n", done, inProgress)

	detailQ := NewQueue[detailItem](cfg.QueueSize)
	commentQ := NewQueue[commentItem](cfg.QueueSize)
	replyQ := NewQueue[replyItem](cfg.QueueSize)
	userQ := NewQueue[int64](cfg.QueueSize)

	deps.Observer = newUserObserver(deps.Store, userQ)
	if cfg.ResumePendingUsers {
		if n := deps.Observer.RestorePending(); n > 0 {
			fmt.Printf("[pipeline] restored %d pending user ids from previous run\n", n)
		}
	}

	searchDone := NewLatch(1)
	detailDone := NewLatch(cfg.Workers)
	commentDone := NewLatch(cfg.Workers)
	replyDone := NewLatch(cfg.Workers)
	userDone := NewLatch(cfg.Workers)

	var wg sync.WaitGroup

	watchStage(deps, "search", 1, searchDone)
	watchStage(deps, "detail", cfg.Workers, detailDone)
	watchStage(deps, "comments", cfg.Workers, commentDone)
	watchStage(deps, "replies", cfg.Workers, replyDone)
	watchStage(deps, "users", cfg.Workers, userDone)

	healthStop := make(chan struct{})
	go reportCredentialHealth(deps, healthStop)

	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			runCommentWorker(ctx, id, cfg, deps, commentQ, replyQ, detailDone, commentDone)
		}(i)
	}

	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			runReplyWorker(ctx, id, cfg, deps, replyQ, commentDone, replyDone)
		}(i)
	}

	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			runUserWorker(ctx, id, cfg, deps, userQ, replyDone, userDone)
		}(i)
	}

	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func(id int) {
			defer wg.Done()
			runDetailWorker(ctx, id, cfg, deps, detailQ, commentQ, searchDone, detailDone)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSearch(ctx, cfg, deps, detailQ, commentQ, searchDone)
	}()

	wg.Wait()
	close(healthStop)

	if err := deps.Store.CompactPendingUsers(); err != nil {
		fmt.Printf("[pipeline] warning: compact pending users: %v\n", err)
	}
	if err := deps.Sink.Close(); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	return ctx.Err()
}

// watchStage sets the active-worker gauge for a stage and clears it once
// the stage's producers-done latch fires, so /metrics reflects each
// stage's lifecycle rather than a static worker count.
func watchStage(deps Deps, name string, workers int, done *Latch) {
	if deps.Stats == nil {
		return
	}
	stats.SetActiveWorkers(name, workers)
	go func() {
		<-done.Chan()
		stats.SetActiveWorkers(name, 0)
	}()
}

// reportCredentialHealth periodically publishes the credential pool's
// Status snapshot to the credential-pool gauges until stop is closed.
func reportCredentialHealth(deps Deps, stop <-chan struct{}) {
	if deps.Pool == nil {
		return
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	report := func() {
		st := deps.Pool.Status()
		stats.SetCredentialPoolHealth(st.Total, st.Valid)
	}
	report()
	for {
		select {
		case <-ticker.C:
			report()
		case <-stop:
			report()
			return
		}
	}
}
