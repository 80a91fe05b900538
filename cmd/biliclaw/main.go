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

// Package main provides the entry point for biliclaw, a keyword-driven
// harvester for bilibili search results, video metadata, comments, replies,
// and the profiles of every account observed along the way.
//
// This file is responsible for orchestrating the whole run:
//  1. Loading the credential pool and wiring it to a live validator.
//  2. Constructing the rate limiter, WBI signer, and bilibili client.
//  3. Selecting a durable progress store (local files or Redis).
//  4. Selecting a sink for harvested records (stdout logging or JSONL files).
//  5. Starting the stats flush worker and, optionally, a /metrics server.
//  6. Running the five-stage pipeline to completion or until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"biliclaw/internal/bilibili"
	"biliclaw/internal/creds"
	"biliclaw/internal/pipeline"
	"biliclaw/internal/progress"
	"biliclaw/internal/ratelimit"
	"biliclaw/internal/signer"
	"biliclaw/internal/sink"
	"biliclaw/internal/stats"
	"biliclaw/internal/transport"

	"github.com/redis/go-redis/v9"
)

func main() {
	// --- Crawl shape ---
	keyword := flag.String("keyword", "", "search keyword to harvest (required)")
	workers := flag.Int("workers", 4, "per-stage worker count (search pages, detail lookups, comment/reply pagers, user lookups)")
	pagesPerWorker := flag.Int("pages_per_worker", 5, "search result pages claimed by each search worker; workers*pages_per_worker is the total page budget")
	pageSize := flag.Int("page_size", 20, "search results requested per page")
	commentPageSize := flag.Int("comment_page_size", 20, "replies requested per page when paging second-level comments")
	delayMin := flag.Duration("delay_min", 300*time.Millisecond, "minimum delay between polite, sequential upstream calls")
	delayMax := flag.Duration("delay_max", 900*time.Millisecond, "maximum delay between polite, sequential upstream calls")
	queueSize := flag.Int("queue_size", 4096, "bounded capacity of each inter-stage queue")
	dequeueTimeout := flag.Duration("dequeue_timeout", 2*time.Second, "how long a stage worker waits on an empty queue before checking upstream producers-done")
	userAgent := flag.String("user_agent", "Mozilla/5.0 (compatible; biliclaw/1.0)", "User-Agent header sent with every upstream request")
	sessionTimeout := flag.Duration("session_timeout", 15*time.Second, "HTTP client timeout for one worker session")
	resumePendingUsers := flag.Bool("resume_pending_users", true, "re-enqueue mids observed but not yet emitted from a previous run")

	// --- Rate limiting and credentials ---
	rate := flag.Float64("rate", 5.0, "token bucket refill rate, tokens per second")
	capacity := flag.Float64("capacity", 10.0, "token bucket capacity, maximum burst")
	cookiesPath := flag.String("cookies", "cookies.json", "path to the credential pool's cookies.json; a missing file yields an unauthenticated pool")
	validateOnStart := flag.Bool("validate_credentials", false, "probe every loaded credential against the upstream session endpoint before starting")

	// --- Durable progress ---
	progressDir := flag.String("progress_dir", "./progress", "directory for the file-backed progress store (ignored if -redis_addr is set)")
	redisAddr := flag.String("redis_addr", "", "Redis address for the progress store; empty selects the file-backed store")
	redisPrefix := flag.String("redis_prefix", "biliclaw", "key prefix for the Redis-backed progress store")

	// --- Output sink ---
	sinkKind := flag.String("sink", "logging", "record sink: \"logging\" (stdout) or \"jsonl\" (newline-delimited files)")
	sinkDir := flag.String("sink_dir", "./out", "output directory for the jsonl sink")

	// --- Telemetry (opt-in) ---
	metricsAddr := flag.String("metrics_addr", "", "if set, serve /metrics and /healthz on this address")
	statsFlushInterval := flag.Duration("stats_flush_interval", 5*time.Second, "how often the stats worker folds counters into Prometheus")

	flag.Parse()

	if *keyword == "" {
		log.Fatal("-keyword is required")
	}

	// 1. Credential pool, wired to a prober that exercises the live session
	// endpoint through the client constructed in step 3. biliClient is a
	// forward reference: the closure only runs after the client exists.
	var biliClient *bilibili.Client
	prober := func(ctx context.Context, value string) (bool, error) {
		return biliClient.ValidateSession(ctx, value)
	}
	pool, err := creds.LoadFile(*cookiesPath, prober)
	if err != nil {
		log.Fatalf("load credential pool: %v", err)
	}
	fmt.Printf("[biliclaw] loaded %d credentials from %s\n", pool.Len(), *cookiesPath)

	// 2. Rate limiter and WBI signer. The signer's bootstrapper mints its
	// own short-lived session from the pool rather than borrowing a
	// worker's, since key derivation happens once an hour at most.
	limiter := ratelimit.New(*rate, *capacity)
	bootstrap := func(ctx context.Context) (string, string, error) {
		value, ok := pool.Next()
		sess := transport.NewSession(value, ok, *userAgent, *sessionTimeout)
		return biliClient.Nav(ctx, sess)
	}
	onFallback := func(err error) {
		fmt.Printf("[biliclaw] wbi key bootstrap failed, using fallback mixin key: %v\n", err)
	}
	sig := signer.New(bootstrap, onFallback)

	// 3. The shared client every stage worker calls through.
	biliClient = bilibili.New(limiter, pool, sig)

	if *validateOnStart && pool.Len() > 0 {
		fmt.Println("[biliclaw] validating credentials...")
		pool.ValidateAll(context.Background())
		st := pool.Status()
		fmt.Printf("[biliclaw] %d/%d credentials valid\n", st.Valid, st.Total)
	}

	// 4. Durable progress store: local files unless -redis_addr is set.
	var store progress.Store
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		store = progress.NewRedisStore(rdb, *redisPrefix)
		fmt.Printf("[biliclaw] progress store: redis at %s (prefix %q)\n", *redisAddr, *redisPrefix)
	} else {
		fs, err := progress.Open(*progressDir)
		if err != nil {
			log.Fatalf("open progress store: %v", err)
		}
		store = fs
		fmt.Printf("[biliclaw] progress store: files under %s\n", *progressDir)
	}

	// 5. Output sink.
	var recordSink sink.Sink
	switch *sinkKind {
	case "jsonl":
		js, err := sink.NewJSONLFileSink(*sinkDir)
		if err != nil {
			log.Fatalf("open jsonl sink: %v", err)
		}
		recordSink = js
		fmt.Printf("[biliclaw] sink: jsonl files under %s\n", *sinkDir)
	case "logging":
		recordSink = sink.NewLoggingSink()
		fmt.Println("[biliclaw] sink: stdout logging")
	default:
		log.Fatalf("unknown -sink %q, want \"logging\" or \"jsonl\"", *sinkKind)
	}

	// 6. Stats: the VSA-backed counter store, its flush worker, and an
	// opt-in Prometheus endpoint.
	statsStore := stats.NewStore()
	statsWorker := stats.NewWorker(statsStore, *statsFlushInterval)
	statsWorker.Start()

	if *metricsAddr != "" {
		metricsServer := stats.NewServer()
		go func() {
			if err := metricsServer.ListenAndServe(*metricsAddr); err != nil {
				fmt.Printf("[biliclaw] metrics server stopped: %v\n", err)
			}
		}()
	}

	cfg := pipeline.DefaultConfig(*keyword)
	cfg.Workers = *workers
	cfg.PagesPerWorker = *pagesPerWorker
	cfg.PageSize = *pageSize
	cfg.CommentPageSize = *commentPageSize
	cfg.DelayMin = *delayMin
	cfg.DelayMax = *delayMax
	cfg.QueueSize = *queueSize
	cfg.DequeueTimeout = *dequeueTimeout
	cfg.UserAgent = *userAgent
	cfg.SessionTimeout = *sessionTimeout
	cfg.ResumePendingUsers = *resumePendingUsers

	deps := pipeline.Deps{
		Client:         biliClient,
		Pool:           pool,
		Store:          store,
		Sink:           recordSink,
		Stats:          statsStore,
		UserAgent:      *userAgent,
		SessionTimeout: *sessionTimeout,
	}

	// 7. Run until the pipeline drains or an OS signal asks us to stop.
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		fmt.Println("\n[biliclaw] shutdown requested, draining in-flight work...")
		cancel()
	}()

	runErr := pipeline.Run(ctx, cfg, deps)

	// 8. Final flush so the last partial counter vectors reach Prometheus
	// before the process exits.
	statsWorker.Stop()

	if runErr != nil && runErr != context.Canceled {
		log.Fatalf("pipeline exited with error: %v", runErr)
	}
	fmt.Println("[biliclaw] done.")
}
