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
	"fmt"
	"strconv"
	"sync"

	"biliclaw/internal/progress"
)

// userObserver is the process-local observedMids set from spec §4.5.5: it
// prevents the same mid from being pushed onto the user queue twice, while
// the durable pending-users ledger (progress.Store) is the crash-recovery
// source of truth.
type userObserver struct {
	mu     sync.Mutex
	seen   map[int64]struct{}
	store  progress.Store
	queue  *Queue[int64]
}

func newUserObserver(store progress.Store, queue *Queue[int64]) *userObserver {
	return &userObserver{seen: make(map[int64]struct{}), store: store, queue: queue}
}

// Observe records mid as seen (if new) and enqueues it for enrichment.
func (o *userObserver) Observe(mid int64) {
	if mid == 0 {
		return
	}
	o.mu.Lock()
	if _, ok := o.seen[mid]; ok {
		o.mu.Unlock()
		return
	}
	o.seen[mid] = struct{}{}
	o.mu.Unlock()

	if err := o.store.ObserveUser(strconv.FormatInt(mid, 10)); err != nil {
		fmt.Printf("[users] warning: failed to record observed mid %d: %v\n", mid, err)
	}
	o.queue.Enqueue(mid)
}

// RestorePending re-enqueues every mid recorded as pending from a previous
// run, the Go equivalent of crawler.py's resume_pending_mids restore.
func (o *userObserver) RestorePending() int {
	pending := o.store.PendingUsers()
	for _, s := range pending {
		mid, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		o.mu.Lock()
		o.seen[mid] = struct{}{}
		o.mu.Unlock()
		o.queue.Enqueue(mid)
	}
	return len(pending)
}
