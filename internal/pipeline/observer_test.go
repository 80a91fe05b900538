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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"biliclaw/internal/progress"
)

func pendingMidsLines(t *testing.T, dir string) ([]string, bool) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "pending_mids.txt"))
	if os.IsNotExist(err) {
		return nil, false
	}
	if err != nil {
		t.Fatalf("read pending_mids.txt: %v", err)
	}
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines, true
}

// TestPendingUsersCompactionKeepsOnlyUnemitted reproduces the
// observe-10-emit-7 scenario: after CompactPendingUsers, the pending
// ledger must contain exactly the 3 ids that were never emitted, with no
// duplicates.
func TestPendingUsersCompactionKeepsOnlyUnemitted(t *testing.T) {
	dir := t.TempDir()
	store, err := progress.Open(dir)
	if err != nil {
		t.Fatalf("progress.Open: %v", err)
	}

	userQ := NewQueue[int64](32)
	obs := newUserObserver(store, userQ)
	for mid := int64(1); mid <= 10; mid++ {
		obs.Observe(mid)
	}
	// Observing the same mid twice must not duplicate the ledger entry.
	obs.Observe(1)

	for mid := int64(1); mid <= 7; mid++ {
		if err := store.MarkUser(strconv.FormatInt(mid, 10)); err != nil {
			t.Fatalf("MarkUser(%d): %v", mid, err)
		}
	}

	if err := store.CompactPendingUsers(); err != nil {
		t.Fatalf("CompactPendingUsers: %v", err)
	}

	lines, exists := pendingMidsLines(t, dir)
	if !exists {
		t.Fatal("pending_mids.txt should still exist with 3 ids remaining")
	}
	sort.Strings(lines)
	want := []string{"10", "8", "9"}
	sort.Strings(want)
	if strings.Join(lines, ",") != strings.Join(want, ",") {
		t.Fatalf("pending_mids.txt = %v, want %v", lines, want)
	}

	seen := map[string]bool{}
	for _, l := range lines {
		if seen[l] {
			t.Fatalf("pending_mids.txt has a duplicate entry %q", l)
		}
		seen[l] = true
	}
}

// TestPendingUsersCompactionRemovesFileWhenFullyEmitted covers the other
// half of the same scenario: once every observed mid has been emitted,
// the pending file must be deleted rather than left empty.
func TestPendingUsersCompactionRemovesFileWhenFullyEmitted(t *testing.T) {
	dir := t.TempDir()
	store, err := progress.Open(dir)
	if err != nil {
		t.Fatalf("progress.Open: %v", err)
	}

	userQ := NewQueue[int64](8)
	obs := newUserObserver(store, userQ)
	for mid := int64(1); mid <= 3; mid++ {
		obs.Observe(mid)
		if err := store.MarkUser(strconv.FormatInt(mid, 10)); err != nil {
			t.Fatalf("MarkUser(%d): %v", mid, err)
		}
	}

	if err := store.CompactPendingUsers(); err != nil {
		t.Fatalf("CompactPendingUsers: %v", err)
	}

	if _, exists := pendingMidsLines(t, dir); exists {
		t.Fatal("pending_mids.txt should be removed once every observed mid is emitted")
	}
}

// TestRestorePendingReenqueuesFromLedger exercises the restart path: a mid
// observed (but never emitted) in a prior run must reappear on the user
// queue when the store is reopened and RestorePending is called.
func TestRestorePendingReenqueuesFromLedger(t *testing.T) {
	dir := t.TempDir()
	first, err := progress.Open(dir)
	if err != nil {
		t.Fatalf("progress.Open: %v", err)
	}
	if err := first.ObserveUser("555"); err != nil {
		t.Fatalf("ObserveUser: %v", err)
	}

	reopened, err := progress.Open(dir)
	if err != nil {
		t.Fatalf("progress.Open (reopen): %v", err)
	}
	userQ := NewQueue[int64](8)
	obs := newUserObserver(reopened, userQ)
	if n := obs.RestorePending(); n != 1 {
		t.Fatalf("RestorePending() = %d, want 1", n)
	}

	mid, ok := userQ.Dequeue(time.Second)
	if !ok || mid != 555 {
		t.Fatalf("userQ.Dequeue() = (%d, %v), want (555, true)", mid, ok)
	}
}
