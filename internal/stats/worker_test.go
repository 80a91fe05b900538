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

package stats

import (
	"testing"
	"time"
)

func TestStoreIncrAccumulatesInVector(t *testing.T) {
	s := NewStore()
	s.Incr("emitted:video", 1)
	s.Incr("emitted:video", 1)
	s.Incr("emitted:video", 3)

	mc := s.getOrCreate("emitted:video")
	scalar, vector := mc.instance.State()
	if scalar != 0 {
		t.Fatalf("scalar = %d before any flush, want 0", scalar)
	}
	if vector != 5 {
		t.Fatalf("vector = %d, want 5", vector)
	}
}

func TestWorkerFlushCycleCommitsAndResetsVector(t *testing.T) {
	s := NewStore()
	s.Incr("emitted:video", 7)
	s.Incr("skipped:comment", 2)

	w := NewWorker(s, time.Hour)
	w.runFlushCycle()

	mc := s.getOrCreate("emitted:video")
	_, vector := mc.instance.State()
	if vector != 0 {
		t.Fatalf("vector after flush = %d, want 0 (folded into scalar)", vector)
	}
}

func TestWorkerStopRunsFinalFlush(t *testing.T) {
	s := NewStore()
	s.Incr("emitted:account", 4)

	w := NewWorker(s, time.Hour)
	w.Start()
	w.Stop()

	mc := s.getOrCreate("emitted:account")
	_, vector := mc.instance.State()
	if vector != 0 {
		t.Fatalf("vector after Stop() = %d, want 0 (final flush should have run)", vector)
	}
}
