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
	"encoding/json"
	"fmt"
	"strconv"

	"biliclaw/internal/sink"
)

// runUserWorker drains userQ, fetching and publishing the profile card for
// each observed mid not already emitted. It exits once userQ is empty and
// replyDone has fired, the last stage in the pipeline's producers-done
// chain.
func runUserWorker(ctx context.Context, id int, cfg Config, deps Deps, userQ *Queue[int64], replyDone, userDone *Latch) {
	defer userDone.WorkerExit()

	sess := deps.NewSession()
	for {
		if ctx.Err() != nil {
			return
		}
		mid, ok := userQ.Dequeue(cfg.DequeueTimeout)
		if !ok {
			if replyDone.Done() {
				return
			}
			continue
		}

		midKey := strconv.FormatInt(mid, 10)
		if deps.Store.HasUser(midKey) {
			deps.Stats.Incr("skipped:account", 1)
			continue
		}

		card, err := deps.Client.GetUserCard(ctx, sess, mid)
		if err != nil {
			fmt.Printf("[users-%d] mid=%d: %v\n", id, mid, err)
			continue
		}

		payload, err := json.Marshal(card)
		if err != nil {
			continue
		}
		if err := deps.Sink.Publish(sink.TopicAccount, midKey, payload); err != nil {
			fmt.Printf("[users-%d] mid=%d: publish: %v\n", id, mid, err)
			continue
		}
		if err := deps.Store.MarkUser(midKey); err != nil {
			fmt.Printf("[users-%d] mid=%d: mark: %v\n", id, mid, err)
		}
		deps.Stats.Incr("emitted:account", 1)
		politeDelay(cfg.DelayMin, cfg.DelayMax)
	}
}
