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

// runReplyWorker drains replyQ, paging second-level replies nested under
// a parent comment from page 1 until the upstream page count is
// exhausted. Replies share the same emitted-rpid ledger as first-level
// comments, so the same rpid is never published twice regardless of
// which stage observed it first. It exits once replyQ is empty and
// commentDone has fired.
func runReplyWorker(ctx context.Context, id int, cfg Config, deps Deps, replyQ *Queue[replyItem], commentDone, replyDone *Latch) {
	defer replyDone.WorkerExit()

	sess := deps.NewSession()
	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := replyQ.Dequeue(cfg.DequeueTimeout)
		if !ok {
			if commentDone.Done() {
				return
			}
			continue
		}

		page := 1
		fetched := 0
		for {
			if ctx.Err() != nil {
				break
			}
			replies, totalCount, err := deps.Client.GetReplyComments(ctx, sess, item.Aid, item.ParentRpid, page, cfg.CommentPageSize)
			if err != nil {
				fmt.Printf("[replies-%d] root=%d: page %d: %v\n", id, item.ParentRpid, page, err)
				break
			}
			if len(replies) == 0 {
				break
			}
			for _, r := range replies {
				rpidKey := strconv.FormatInt(r.Rpid, 10)
				deps.Observer.Observe(r.Mid)
				if deps.Store.HasComment(rpidKey) {
					deps.Stats.Incr("skipped:comment", 1)
					continue
				}
				payload, err := json.Marshal(r)
				if err != nil {
					continue
				}
				if err := deps.Sink.Publish(sink.TopicComment, rpidKey, payload); err != nil {
					fmt.Printf("[replies-%d] root=%d: publish rpid=%s: %v\n", id, item.ParentRpid, rpidKey, err)
					continue
				}
				if err := deps.Store.MarkComment(rpidKey); err != nil {
					fmt.Printf("[replies-%d] root=%d: mark rpid=%s: %v\n", id, item.ParentRpid, rpidKey, err)
				}
				deps.Stats.Incr("emitted:comment", 1)
			}
			fetched += len(replies)
			if fetched >= totalCount {
				break
			}
			page++
			politeDelay(cfg.DelayMin, cfg.DelayMax)
		}
	}
}
