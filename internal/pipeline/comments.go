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
	"biliclaw/internal/transport"
)

// runCommentWorker drains commentQ, paging first-level comments for each
// video from its persisted cursor (or the beginning, for a new video)
// until the upstream cursor reports is_end. It exits once commentQ is
// empty and detailDone (the video-producers-done signal) has fired.
func runCommentWorker(ctx context.Context, id int, cfg Config, deps Deps, commentQ *Queue[commentItem], replyQ *Queue[replyItem], detailDone, commentDone *Latch) {
	defer commentDone.WorkerExit()

	sess := deps.NewSession()
	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := commentQ.Dequeue(cfg.DequeueTimeout)
		if !ok {
			if detailDone.Done() {
				return
			}
			continue
		}
		processVideoComments(ctx, id, cfg, deps, sess, item, replyQ)
	}
}

func processVideoComments(ctx context.Context, id int, cfg Config, deps Deps, sess *transport.Session, item commentItem, replyQ *Queue[replyItem]) {
	prog, exists := deps.Store.Progress(item.Bvid)
	if exists && prog.Done {
		return
	}

	aid := item.Aid
	cursor := ""
	if exists {
		aid = prog.Aid
		cursor = prog.Cursor
	}
	if aid == 0 {
		video, err := deps.Client.GetVideoDetail(ctx, sess, item.Bvid)
		if err != nil {
			fmt.Printf("[comments-%d] %s: resolve aid: %v\n", id, item.Bvid, err)
			return
		}
		aid = video.Aid
	}

	for {
		if ctx.Err() != nil {
			return
		}
		comments, nextCursor, isEnd, err := deps.Client.GetMainComments(ctx, sess, aid, cursor)
		if err != nil {
			fmt.Printf("[comments-%d] %s: page: %v\n", id, item.Bvid, err)
			return
		}

		for _, c := range comments {
			rpidKey := strconv.FormatInt(c.Rpid, 10)
			deps.Observer.Observe(c.Mid)

			if deps.Store.HasComment(rpidKey) {
				deps.Stats.Incr("skipped:comment", 1)
				if c.Rcount > 0 {
					replyQ.Enqueue(replyItem{Aid: aid, ParentRpid: c.Rpid})
				}
				continue
			}
			payload, err := json.Marshal(c)
			if err != nil {
				continue
			}
			if err := deps.Sink.Publish(sink.TopicComment, rpidKey, payload); err != nil {
				fmt.Printf("[comments-%d] %s: publish rpid=%s: %v\n", id, item.Bvid, rpidKey, err)
				continue
			}
			if err := deps.Store.MarkComment(rpidKey); err != nil {
				fmt.Printf("[comments-%d] %s: mark rpid=%s: %v\n", id, item.Bvid, rpidKey, err)
			}
			deps.Stats.Incr("emitted:comment", 1)
			if c.Rcount > 0 {
				replyQ.Enqueue(replyItem{Aid: aid, ParentRpid: c.Rpid})
			}
		}

		if isEnd || len(comments) == 0 {
			if err := deps.Store.MarkDone(item.Bvid); err != nil {
				fmt.Printf("[comments-%d] %s: mark done: %v\n", id, item.Bvid, err)
			}
			return
		}

		cursor = nextCursor
		if err := deps.Store.SaveCursor(item.Bvid, cursor, aid); err != nil {
			fmt.Printf("[comments-%d] %s: save cursor: %v\n", id, item.Bvid, err)
		}
		politeDelay(cfg.DelayMin, cfg.DelayMax)
	}
}
