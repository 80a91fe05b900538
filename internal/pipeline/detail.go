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

	"biliclaw/internal/sink"
)

// runDetailWorker drains detailQ, enriching each discovered video via the
// view endpoint, publishing it to the video sink topic, and forwarding it
// to the comment queue. It exits once detailQ is empty and searchDone has
// fired, never the reverse, so it never races the search phase still
// enqueueing work.
func runDetailWorker(ctx context.Context, id int, cfg Config, deps Deps, detailQ *Queue[detailItem], commentQ *Queue[commentItem], searchDone, detailDone *Latch) {
	defer detailDone.WorkerExit()

	sess := deps.NewSession()
	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := detailQ.Dequeue(cfg.DequeueTimeout)
		if !ok {
			if searchDone.Done() {
				return
			}
			continue
		}

		video, err := deps.Client.GetVideoDetail(ctx, sess, item.Bvid)
		if err != nil {
			fmt.Printf("[detail-%d] %s: %v\n", id, item.Bvid, err)
			continue
		}
		video.Keyword = item.Keyword

		payload, err := json.Marshal(video)
		if err != nil {
			fmt.Printf("[detail-%d] %s: encode: %v\n", id, item.Bvid, err)
			continue
		}
		if err := deps.Sink.Publish(sink.TopicVideo, item.Bvid, payload); err != nil {
			fmt.Printf("[detail-%d] %s: publish: %v\n", id, item.Bvid, err)
			continue
		}
		if err := deps.Store.MarkVideo(item.Bvid); err != nil {
			fmt.Printf("[detail-%d] %s: mark video: %v\n", id, item.Bvid, err)
		}
		deps.Stats.Incr("emitted:video", 1)
		deps.Observer.Observe(video.OwnerMid)

		commentQ.Enqueue(commentItem{Bvid: item.Bvid, Aid: video.Aid, Keyword: item.Keyword})
		politeDelay(cfg.DelayMin, cfg.DelayMax)
	}
}
