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

	"biliclaw/internal/bilibili"
)

// runSearch fans out cfg.Workers page-range workers over the search
// endpoint, joins them, deduplicates the combined result by bvid, and
// splits it into already-emitted videos (forwarded straight to the comment
// queue, bypassing enrichment) and new videos (handed to the detail
// queue). It is a single synchronous phase, mirroring
// search_videos_parallel's own fan-out/join shape, and calls
// searchDone.WorkerExit() exactly once when finished.
func runSearch(ctx context.Context, cfg Config, deps Deps, detailQ *Queue[detailItem], commentQ *Queue[commentItem], searchDone *Latch) {
	defer searchDone.WorkerExit()

	var mu sync.Mutex
	var all []bilibili.Video

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			sess := deps.NewSession()
			startPage := workerID*cfg.PagesPerWorker + 1
			for page := startPage; page < startPage+cfg.PagesPerWorker; page++ {
				if ctx.Err() != nil {
					return
				}
				videos, _, err := deps.Client.SearchVideos(ctx, sess, cfg.Keyword, page, cfg.PageSize)
				if err != nil {
					fmt.Printf("[search-%d] page %d failed: %v\n", workerID, page, err)
					continue
				}
				if len(videos) == 0 {
					continue
				}
				mu.Lock()
				all = append(all, videos...)
				mu.Unlock()
				politeDelay(cfg.DelayMin, cfg.DelayMax)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bilibili.Video, len(all))
	var order []string
	for _, v := range all {
		if _, ok := seen[v.Bvid]; ok {
			continue
		}
		v.Keyword = cfg.Keyword
		seen[v.Bvid] = v
		order = append(order, v.Bvid)
	}

	var newCount, bypassCount int
	for _, bvid := range order {
		v := seen[bvid]
		if deps.Store.HasVideo(bvid) {
			commentQ.Enqueue(commentItem{Bvid: bvid, Keyword: v.Keyword})
			bypassCount++
			continue
		}
		detailQ.Enqueue(detailItem{Bvid: bvid, Keyword: v.Keyword})
		newCount++
	}

	fmt.Printf("[search] keyword=%q found %d unique videos (%d new, %d already emitted)\n", cfg.Keyword, len(order), newCount, bypassCount)
}
