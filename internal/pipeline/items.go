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

// detailItem is a discovered video awaiting the view-endpoint enrichment call.
type detailItem struct {
	Bvid    string
	Keyword string
}

// commentItem is a video ready for first-level comment paging. Aid may be
// zero, in which case the comment stage resolves it from the progress
// store or, failing that, the view endpoint.
type commentItem struct {
	Bvid    string
	Aid     int64
	Keyword string
}

// replyItem is a parent comment whose second-level replies still need paging.
type replyItem struct {
	Aid        int64
	ParentRpid int64
}
