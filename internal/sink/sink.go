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

// Package sink defines the downstream emission seam: three keyed topics
// (claw_video, claw_comment, claw_account) that every pipeline stage
// publishes accepted records to. The message bus itself is out of scope;
// this package only specifies the append interface and ships two concrete
// adapters (logging, JSONL file) in the teacher's style.
package sink

// Topic names the three keyed streams emitted records are published to.
type Topic string

const (
	TopicVideo   Topic = "claw_video"
	TopicComment Topic = "claw_comment"
	TopicAccount Topic = "claw_account"
)

// Sink is the append interface every stage emits accepted records through.
// Publish must be safe for concurrent use; a nil error means the downstream
// has durably accepted the record and the caller may add key to its
// emitted-id set.
type Sink interface {
	Publish(topic Topic, key string, value []byte) error
	Close() error
}
