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

package sink

import "fmt"

// LoggingSink prints every publish to stdout instead of connecting to a
// real bus. Useful for dry runs and as the default when no sink is
// configured, the way the teacher's LoggingRedisEvaler/LoggingKafkaProducer
// stand in for a real client.
type LoggingSink struct{}

// NewLoggingSink constructs a LoggingSink.
func NewLoggingSink() *LoggingSink { return &LoggingSink{} }

func (s *LoggingSink) Publish(topic Topic, key string, value []byte) error {
	fmt.Printf("[sink] %s key=%s bytes=%d\n", topic, key, len(value))
	return nil
}

func (s *LoggingSink) Close() error { return nil }
