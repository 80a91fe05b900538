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

// Package bilibili is the typed client for the upstream video platform's
// public web endpoints: search, video detail, two levels of comment
// paging, and user profile cards. Every call goes through transport.Do so
// it shares rate limiting, retry/backoff, and credential-failure
// attribution.
package bilibili

import (
	"encoding/json"
	"fmt"
)

// Video is the search-result/detail shape. Bvid, Aid, OwnerMid, and
// Keyword are pulled out for routing and fan-out decisions; Raw is the
// complete record body as the upstream endpoint returned it, which is
// what actually gets published to the sink (see MarshalJSON).
type Video struct {
	Bvid     string
	Aid      int64
	Title    string
	OwnerMid int64
	Keyword  string
	Raw      json.RawMessage
}

// MarshalJSON emits the full upstream record body, annotated with the
// originating keyword per spec §4.5.2, rather than the reduced routing
// struct above. When Raw is empty (e.g. in tests that build a Video by
// hand) it falls back to marshaling the routing fields alone.
func (v Video) MarshalJSON() ([]byte, error) {
	if len(v.Raw) == 0 {
		type alias struct {
			Bvid     string `json:"bvid"`
			Aid      int64  `json:"aid"`
			Title    string `json:"title"`
			OwnerMid int64  `json:"owner_mid"`
			Keyword  string `json:"keyword,omitempty"`
		}
		return json.Marshal(alias{v.Bvid, v.Aid, v.Title, v.OwnerMid, v.Keyword})
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(v.Raw, &fields); err != nil {
		return nil, fmt.Errorf("merge keyword into raw video body: %w", err)
	}
	if v.Keyword != "" {
		kw, err := json.Marshal(v.Keyword)
		if err != nil {
			return nil, err
		}
		fields["keyword"] = kw
	}
	return json.Marshal(fields)
}

// Comment is a first-level comment (a "reply" in upstream terminology, at
// the top of a thread). Rpid, Oid, Mid, Rcount drive pipeline routing;
// Raw is the full upstream body, which is what MarshalJSON publishes.
type Comment struct {
	Rpid   int64
	Oid    int64
	Mid    int64
	Rcount int
	Raw    json.RawMessage
}

func (c Comment) MarshalJSON() ([]byte, error) {
	if len(c.Raw) != 0 {
		return c.Raw, nil
	}
	type alias struct {
		Rpid   int64 `json:"rpid"`
		Oid    int64 `json:"oid"`
		Mid    int64 `json:"mid"`
		Rcount int   `json:"rcount"`
	}
	return json.Marshal(alias{c.Rpid, c.Oid, c.Mid, c.Rcount})
}

// Reply is a second-level reply nested under a parent comment.
type Reply struct {
	Rpid       int64
	ParentRpid int64
	Mid        int64
	Raw        json.RawMessage
}

func (r Reply) MarshalJSON() ([]byte, error) {
	if len(r.Raw) != 0 {
		return r.Raw, nil
	}
	type alias struct {
		Rpid       int64 `json:"rpid"`
		ParentRpid int64 `json:"parent_rpid"`
		Mid        int64 `json:"mid"`
	}
	return json.Marshal(alias{r.Rpid, r.ParentRpid, r.Mid})
}

// UserCard is a user profile summary.
type UserCard struct {
	Mid int64
	Raw json.RawMessage
}

func (u UserCard) MarshalJSON() ([]byte, error) {
	if len(u.Raw) != 0 {
		return u.Raw, nil
	}
	return json.Marshal(struct {
		Mid int64 `json:"mid"`
	}{u.Mid})
}

// envelope is the common {code, message, data} response wrapper every
// endpoint uses.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}
