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

package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"biliclaw/internal/creds"
	"biliclaw/internal/ratelimit"
	"biliclaw/internal/signer"
	"biliclaw/internal/transport"
)

const defaultBaseURL = "https://api.bilibili.com"

// Client is the shared, stateless (beyond its dependencies) entry point
// for every upstream call. One Client is constructed at process start and
// shared by every pipeline stage; per-worker state lives in transport.Session.
type Client struct {
	BaseURL    string
	Limiter    *ratelimit.Bucket
	Pool       *creds.Pool
	Signer     *signer.Signer
	RetryOpts  transport.RetryOptions
}

// New constructs a Client. The signer's Bootstrapper is expected to be a
// closure that calls client.Nav with a session of its own, wired by the
// caller around the client variable (see cmd/biliclaw).
func New(limiter *ratelimit.Bucket, pool *creds.Pool, sig *signer.Signer) *Client {
	return &Client{
		BaseURL:   defaultBaseURL,
		Limiter:   limiter,
		Pool:      pool,
		Signer:    sig,
		RetryOpts: transport.DefaultRetryOptions(),
	}
}

// getEnvelope issues a single GET against a fully-built URL and decodes the
// {code, message, data} envelope. It does not retry; retrying is the
// responsibility of transport.Do, one layer up.
func (c *Client) getEnvelope(ctx context.Context, sess *transport.Session, rawURL string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, transport.NewTransportError(err)
	}
	sess.ApplyHeaders(req)

	resp, err := sess.Client.Do(req)
	if err != nil {
		return nil, transport.NewTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transport.NewTransportError(err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, transport.NewTransportError(fmt.Errorf("decode response: %w", err))
	}
	if env.Code != 0 {
		return nil, transport.NewAPIError(env.Code, env.Message)
	}
	return &env, nil
}

// Nav probes the logged-in-session endpoint and also serves as the
// signer.Bootstrapper: it extracts the two daily-rotating WBI key
// fragments from data.wbi_img.{img_url,sub_url}.
func (c *Client) Nav(ctx context.Context, sess *transport.Session) (imgKey, subKey string, err error) {
	type navData struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	}

	env, err := c.getEnvelope(ctx, sess, c.BaseURL+"/x/web-interface/nav")
	if err != nil {
		return "", "", err
	}
	var d navData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return "", "", transport.NewTransportError(fmt.Errorf("decode nav data: %w", err))
	}
	return basenameNoExt(d.WbiImg.ImgURL), basenameNoExt(d.WbiImg.SubURL), nil
}

// ValidateSession probes whether credential is a logged-in session, using
// a throwaway session bound to it, for use as a creds.Prober.
func (c *Client) ValidateSession(ctx context.Context, credential string) (bool, error) {
	sess := transport.NewSession(credential, credential != "", "", 0)
	env, err := c.getEnvelope(ctx, sess, c.BaseURL+"/x/web-interface/nav")
	if err != nil {
		var apiErr *transport.APIError
		if asAPIError(err, &apiErr) {
			return false, nil
		}
		return false, err
	}
	return env.Code == 0, nil
}

func basenameNoExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := u.Path
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

func asAPIError(err error, target **transport.APIError) bool {
	if apiErr, ok := err.(*transport.APIError); ok {
		*target = apiErr
		return true
	}
	return false
}

type searchResult struct {
	Videos   []Video
	NumPages int
}

// SearchVideos calls the search endpoint for a single page.
func (c *Client) SearchVideos(ctx context.Context, sess *transport.Session, keyword string, page, pageSize int) ([]Video, int, error) {
	q := url.Values{}
	q.Set("keyword", keyword)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("search_type", "video")
	rawURL := c.BaseURL + "/x/web-interface/search/type?" + q.Encode()

	res, err := transport.Do(ctx, c.Limiter, c.Pool, sess, func(ctx context.Context) (searchResult, error) {
		env, err := c.getEnvelope(ctx, sess, rawURL)
		if err != nil {
			return searchResult{}, err
		}
		var data struct {
			Result   []json.RawMessage `json:"result"`
			NumPages int               `json:"numPages"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return searchResult{}, transport.NewTransportError(fmt.Errorf("decode search data: %w", err))
		}
		videos := make([]Video, 0, len(data.Result))
		for _, raw := range data.Result {
			var v struct {
				Bvid  string `json:"bvid"`
				Aid   int64  `json:"aid"`
				Title string `json:"title"`
				Mid   int64  `json:"mid"`
			}
			if err := json.Unmarshal(raw, &v); err != nil {
				continue
			}
			if v.Bvid == "" {
				continue
			}
			videos = append(videos, Video{Bvid: v.Bvid, Aid: v.Aid, Title: v.Title, OwnerMid: v.Mid, Raw: raw})
		}
		return searchResult{Videos: videos, NumPages: data.NumPages}, nil
	}, c.RetryOpts)

	return res.Videos, res.NumPages, err
}

// GetVideoAid resolves a bvid to its numeric aid via the detail endpoint.
func (c *Client) GetVideoAid(ctx context.Context, sess *transport.Session, bvid string) (int64, error) {
	detail, err := c.GetVideoDetail(ctx, sess, bvid)
	if err != nil {
		return 0, err
	}
	return detail.Aid, nil
}

// GetVideoDetail calls the view endpoint to obtain the full video record.
func (c *Client) GetVideoDetail(ctx context.Context, sess *transport.Session, bvid string) (Video, error) {
	q := url.Values{}
	q.Set("bvid", bvid)
	rawURL := c.BaseURL + "/x/web-interface/view?" + q.Encode()

	return transport.Do(ctx, c.Limiter, c.Pool, sess, func(ctx context.Context) (Video, error) {
		env, err := c.getEnvelope(ctx, sess, rawURL)
		if err != nil {
			return Video{}, err
		}
		var data struct {
			Bvid  string `json:"bvid"`
			Aid   int64  `json:"aid"`
			Title string `json:"title"`
			Owner struct {
				Mid int64 `json:"mid"`
			} `json:"owner"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Video{}, transport.NewTransportError(fmt.Errorf("decode view data: %w", err))
		}
		if data.Bvid == "" {
			return Video{}, transport.NewPermanentDataError("bvid")
		}
		return Video{Bvid: data.Bvid, Aid: data.Aid, Title: data.Title, OwnerMid: data.Owner.Mid, Raw: env.Data}, nil
	}, c.RetryOpts)
}

type mainCommentsResult struct {
	Replies    []Comment
	NextCursor string
	IsEnd      bool
}

// GetMainComments pages through first-level comments for a video. cursor is
// the opaque offset string from the previous page's NextCursor, or "" for
// the first page. The request is signed via c.Signer, and seek_rpid is
// included (empty) in both the request and the sign string only when
// cursor == "" (first page), matching the upstream's own asymmetry.
func (c *Client) GetMainComments(ctx context.Context, sess *transport.Session, oid int64, cursor string) ([]Comment, string, bool, error) {
	firstPage := cursor == ""

	paginationJSON, err := json.Marshal(struct {
		Offset string `json:"offset"`
	}{Offset: cursor})
	if err != nil {
		return nil, "", false, transport.NewTransportError(fmt.Errorf("encode pagination_str: %w", err))
	}
	paginationEncoded := url.QueryEscape(string(paginationJSON))

	params := map[string]string{
		"oid":          strconv.FormatInt(oid, 10),
		"type":         "1",
		"mode":         "2",
		"plat":         "1",
		"web_location": "1315875",
		"pagination_str": paginationEncoded,
	}
	if firstPage {
		params["seek_rpid"] = ""
	}

	res, err := transport.Do(ctx, c.Limiter, c.Pool, sess, func(ctx context.Context) (mainCommentsResult, error) {
		wRid, wts := c.Signer.Sign(ctx, params)

		// The URL is built by hand, from the exact same encoded strings that
		// were signed, rather than through url.Values, to avoid a second
		// round of percent-encoding on pagination_str.
		var b strings.Builder
		b.WriteString(c.BaseURL)
		b.WriteString("/x/v2/reply/wbi/main?")
		keys := []string{"oid", "type", "mode", "plat", "web_location"}
		if firstPage {
			keys = append(keys, "seek_rpid")
		}
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(params[k])
		}
		b.WriteString("&pagination_str=")
		b.WriteString(paginationEncoded)
		fmt.Fprintf(&b, "&wts=%d&w_rid=%s", wts, wRid)

		env, err := c.getEnvelope(ctx, sess, b.String())
		if err != nil {
			return mainCommentsResult{}, err
		}

		var data struct {
			Replies []json.RawMessage `json:"replies"`
			Cursor  struct {
				IsEnd              bool `json:"is_end"`
				PaginationReply struct {
					NextOffset string `json:"next_offset"`
				} `json:"pagination_reply"`
			} `json:"cursor"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return mainCommentsResult{}, transport.NewTransportError(fmt.Errorf("decode main comments data: %w", err))
		}

		replies := decodeComments(oid, data.Replies)
		isEnd := data.Cursor.IsEnd || data.Cursor.PaginationReply.NextOffset == ""
		return mainCommentsResult{Replies: replies, NextCursor: data.Cursor.PaginationReply.NextOffset, IsEnd: isEnd}, nil
	}, c.RetryOpts)

	return res.Replies, res.NextCursor, res.IsEnd, err
}

func decodeComments(oid int64, raws []json.RawMessage) []Comment {
	out := make([]Comment, 0, len(raws))
	for _, raw := range raws {
		var c struct {
			Rpid    int64 `json:"rpid"`
			Mid     int64 `json:"mid"`
			Rcount  int   `json:"rcount"`
		}
		if err := json.Unmarshal(raw, &c); err != nil || c.Rpid == 0 {
			continue
		}
		out = append(out, Comment{Rpid: c.Rpid, Oid: oid, Mid: c.Mid, Rcount: c.Rcount, Raw: raw})
	}
	return out
}

type replyCommentsResult struct {
	Replies    []Reply
	TotalCount int
}

// GetReplyComments pages through second-level replies nested under a
// parent comment, 1-based page index.
func (c *Client) GetReplyComments(ctx context.Context, sess *transport.Session, oid, rootRpid int64, page, pageSize int) ([]Reply, int, error) {
	q := url.Values{}
	q.Set("oid", strconv.FormatInt(oid, 10))
	q.Set("type", "1")
	q.Set("root", strconv.FormatInt(rootRpid, 10))
	q.Set("pn", strconv.Itoa(page))
	q.Set("ps", strconv.Itoa(pageSize))
	rawURL := c.BaseURL + "/x/v2/reply/reply?" + q.Encode()

	res, err := transport.Do(ctx, c.Limiter, c.Pool, sess, func(ctx context.Context) (replyCommentsResult, error) {
		env, err := c.getEnvelope(ctx, sess, rawURL)
		if err != nil {
			return replyCommentsResult{}, err
		}
		var data struct {
			Replies []json.RawMessage `json:"replies"`
			Page    struct {
				Count int `json:"count"`
			} `json:"page"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return replyCommentsResult{}, transport.NewTransportError(fmt.Errorf("decode reply data: %w", err))
		}
		replies := make([]Reply, 0, len(data.Replies))
		for _, raw := range data.Replies {
			var r struct {
				Rpid int64 `json:"rpid"`
				Mid  int64 `json:"mid"`
			}
			if err := json.Unmarshal(raw, &r); err != nil || r.Rpid == 0 {
				continue
			}
			replies = append(replies, Reply{Rpid: r.Rpid, ParentRpid: rootRpid, Mid: r.Mid, Raw: raw})
		}
		return replyCommentsResult{Replies: replies, TotalCount: data.Page.Count}, nil
	}, c.RetryOpts)

	return res.Replies, res.TotalCount, err
}

// GetUserCard fetches a user's profile card.
func (c *Client) GetUserCard(ctx context.Context, sess *transport.Session, mid int64) (UserCard, error) {
	q := url.Values{}
	q.Set("mid", strconv.FormatInt(mid, 10))
	q.Set("photo", "true")
	rawURL := c.BaseURL + "/x/web-interface/card?" + q.Encode()

	return transport.Do(ctx, c.Limiter, c.Pool, sess, func(ctx context.Context) (UserCard, error) {
		env, err := c.getEnvelope(ctx, sess, rawURL)
		if err != nil {
			return UserCard{}, err
		}
		var data struct {
			Card json.RawMessage `json:"card"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return UserCard{}, transport.NewTransportError(fmt.Errorf("decode card data: %w", err))
		}
		var mid struct {
			Mid int64 `json:"mid"`
		}
		if err := json.Unmarshal(data.Card, &mid); err != nil || mid.Mid == 0 {
			return UserCard{}, transport.NewPermanentDataError("mid")
		}
		return UserCard{Mid: mid.Mid, Raw: data.Card}, nil
	}, c.RetryOpts)
}
