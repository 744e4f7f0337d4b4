// Package appview is a thin client for the public appview API, used to
// backfill what the stream does not carry: engagement counters and author
// profiles.
package appview

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

const (
	DefaultBaseUrl = "https://public.api.bsky.app"

	// MaxBatch is the most uris/actors the API accepts per call.
	MaxBatch = 25

	getPostsPath    = "/xrpc/app.bsky.feed.getPosts"
	getProfilesPath = "/xrpc/app.bsky.actor.getProfiles"

	maxRequestRetries = 2
)

// PostView is the engagement slice of one post returned by getPosts.
type PostView struct {
	Uri         string `json:"uri"`
	LikeCount   int64  `json:"likeCount"`
	RepostCount int64  `json:"repostCount"`
	ReplyCount  int64  `json:"replyCount"`
	QuoteCount  int64  `json:"quoteCount"`
}

// ProfileView is one resolved actor profile returned by getProfiles.
type ProfileView struct {
	Did            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName"`
	Avatar         string `json:"avatar"`
	FollowersCount int64  `json:"followersCount"`
	FollowsCount   int64  `json:"followsCount"`
	PostsCount     int64  `json:"postsCount"`
	CreatedAt      string `json:"createdAt"`
}

// Client wraps an http.Client against one appview host.
type Client struct {
	client  *http.Client
	baseUrl string
}

func NewClient(client *http.Client, baseUrl string) *Client {
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	return &Client{client: client, baseUrl: baseUrl}
}

// GetPosts fetches the current engagement counters for up to MaxBatch post
// uris, keyed by uri. Posts absent from the result no longer exist upstream.
func (c *Client) GetPosts(ctx context.Context, uris []string) (map[string]PostView, error) {
	if len(uris) == 0 {
		return map[string]PostView{}, nil
	}
	if len(uris) > MaxBatch {
		return nil, errors.Errorf("getPosts accepts at most %d uris, got %d", MaxBatch, len(uris))
	}

	body, err := c.get(ctx, getPostsPath, "uris", uris)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Posts []PostView `json:"posts"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "decode getPosts response")
	}
	out := make(map[string]PostView, len(parsed.Posts))
	for _, post := range parsed.Posts {
		out[post.Uri] = post
	}
	return out, nil
}

// GetProfiles resolves up to MaxBatch dids into full profiles. Unresolvable
// dids are simply missing from the result.
func (c *Client) GetProfiles(ctx context.Context, dids []string) ([]ProfileView, error) {
	if len(dids) == 0 {
		return nil, nil
	}
	if len(dids) > MaxBatch {
		return nil, errors.Errorf("getProfiles accepts at most %d actors, got %d", MaxBatch, len(dids))
	}

	body, err := c.get(ctx, getProfilesPath, "actors", dids)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Profiles []ProfileView `json:"profiles"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "decode getProfiles response")
	}
	return parsed.Profiles, nil
}

// get issues one GET with a repeated query parameter, retrying transient
// failures with exponential backoff.
func (c *Client) get(ctx context.Context, path string, param string, values []string) ([]byte, error) {
	query := url.Values{}
	for _, v := range values {
		query.Add(param, v)
	}
	target := c.baseUrl + path + "?" + query.Encode()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		res, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			err := fmt.Errorf("appview returned status %d for %s", res.StatusCode, path)
			if res.StatusCode >= 400 && res.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = ioutil.ReadAll(res.Body)
		return err
	}
	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRequestRetries), ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "appview %s", path)
	}
	return body, nil
}
