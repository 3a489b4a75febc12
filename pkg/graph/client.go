// Package graph is a Meta Graph API client covering the Instagram
// surfaces used for lead sourcing: recent media, comment threads, and
// business discovery. Rate limits and server errors are retried with
// exponential backoff; other client errors surface immediately.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://graph.facebook.com/v21.0"

// Client performs Meta Graph API operations.
type Client interface {
	RecentMedia(ctx context.Context, igUserID string, limit int) ([]Media, error)
	Comments(ctx context.Context, mediaID string, limit int) ([]Comment, error)
	BusinessDiscovery(ctx context.Context, igUserID, username string) (*Profile, error)
}

// Media is one post on the authenticated account.
type Media struct {
	ID        string `json:"id"`
	Caption   string `json:"caption"`
	Permalink string `json:"permalink"`
	Timestamp string `json:"timestamp"`
}

// Comment is one comment on a post.
type Comment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// Profile is a public business/creator profile from business discovery.
type Profile struct {
	Username       string `json:"username"`
	Name           string `json:"name"`
	Biography      string `json:"biography"`
	Website        string `json:"website"`
	FollowersCount int    `json:"followers_count"`
}

// APIError is a structured Graph API error response.
type APIError struct {
	StatusCode int
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether the error is a rate limit or server fault.
// Graph codes 4 (app throttled), 17 (user throttled), and 32 (page
// throttled) are rate limits even when delivered with a 400 status.
func (e *APIError) Retryable() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	switch e.Code {
	case 4, 17, 32:
		return true
	}
	return false
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	accessToken string
	baseURL     string
	retry       RetryConfig
	http        *http.Client
}

// NewClient creates a Graph API client authenticated by access token.
func NewClient(accessToken string, opts ...Option) Client {
	c := &httpClient{
		accessToken: accessToken,
		baseURL:     defaultBaseURL,
		retry:       DefaultRetryConfig(),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type page[T any] struct {
	Data   []T `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// RecentMedia returns up to limit recent posts of the account.
func (c *httpClient) RecentMedia(ctx context.Context, igUserID string, limit int) ([]Media, error) {
	q := url.Values{}
	q.Set("fields", "id,caption,permalink,timestamp")
	return collect[Media](ctx, c, "/"+igUserID+"/media", q, limit)
}

// Comments returns up to limit comments on a post, following pagination.
func (c *httpClient) Comments(ctx context.Context, mediaID string, limit int) ([]Comment, error) {
	q := url.Values{}
	q.Set("fields", "id,text,username,timestamp")
	return collect[Comment](ctx, c, "/"+mediaID+"/comments", q, limit)
}

type businessDiscoveryResponse struct {
	BusinessDiscovery Profile `json:"business_discovery"`
}

// BusinessDiscovery looks up a public profile by username through the
// authenticated account.
func (c *httpClient) BusinessDiscovery(ctx context.Context, igUserID, username string) (*Profile, error) {
	q := url.Values{}
	q.Set("fields", "business_discovery.username("+username+"){username,name,biography,website,followers_count}")

	resp, err := doRetry(ctx, c.retry, func(ctx context.Context) (*businessDiscoveryResponse, error) {
		return getJSON[businessDiscoveryResponse](ctx, c, c.endpoint("/"+igUserID, q))
	})
	if err != nil {
		return nil, eris.Wrapf(err, "graph: business discovery %s", username)
	}
	return &resp.BusinessDiscovery, nil
}

// collect follows paging.next until limit items are gathered or pages
// run out.
func collect[T any](ctx context.Context, c *httpClient, path string, q url.Values, limit int) ([]T, error) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(min(limit, 100)))
	}

	var out []T
	next := c.endpoint(path, q)
	for next != "" {
		p, err := doRetry(ctx, c.retry, func(ctx context.Context) (*page[T], error) {
			return getJSON[page[T]](ctx, c, next)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "graph: get %s", path)
		}
		out = append(out, p.Data...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		next = p.Paging.Next
	}
	return out, nil
}

func (c *httpClient) endpoint(path string, q url.Values) string {
	q.Set("access_token", c.accessToken)
	return c.baseURL + path + "?" + q.Encode()
}

func getJSON[T any](ctx context.Context, c *httpClient, url string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "graph: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "graph: read response")
	}

	if resp.StatusCode != http.StatusOK {
		var wrapper struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
			apiErr := wrapper.Error
			apiErr.StatusCode = resp.StatusCode
			return nil, &apiErr
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "graph: unmarshal response")
	}
	return &result, nil
}
