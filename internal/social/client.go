package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the platform API root.
	DefaultBaseURL = "https://api.twitter.com"

	// DefaultMaxResults is the page size requested for timeline fetches.
	DefaultMaxResults = 10

	// DefaultMaxPages bounds pagination per fetch.
	DefaultMaxPages = 1

	// minTimelinePage is the smallest max_results the timeline API accepts.
	minTimelinePage = 5

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4096
)

// APIError is a non-2xx response from the platform API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API returned %d: %s", e.StatusCode, e.Body)
}

// Client talks to a Twitter-v2-shaped REST API with a bearer token. It
// provides per-account and mention Sources, implements Publisher, and exposes
// the persona's own recent posts and current trends.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	MaxResults  int
	MaxPages    int
	UserAgent   string

	mu      sync.Mutex
	userIDs map[string]string // lowercased username -> user id
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root (used by tests and self-hosted mirrors).
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.HTTPClient = hc
	}
}

// WithMaxPages sets how many result pages a single fetch may follow.
func WithMaxPages(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.MaxPages = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.UserAgent = ua
	}
}

// NewClient creates a platform client authenticated with bearerToken.
func NewClient(bearerToken string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL:     DefaultBaseURL,
		BearerToken: bearerToken,
		HTTPClient:  &http.Client{Timeout: 15 * time.Second},
		MaxResults:  DefaultMaxResults,
		MaxPages:    DefaultMaxPages,
		userIDs:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ensure Client implements Publisher
var _ Publisher = (*Client)(nil)

type apiUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type apiTweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

type timelineResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

// AccountSource returns a Source that yields new posts by username.
func (c *Client) AccountSource(username string) Source {
	return &accountSource{client: c, username: strings.TrimPrefix(username, "@")}
}

// MentionSource returns a Source that yields new posts mentioning handle.
func (c *Client) MentionSource(handle string) Source {
	return &mentionSource{client: c, handle: strings.TrimPrefix(handle, "@")}
}

type accountSource struct {
	client   *Client
	username string
}

func (s *accountSource) ID() string { return s.username }

func (s *accountSource) Fetch(ctx context.Context, since time.Time) ([]Interaction, error) {
	userID, err := s.client.UserID(ctx, s.username)
	if err != nil {
		return nil, err
	}
	return s.client.timeline(ctx, "/2/users/"+userID+"/tweets", since, timelineMeta{
		source:  s.ID(),
		kind:    KindTrackedPost,
		author:  s.username,
		maxSize: s.client.MaxResults,
	})
}

type mentionSource struct {
	client *Client
	handle string
}

func (s *mentionSource) ID() string { return "mentions" }

func (s *mentionSource) Fetch(ctx context.Context, since time.Time) ([]Interaction, error) {
	userID, err := s.client.UserID(ctx, s.handle)
	if err != nil {
		return nil, err
	}
	return s.client.timeline(ctx, "/2/users/"+userID+"/mentions", since, timelineMeta{
		source:  s.ID(),
		kind:    KindMention,
		maxSize: s.client.MaxResults,
	})
}

// UserID resolves a username to its platform id, caching the result.
func (c *Client) UserID(ctx context.Context, username string) (string, error) {
	key := strings.ToLower(strings.TrimPrefix(username, "@"))

	c.mu.Lock()
	id, ok := c.userIDs[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	var resp struct {
		Data apiUser `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/2/users/by/username/"+url.PathEscape(key), nil, nil, &resp); err != nil {
		return "", fmt.Errorf("failed to look up user %s: %w", username, err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("user %s not found", username)
	}

	c.mu.Lock()
	c.userIDs[key] = resp.Data.ID
	c.mu.Unlock()
	return resp.Data.ID, nil
}

type timelineMeta struct {
	source  string
	kind    Kind
	author  string // fixed author; empty means resolve from includes
	maxSize int
}

// timeline fetches up to MaxPages pages from a timeline endpoint and returns
// the interactions oldest first.
func (c *Client) timeline(ctx context.Context, path string, since time.Time, meta timelineMeta) ([]Interaction, error) {
	pageSize := meta.maxSize
	if pageSize < minTimelinePage {
		pageSize = minTimelinePage
	}

	items := make([]Interaction, 0)
	token := ""
	for page := 0; page < c.MaxPages; page++ {
		q := url.Values{}
		q.Set("max_results", strconv.Itoa(pageSize))
		q.Set("tweet.fields", "created_at,author_id")
		q.Set("expansions", "author_id")
		q.Set("user.fields", "username")
		if !since.IsZero() {
			q.Set("start_time", since.UTC().Format(time.RFC3339))
		}
		if token != "" {
			q.Set("pagination_token", token)
		}

		var resp timelineResponse
		if err := c.doJSON(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
			return nil, err
		}

		usernames := make(map[string]string, len(resp.Includes.Users))
		for _, u := range resp.Includes.Users {
			usernames[u.ID] = u.Username
		}

		for _, t := range resp.Data {
			author := meta.author
			if author == "" {
				author = usernames[t.AuthorID]
			}
			items = append(items, Interaction{
				ID:        t.ID,
				Author:    author,
				Text:      t.Text,
				CreatedAt: t.CreatedAt,
				Source:    meta.source,
				Kind:      meta.kind,
			})
		}

		token = resp.Meta.NextToken
		if token == "" {
			break
		}
	}

	SortChronological(items)
	return items, nil
}

type replyRef struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetRequest struct {
	Text  string    `json:"text"`
	Reply *replyRef `json:"reply,omitempty"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Post publishes a standalone post.
func (c *Client) Post(ctx context.Context, text string) (PostID, error) {
	return c.createTweet(ctx, createTweetRequest{Text: text})
}

// Reply publishes text as a reply to the post inReplyTo.
func (c *Client) Reply(ctx context.Context, text string, inReplyTo string) (PostID, error) {
	return c.createTweet(ctx, createTweetRequest{
		Text:  text,
		Reply: &replyRef{InReplyToTweetID: inReplyTo},
	})
}

func (c *Client) createTweet(ctx context.Context, body createTweetRequest) (PostID, error) {
	var resp createTweetResponse
	if err := c.doJSON(ctx, http.MethodPost, "/2/tweets", nil, body, &resp); err != nil {
		return "", classifyPublishError(err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("%w: response carried no post id", ErrPublishUnavailable)
	}
	return PostID(resp.Data.ID), nil
}

// classifyPublishError maps transport and HTTP failures onto the publish
// error taxonomy: throttling, server errors and transport failures are
// unavailable; any other client error is a rejection.
func classifyPublishError(err error) error {
	apiErr, ok := err.(*APIError)
	if !ok {
		return fmt.Errorf("%w: %w", ErrPublishUnavailable, err)
	}
	if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
		return fmt.Errorf("%w: %w", ErrPublishUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrPublishRejected, err)
}

// RecentPosts returns the text of handle's most recent posts, newest first.
func (c *Client) RecentPosts(ctx context.Context, handle string, limit int) ([]string, error) {
	userID, err := c.UserID(ctx, handle)
	if err != nil {
		return nil, err
	}

	pageSize := limit
	if pageSize < minTimelinePage {
		pageSize = minTimelinePage
	}
	q := url.Values{}
	q.Set("max_results", strconv.Itoa(pageSize))
	q.Set("exclude", "replies,retweets")

	var resp timelineResponse
	if err := c.doJSON(ctx, http.MethodGet, "/2/users/"+userID+"/tweets", q, nil, &resp); err != nil {
		return nil, err
	}

	posts := make([]string, 0, len(resp.Data))
	for _, t := range resp.Data {
		if len(posts) == limit {
			break
		}
		posts = append(posts, t.Text)
	}
	return posts, nil
}

// Trends returns the current trend names for a WOEID location.
func (c *Client) Trends(ctx context.Context, woeid int) ([]string, error) {
	var resp struct {
		Data []struct {
			TrendName  string `json:"trend_name"`
			TweetCount int    `json:"tweet_count"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/2/trends/by/woeid/"+strconv.Itoa(woeid), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch trends: %w", err)
	}

	trends := make([]string, 0, len(resp.Data))
	for _, t := range resp.Data {
		if name := strings.TrimSpace(t.TrendName); name != "" {
			trends = append(trends, name)
		}
	}
	return trends, nil
}

// doJSON performs an authenticated request and decodes a JSON response into
// out. Non-2xx responses are returned as *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
