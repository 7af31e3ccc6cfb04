// Package poller optionally drives the pipeline on a cron schedule by
// fetching the latest tweet of a watched account. Repeated polls are
// safe: the pipeline's dedup gating makes re-submission a no-op.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tweet-notifier/pipeline"
)

const defaultBaseURL = "https://api.twitterapi.io"

// Tweet is the slice of the tweet payload the pipeline needs.
type Tweet struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Client fetches tweets from the twitterapi.io API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a tweet API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestTweet returns the most recent tweet of the given user.
func (c *Client) LatestTweet(ctx context.Context, userName string) (*Tweet, error) {
	reqURL := fmt.Sprintf("%s/twitter/user/last_tweets?userName=%s", c.baseURL, url.QueryEscape(userName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tweets for %s: %w", userName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	// The tweets array appears either at the top level or nested under
	// "data" depending on the endpoint version.
	var payload struct {
		Tweets []Tweet `json:"tweets"`
		Data   struct {
			Tweets []Tweet `json:"tweets"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	tweets := payload.Tweets
	if len(tweets) == 0 {
		tweets = payload.Data.Tweets
	}
	if len(tweets) == 0 {
		return nil, fmt.Errorf("no tweets for %s", userName)
	}

	return &tweets[0], nil
}

// TweetSource provides the latest tweet of a user.
type TweetSource interface {
	LatestTweet(ctx context.Context, userName string) (*Tweet, error)
}

// Runner executes the pipeline for one item.
type Runner interface {
	Run(ctx context.Context, item *pipeline.Item) pipeline.Outcome
}

// Poller periodically feeds the watched account's latest tweet through
// the pipeline.
type Poller struct {
	source   TweetSource
	runner   Runner
	userName string

	cron    *cron.Cron
	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// New creates a poller for the given account.
func New(source TweetSource, runner Runner, userName string) *Poller {
	return &Poller{
		source:   source,
		runner:   runner,
		userName: userName,
		cron:     cron.New(),
	}
}

// Schedule registers the poll job with a standard cron expression,
// replacing any previous schedule.
func (p *Poller) Schedule(spec string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.entryID != 0 {
		p.cron.Remove(p.entryID)
	}

	entryID, err := p.cron.AddFunc(spec, func() {
		p.Poll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	p.entryID = entryID

	return nil
}

// Start begins scheduled polling.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.cron.Start()
		p.started = true
	}
}

// Stop halts scheduled polling.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		p.cron.Stop()
		p.started = false
	}
}

// Poll fetches the latest tweet and runs it through the pipeline.
// Fetch failures are logged and skipped; the next tick tries again.
func (p *Poller) Poll(ctx context.Context) {
	tweet, err := p.source.LatestTweet(ctx, p.userName)
	if err != nil {
		slog.Warn("poll failed", "user", p.userName, "error", err)
		return
	}

	text := strings.TrimSpace(tweet.Text)
	if text == "" {
		slog.Info("latest tweet has no text, skipping", "user", p.userName)
		return
	}

	item := &pipeline.Item{Text: text, Link: strings.TrimSpace(tweet.URL)}
	outcome := p.runner.Run(ctx, item)
	slog.Info("poll complete", "user", p.userName, "outcome", outcome)
}
