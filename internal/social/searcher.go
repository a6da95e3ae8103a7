// Package social supplies candidate posts for claim graphs, from a search API
// when credentials exist and from an LLM otherwise.
package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/veracast/internal/graph"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/util"
	"github.com/ppiankov/veracast/internal/worker"
)

// ErrUnavailable means the searcher has no endpoint or credentials
var ErrUnavailable = errors.New("search collaborator unavailable")

const (
	maxSearchAttempts = 3
	minResults        = 10
	maxResults        = 100
)

// searchSleepFunc is replaced in tests
var searchSleepFunc = time.Sleep

// SearcherOptions configures a Searcher
type SearcherOptions struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	UserAgent   string
	MaxBytes    int64
	Limiter     *worker.Limiter
	HTTPProxy   string
	HTTPSProxy  string
	NoProxy     string
	Logger      *slog.Logger
}

// SearcherOptionsFromModel builds options from the application config
func SearcherOptionsFromModel(cfg *model.Config, limiter *worker.Limiter) SearcherOptions {
	return SearcherOptions{
		BaseURL:     cfg.Search.BaseURL,
		BearerToken: cfg.Search.BearerToken,
		Timeout:     cfg.Search.Timeout,
		UserAgent:   cfg.Search.UserAgent,
		MaxBytes:    cfg.Search.MaxBytes,
		Limiter:     limiter,
		HTTPProxy:   cfg.LLM.HTTPProxy,
		HTTPSProxy:  cfg.LLM.HTTPSProxy,
		NoProxy:     cfg.LLM.NoProxy,
	}
}

// Searcher queries a recent-search endpoint shaped like the X API v2
type Searcher struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	maxBytes   int64
	limiter    *worker.Limiter
	logger     *slog.Logger
}

// NewSearcher creates a search client
func NewSearcher(opts SearcherOptions) *Searcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 2 << 20
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Searcher{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		token:     opts.BearerToken,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		limiter:   opts.Limiter,
		logger:    opts.Logger,
	}
}

// Name returns the source name
func (s *Searcher) Name() string { return "search" }

// Available reports whether an endpoint and token are configured
func (s *Searcher) Available() bool {
	return s.baseURL != "" && s.token != ""
}

// Search returns posts matching the claim keywords
func (s *Searcher) Search(ctx context.Context, req graph.SearchRequest) ([]model.Post, error) {
	if !s.Available() {
		return nil, ErrUnavailable
	}

	endpoint := s.baseURL + "/2/tweets/search/recent?" + searchParams(req).Encode()

	var lastErr error
	for attempt := 0; attempt < maxSearchAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			s.logger.Debug("retrying search", "attempt", attempt+1, "backoff", backoff, "error", lastErr)
			searchSleepFunc(backoff)
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx, endpoint); err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
		}

		body, err := s.get(ctx, endpoint)
		if err == nil {
			return decodeSearch(body)
		}
		lastErr = err
		if !isRetryableSearchError(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("search failed after %d attempts: %w", maxSearchAttempts, lastErr)
}

func searchParams(req graph.SearchRequest) url.Values {
	terms := req.Keywords
	if len(terms) == 0 {
		terms = []string{req.Claim}
	}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if strings.ContainsRune(t, ' ') {
			t = strconv.Quote(t)
		}
		quoted = append(quoted, t)
	}

	count := req.Count
	if count < minResults {
		count = minResults
	}
	if count > maxResults {
		count = maxResults
	}

	q := url.Values{}
	q.Set("query", "("+strings.Join(quoted, " OR ")+") lang:en")
	q.Set("max_results", strconv.Itoa(count))
	q.Set("tweet.fields", "public_metrics,referenced_tweets,author_id")
	q.Set("expansions", "author_id")
	q.Set("user.fields", "name,username,verified,public_metrics")
	return q
}

func (s *Searcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// isRetryableSearchError retries rate limiting, server errors and dropped connections
func isRetryableSearchError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if strings.HasPrefix(msg, "unexpected status: ") {
		code := strings.Fields(strings.TrimPrefix(msg, "unexpected status: "))
		if len(code) == 0 {
			return false
		}
		n, _ := strconv.Atoi(code[0])
		return n == http.StatusTooManyRequests || n >= 500
	}
	return strings.HasPrefix(msg, "fetch: ")
}

type searchResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		AuthorID      string `json:"author_id"`
		PublicMetrics struct {
			Impressions int `json:"impression_count"`
			Likes       int `json:"like_count"`
			Retweets    int `json:"retweet_count"`
			Replies     int `json:"reply_count"`
			Quotes      int `json:"quote_count"`
		} `json:"public_metrics"`
		ReferencedTweets []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"referenced_tweets"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Username      string `json:"username"`
			Verified      bool   `json:"verified"`
			PublicMetrics struct {
				Followers int `json:"followers_count"`
			} `json:"public_metrics"`
		} `json:"users"`
	} `json:"includes"`
}

func decodeSearch(body []byte) ([]model.Post, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	type author struct {
		name, handle string
		verified     bool
		followers    int
	}
	authors := make(map[string]author, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		authors[u.ID] = author{name: u.Name, handle: u.Username, verified: u.Verified, followers: u.PublicMetrics.Followers}
	}

	posts := make([]model.Post, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.ID == "" {
			continue
		}
		a := authors[d.AuthorID]
		p := model.Post{
			ID:           d.ID,
			AuthorName:   a.name,
			AuthorHandle: a.handle,
			Followers:    a.followers,
			Verified:     a.verified,
			Text:         d.Text,
			Impressions:  d.PublicMetrics.Impressions,
			Likes:        d.PublicMetrics.Likes,
			Reposts:      d.PublicMetrics.Retweets + d.PublicMetrics.Quotes,
			Replies:      d.PublicMetrics.Replies,
			Kind:         model.PostOriginal,
		}
		if a.handle != "" {
			p.URL = "https://x.com/" + a.handle + "/status/" + d.ID
		}
		if len(d.ReferencedTweets) > 0 {
			ref := d.ReferencedTweets[0]
			p.ReferencedID = ref.ID
			switch ref.Type {
			case "replied_to":
				p.Kind = model.PostReply
			case "quoted":
				p.Kind = model.PostQuote
			case "retweeted":
				p.Kind = model.PostRetweet
			}
		}
		posts = append(posts, p)
	}
	return posts, nil
}
