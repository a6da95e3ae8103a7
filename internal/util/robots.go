package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const (
	robotsTTL      = time.Hour
	robotsMaxBytes = 512 << 10
)

// RobotsChecker answers robots.txt questions for outbound requests. Parsed
// files are cached per scheme and host for an hour and fetched once even
// under concurrent lookups.
type RobotsChecker struct {
	cache      *gocache.Cache
	flight     singleflight.Group
	httpClient *http.Client
	userAgent  string
}

// NewRobotsChecker creates a checker matching rules for userAgent
func NewRobotsChecker(userAgent string, timeout time.Duration) *RobotsChecker {
	return &RobotsChecker{
		cache:      gocache.New(robotsTTL, 10*time.Minute),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// CanFetch reports whether rawURL may be requested and the crawl delay
// asked for. An unreachable or unparseable robots.txt allows everything.
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	data, err := r.rules(ctx, parsed.Scheme+"://"+parsed.Host)
	if err != nil {
		return true, 0, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	var delay time.Duration
	if group := data.FindGroup(r.userAgent); group != nil {
		delay = group.CrawlDelay
	}
	return data.TestAgent(path, r.userAgent), delay, nil
}

// IsAllowed returns only the allowed status of CanFetch
func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) bool {
	allowed, _, _ := r.CanFetch(ctx, rawURL)
	return allowed
}

// Clear forgets every cached robots.txt
func (r *RobotsChecker) Clear() {
	r.cache.Flush()
}

func (r *RobotsChecker) rules(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	if v, ok := r.cache.Get(origin); ok {
		return v.(*robotstxt.RobotsData), nil
	}

	v, err, _ := r.flight.Do(origin, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", r.userAgent)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch robots.txt: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, robotsMaxBytes))
		if err != nil {
			return nil, fmt.Errorf("read robots.txt: %w", err)
		}
		data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
		if err != nil {
			return nil, fmt.Errorf("parse robots.txt: %w", err)
		}
		r.cache.SetDefault(origin, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.RobotsData), nil
}

// NormalizeUserAgent reduces a user agent to the product token robots.txt
// groups match on, e.g. "veracast/0.1 (+url)" becomes "veracast"
func NormalizeUserAgent(ua string) string {
	fields := strings.Fields(ua)
	if len(fields) == 0 {
		return ua
	}
	product, _, _ := strings.Cut(fields[0], "/")
	return product
}
