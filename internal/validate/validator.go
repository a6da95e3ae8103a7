// Package validate vets externally supplied source links with a single,
// time-boxed HEAD request and classifies their authority.
package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ppiankov/veracast/internal/metrics"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/util"
)

// DefaultTimeout bounds each link check
const DefaultTimeout = 5 * time.Second

// Options configures a Validator
type Options struct {
	Timeout       time.Duration
	MaxWorkers    int
	UserAgent     string
	RespectRobots bool
	Authority     *model.AuthorityConfig
	HTTPProxy     string
	HTTPSProxy    string
	NoProxy       string
	Logger        *slog.Logger
}

// OptionsFromModel builds validator options from the application config
func OptionsFromModel(cfg *model.Config) Options {
	return Options{
		Timeout:       cfg.Validation.Timeout,
		MaxWorkers:    cfg.Validation.MaxWorkers,
		UserAgent:     cfg.Validation.UserAgent,
		RespectRobots: cfg.Validation.RespectRobots,
		Authority:     &cfg.Authority,
		HTTPProxy:     cfg.LLM.HTTPProxy,
		HTTPSProxy:    cfg.LLM.HTTPSProxy,
		NoProxy:       cfg.LLM.NoProxy,
	}
}

// Validator checks source links concurrently. A link is valid when a HEAD
// request answers 2xx or 3xx within the timeout. Failures are never retried.
type Validator struct {
	httpClient *http.Client
	timeout    time.Duration
	maxWorkers int
	userAgent  string
	authority  *AuthorityClassifier
	robots     *util.RobotsChecker
	logger     *slog.Logger
}

// NewValidator creates a new validator
func NewValidator(opts Options) *Validator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 8
	}
	if opts.UserAgent == "" {
		opts.UserAgent = model.DefaultConfig().Validation.UserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	v := &Validator{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(opts.HTTPProxy, opts.HTTPSProxy, opts.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return errors.New("stopped after 3 redirects")
				}
				return nil
			},
		},
		timeout:    opts.Timeout,
		maxWorkers: opts.MaxWorkers,
		userAgent:  opts.UserAgent,
		authority:  NewAuthorityClassifier(opts.Authority),
		logger:     opts.Logger,
	}
	if opts.RespectRobots {
		v.robots = util.NewRobotsChecker(util.NormalizeUserAgent(opts.UserAgent), opts.Timeout)
	}
	return v
}

// Check vets one link
func (v *Validator) Check(ctx context.Context, rawURL string) model.LinkCheck {
	result := model.LinkCheck{URL: rawURL, Authority: v.authority.Classify(rawURL)}
	defer func() {
		switch {
		case result.Valid:
			metrics.LinkChecks.WithLabelValues("valid").Inc()
		case result.Disallowed:
			metrics.LinkChecks.WithLabelValues("disallowed").Inc()
		default:
			metrics.LinkChecks.WithLabelValues("invalid").Inc()
		}
	}()

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		result.Error = "not an http(s) URL"
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if v.robots != nil && !v.robots.IsAllowed(ctx, rawURL) {
		result.Disallowed = true
		result.Error = "disallowed by robots.txt"
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		return result
	}
	req.Header.Set("User-Agent", v.userAgent)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	result.Valid = resp.StatusCode >= 200 && resp.StatusCode < 400
	if final := resp.Request.URL.String(); final != rawURL {
		result.RedirectURL = final
	}
	return result
}

// Validate checks all links concurrently; results keep input order
func (v *Validator) Validate(ctx context.Context, urls []string) []model.LinkCheck {
	results := make([]model.LinkCheck, len(urls))
	if len(urls) == 0 {
		return results
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.maxWorkers)
	for i, u := range urls {
		wg.Add(1)
		go func(idx int, rawURL string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				results[idx] = model.LinkCheck{URL: rawURL, Authority: v.authority.Classify(rawURL), Error: "context cancelled"}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()
			results[idx] = v.Check(ctx, rawURL)
		}(i, u)
	}
	wg.Wait()
	return results
}

// Vet returns only the links that passed, in input order, dropping duplicates
func (v *Validator) Vet(ctx context.Context, urls []string) []string {
	seen := make(map[string]bool, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" && !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	var valid []string
	for _, r := range v.Validate(ctx, unique) {
		if r.Valid {
			valid = append(valid, r.URL)
			continue
		}
		v.logger.Debug("dropping source link", "url", r.URL, "status", r.StatusCode, "error", r.Error)
	}
	return valid
}
