package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/veracast/internal/model"
)

func newTestValidator(timeout time.Duration, robots bool) *Validator {
	return NewValidator(Options{Timeout: timeout, MaxWorkers: 20, RespectRobots: robots})
}

func TestValidator_Check_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Expected HEAD request, got %s", r.Method)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("Expected a User-Agent header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := newTestValidator(time.Second, false).Check(context.Background(), server.URL)

	if !result.Valid {
		t.Errorf("Expected link to be valid, got error %q", result.Error)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", result.StatusCode)
	}
}

func TestValidator_Check_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	result := newTestValidator(time.Second, false).Check(context.Background(), server.URL)

	if result.Valid {
		t.Error("Expected 404 link to be invalid")
	}
	if result.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", result.StatusCode)
	}
}

func TestValidator_Check_Redirect(t *testing.T) {
	finalServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer finalServer.Close()

	redirectServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, finalServer.URL, http.StatusMovedPermanently)
	}))
	defer redirectServer.Close()

	result := newTestValidator(time.Second, false).Check(context.Background(), redirectServer.URL)

	if !result.Valid {
		t.Error("Expected redirected link to be valid")
	}
	if result.RedirectURL != finalServer.URL {
		t.Errorf("Expected redirect to %s, got %s", finalServer.URL, result.RedirectURL)
	}
}

func TestValidator_Check_TimeoutIsInvalidAndNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	start := time.Now()
	result := newTestValidator(50*time.Millisecond, false).Check(context.Background(), server.URL)

	if result.Valid {
		t.Error("Expected timed out link to be invalid")
	}
	if result.Error == "" {
		t.Error("Expected an error message")
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Expected check to give up at the timeout, took %v", elapsed)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("Expected exactly one request, got %d", n)
	}
}

func TestValidator_Check_ServerErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	result := newTestValidator(time.Second, false).Check(context.Background(), server.URL)
	if result.Valid {
		t.Error("Expected 503 to be invalid")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("Expected exactly one request, got %d", n)
	}
}

func TestValidator_Check_NonHTTP(t *testing.T) {
	v := newTestValidator(time.Second, false)
	for _, u := range []string{"ftp://example.com/file", "javascript:alert(1)", "not a url", ""} {
		if r := v.Check(context.Background(), u); r.Valid {
			t.Errorf("Expected %q to be invalid", u)
		}
	}
}

func TestValidator_Check_RobotsDisallowed(t *testing.T) {
	var heads atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		heads.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	v := newTestValidator(time.Second, true)

	blocked := v.Check(context.Background(), server.URL+"/private/report")
	if blocked.Valid || !blocked.Disallowed {
		t.Errorf("Expected disallowed link, got %+v", blocked)
	}
	if heads.Load() != 0 {
		t.Error("Expected no HEAD request for a disallowed path")
	}

	open := v.Check(context.Background(), server.URL+"/public/report")
	if !open.Valid {
		t.Errorf("Expected allowed link to be valid, got %+v", open)
	}
}

func TestValidator_Validate_ConcurrentAndOrdered(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer missing.Close()

	urls := make([]string, 0, 10)
	for i := 0; i < 9; i++ {
		urls = append(urls, slow.URL+"/"+string(rune('a'+i)))
	}
	urls = append(urls, missing.URL)

	start := time.Now()
	results := newTestValidator(time.Second, false).Validate(context.Background(), urls)
	duration := time.Since(start)

	if len(results) != len(urls) {
		t.Fatalf("Expected %d results, got %d", len(urls), len(results))
	}
	for i, r := range results {
		if r.URL != urls[i] {
			t.Errorf("Result %d out of order: %s", i, r.URL)
		}
	}
	if results[9].Valid {
		t.Error("Expected 410 link to be invalid")
	}
	// Nine 100ms checks in parallel
	if duration > 600*time.Millisecond {
		t.Errorf("Expected concurrent validation, took %v", duration)
	}
}

func TestValidator_Validate_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	results := newTestValidator(5*time.Second, false).Validate(ctx, []string{server.URL})
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Valid {
		t.Error("Expected link not to be valid after context cancellation")
	}
}

func TestValidator_Vet(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer bad.Close()

	got := newTestValidator(time.Second, false).Vet(context.Background(), []string{ok.URL + "/a", bad.URL, ok.URL + "/a", "", ok.URL + "/b"})

	want := []string{ok.URL + "/a", ok.URL + "/b"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, got[i])
		}
	}
}

func TestValidator_AuthorityOnResult(t *testing.T) {
	v := NewValidator(Options{Timeout: 50 * time.Millisecond})
	r := v.Check(context.Background(), "ftp://www.census.gov/data")
	if r.Authority != model.TierPrimary {
		t.Errorf("Expected primary authority, got %v", r.Authority)
	}
}

func TestOptionsFromModel_Proxy(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.HTTPProxy = "http://proxy:3128"
	cfg.LLM.HTTPSProxy = "http://proxy:3129"
	cfg.LLM.NoProxy = "localhost,.internal"

	opts := OptionsFromModel(cfg)
	if opts.HTTPProxy != "http://proxy:3128" || opts.HTTPSProxy != "http://proxy:3129" {
		t.Errorf("proxies = %q, %q", opts.HTTPProxy, opts.HTTPSProxy)
	}
	if opts.NoProxy != "localhost,.internal" {
		t.Errorf("NoProxy = %q, want %q", opts.NoProxy, "localhost,.internal")
	}

	// Hosts on the no-proxy list bypass the proxy
	proxy := NewValidator(opts).httpClient.Transport.(*http.Transport).Proxy
	req, _ := http.NewRequest(http.MethodHead, "http://api.internal/health", nil)
	u, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	if u != nil {
		t.Errorf("proxy for no-proxy host = %v, want none", u)
	}
	req, _ = http.NewRequest(http.MethodHead, "http://example.com/", nil)
	u, err = proxy(req)
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	if u == nil || u.Host != "proxy:3128" {
		t.Errorf("proxy for example.com = %v, want proxy:3128", u)
	}
}
