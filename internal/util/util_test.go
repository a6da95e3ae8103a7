package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProxyFunc(t *testing.T) {
	pick := NewProxyFunc("http://proxy.local:3128", "", "internal.example")

	req := &http.Request{URL: &url.URL{Scheme: "https", Host: "api.example.com"}}
	got, err := pick(req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "proxy.local:3128", got.Host, "https falls back to the http proxy")

	req = &http.Request{URL: &url.URL{Scheme: "https", Host: "internal.example"}}
	got, err = pick(req)
	require.NoError(t, err)
	assert.Nil(t, got, "no_proxy host goes direct")
}

func TestRobotsChecker(t *testing.T) {
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fetches.Add(1)
			_, _ = w.Write([]byte("User-agent: veracast\nDisallow: /private\nCrawl-delay: 2\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rc := NewRobotsChecker("veracast", time.Second)
	ctx := context.Background()

	allowed, delay, err := rc.CanFetch(ctx, srv.URL+"/public/page")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2*time.Second, delay)

	assert.False(t, rc.IsAllowed(ctx, srv.URL+"/private/doc"))
	assert.Equal(t, int32(1), fetches.Load(), "robots.txt is cached per host")

	rc.Clear()
	assert.True(t, rc.IsAllowed(ctx, srv.URL+"/"))
	assert.Equal(t, int32(2), fetches.Load())
}

func TestRobotsChecker_UnreachableAllows(t *testing.T) {
	rc := NewRobotsChecker("veracast", 200*time.Millisecond)
	assert.True(t, rc.IsAllowed(context.Background(), "http://127.0.0.1:1/anything"))
}

func TestNormalizeUserAgent(t *testing.T) {
	assert.Equal(t, "veracast", NormalizeUserAgent("veracast/0.1 (+https://github.com/ppiankov/veracast)"))
	assert.Equal(t, "bot", NormalizeUserAgent("bot"))
	assert.Equal(t, "", NormalizeUserAgent(""))
}
