// Package util holds HTTP plumbing shared by the outbound clients.
package util

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// NewProxyFunc returns the proxy selector for outbound clients. Without
// explicit proxies the environment (HTTP_PROXY, HTTPS_PROXY, NO_PROXY) is used.
// noProxy follows the NO_PROXY syntax and applies to explicit proxies too.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}
	if httpsProxy == "" {
		httpsProxy = httpProxy
	}
	pick := (&httpproxy.Config{
		HTTPProxy:  httpProxy,
		HTTPSProxy: httpsProxy,
		NoProxy:    noProxy,
	}).ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return pick(req.URL)
	}
}
