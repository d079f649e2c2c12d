package integrations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/qqqlq/itf-ensyu/pkg/cache"
	"github.com/qqqlq/itf-ensyu/pkg/observability"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 32 << 20

// Client provides shared HTTP functionality for API clients.
// It handles optional response caching, status mapping and common headers.
// Failed requests are never retried.
type Client struct {
	http      *http.Client
	cache     cache.Cache
	namespace string
	ttl       time.Duration
	headers   map[string]string
}

// NewClient creates a Client with the given cache backend and default headers.
// Responses are cached under namespace for ttl; a ttl of 0 disables caching
// regardless of the backend. Pass nil for headers if none are needed.
func NewClient(c cache.Cache, namespace string, ttl time.Duration, headers map[string]string) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:      NewHTTPClient(0),
		cache:     c,
		namespace: namespace,
		ttl:       ttl,
		headers:   headers,
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	if hc != nil {
		c.http = hc
	}
}

// GetBytes performs a GET and returns the body. When caching is enabled a
// fresh cached body is returned without a request unless refresh is set,
// and successful responses are stored. The second result reports a cache hit.
func (c *Client) GetBytes(ctx context.Context, rawURL string, refresh bool) ([]byte, bool, error) {
	key := cache.HTTPKey(c.namespace, rawURL)
	if c.ttl > 0 && !refresh {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			observability.Cache().OnCacheHit(ctx, c.namespace)
			return data, true, nil
		}
		observability.Cache().OnCacheMiss(ctx, c.namespace)
	}

	body, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return nil, false, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, false, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	if c.ttl > 0 {
		if err := c.cache.Set(ctx, key, data, c.ttl); err == nil {
			observability.Cache().OnCacheSet(ctx, c.namespace, len(data))
		}
	}
	return data, false, nil
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	host, path := hostPath(rawURL)
	hooks := observability.HTTP()
	hooks.OnRequest(ctx, http.MethodGet, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, http.MethodGet, host, path, err)
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	hooks.OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode, rawURL); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(code int, rawURL string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	return &StatusError{StatusCode: code, URL: rawURL}
}

func hostPath(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", rawURL
	}
	return u.Host, u.Path
}
