package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// HeadResult is the subset of response metadata the coordinator needs from
// a capability probe (§4.10).
type HeadResult struct {
	Status             int
	ContentLength      int64
	AcceptRanges       bool
	ETag               string
	LastModified       string
	ContentDisposition string
}

// ClientConfig is constructor-time configuration for the HTTP client
// abstraction (C11): cert check toggle, proxy URL, and timeouts are fixed
// for the client's lifetime, matching the teacher's config-at-construction
// idiom in NewHTTPClientWithConfig.
type ClientConfig struct {
	Timeout            time.Duration
	ConnectTimeout     time.Duration
	ProxyURL           string
	NoCheckCertificate bool
	UserAgent          string
	Headers            map[string]string
}

// DefaultClientConfig mirrors the teacher's 30s default timeout.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:        30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		UserAgent:      "swiftget/1.0",
	}
}

// HTTPClient is the thin façade for range GET / HEAD of §4.10 (C11). It is
// shared-immutable after construction: every method is safe to call
// concurrently from multiple segment workers, matching §5's "HTTP client is
// shared-immutable; individual response streams are owned by their worker."
type HTTPClient struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
}

// NewHTTPClient builds a client from cfg, wiring a SOCKS5 or HTTP(S) proxy
// dialer when cfg.ProxyURL is set (grounded on the teacher's configureProxy,
// generalized away from its Terabox-only default headers).
func NewHTTPClient(cfg *ClientConfig) (*HTTPClient, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.NoCheckCertificate,
		},
	}

	if cfg.ProxyURL != "" {
		if err := configureProxy(transport, cfg.ProxyURL); err != nil {
			return nil, fmt.Errorf("configure proxy: %w", err)
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return nil
		},
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultClientConfig().UserAgent
	}

	return &HTTPClient{
		client:    client,
		userAgent: ua,
		headers:   cfg.Headers,
	}, nil
}

func configureProxy(transport *http.Transport, proxyURL string) error {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsed.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	case "socks5":
		dialer, err := proxy.SOCKS5("tcp", parsed.Host, nil, proxy.Direct)
		if err != nil {
			return fmt.Errorf("create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsed.Scheme)
	}
	return nil
}

// buildRequest composes headers in the order of §4.10: defaults <-
// user-agent <- user-custom <- per-request.
func (c *HTTPClient) buildRequest(ctx context.Context, method, rawURL string, custom map[string]string, rangeHeader string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range custom {
		req.Header.Set(k, v)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	return req, nil
}

// Head probes capabilities: content length, byte-range support, ETag, and
// last-modified (§4.8 step 2). A non-2xx/3xx status (including HEAD being
// rejected as method-not-allowed) is surfaced to the caller as-is; the
// coordinator treats any HeadResult.Status >= 400 as a fatal error for the
// task rather than retrying with a ranged GET.
func (c *HTTPClient) Head(ctx context.Context, rawURL string, headers map[string]string) (*HeadResult, error) {
	req, err := c.buildRequest(ctx, http.MethodHead, rawURL, headers, "")
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return &HeadResult{
		Status:             resp.StatusCode,
		ContentLength:      resp.ContentLength,
		AcceptRanges:       resp.Header.Get("Accept-Ranges") == "bytes",
		ETag:               resp.Header.Get("ETag"),
		LastModified:       resp.Header.Get("Last-Modified"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
	}, nil
}

// Get issues a GET, optionally with a Range header, and returns the live
// response for the caller to stream and close (§4.10). The caller owns
// resp.Body.
func (c *HTTPClient) Get(ctx context.Context, rawURL string, headers map[string]string, rangeHeader string) (*http.Response, error) {
	req, err := c.buildRequest(ctx, http.MethodGet, rawURL, headers, rangeHeader)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

// ParseContentDisposition extracts a filename from a Content-Disposition
// header value, used by DeriveFilename (§4.8 step 1): Content-Disposition >
// URL path > fallback.
func ParseContentDisposition(headerValue string) string {
	if headerValue == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(headerValue)
	if err != nil {
		return ""
	}
	if name, ok := params["filename"]; ok {
		return name
	}
	return ""
}

// ParseRetryAfter parses a Retry-After header as either a delta-seconds
// integer or leaves it unparsed (HTTP-date form is not used by test
// servers and is intentionally not supported here).
func ParseRetryAfter(headerValue string) (time.Duration, bool) {
	if headerValue == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(headerValue)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
