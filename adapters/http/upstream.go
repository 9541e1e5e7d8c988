package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// UpstreamClient forwards charged requests to the protected service.
type UpstreamClient struct {
	client  *http.Client
	baseURL *url.URL
}

// UpstreamConfig contains configuration for the upstream client.
type UpstreamConfig struct {
	BaseURL         string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// UpstreamResponse is a buffered upstream reply.
type UpstreamResponse struct {
	Status    int
	Headers   http.Header
	Body      []byte
	LatencyMs int64
}

// NewUpstreamClient creates a new upstream HTTP client.
func NewUpstreamClient(cfg UpstreamConfig) (*UpstreamClient, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}

	idleConnTimeout := cfg.IdleConnTimeout
	if idleConnTimeout == 0 {
		idleConnTimeout = 90 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &UpstreamClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL: baseURL,
	}, nil
}

// Forward sends r with body to the upstream and buffers the reply.
// Credential headers are never forwarded.
func (u *UpstreamClient) Forward(ctx context.Context, r *http.Request, body []byte) (UpstreamResponse, error) {
	start := time.Now()

	upstreamURL := u.baseURL.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	})

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), reader)
	if err != nil {
		return UpstreamResponse{}, fmt.Errorf("create request: %w", err)
	}

	for k, v := range r.Header {
		if skipRequestHeader(k) {
			continue
		}
		req.Header[k] = v
	}
	req.Header.Set("X-Forwarded-For", clientIP(r))
	if id := middleware.GetReqID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return UpstreamResponse{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20)) // 50MB limit
	if err != nil {
		return UpstreamResponse{}, fmt.Errorf("read response: %w", err)
	}

	headers := make(http.Header, len(resp.Header))
	for k, v := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		headers[k] = v
	}

	return UpstreamResponse{
		Status:    resp.StatusCode,
		Headers:   headers,
		Body:      respBody,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

func skipRequestHeader(k string) bool {
	switch strings.ToLower(k) {
	case "authorization", "x-api-key", "x-api-secret":
		return true
	}
	return isHopByHop(k)
}

func isHopByHop(k string) bool {
	switch strings.ToLower(k) {
	case "connection", "keep-alive", "proxy-authenticate", "proxy-authorization",
		"te", "trailers", "transfer-encoding", "upgrade":
		return true
	}
	return false
}

// clientIP returns the caller address. RealIP middleware has already
// rewritten RemoteAddr from forwarding headers.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// Close releases idle connections.
func (u *UpstreamClient) Close() {
	u.client.CloseIdleConnections()
}
