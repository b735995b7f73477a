// Package connectivity reports whether the remote server is reachable.
//
// The sync orchestrator receives a Checker and samples it once per pass
// instead of consulting process-wide state.
package connectivity

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Checker reports whether the remote server can currently be reached.
type Checker interface {
	Online(ctx context.Context) bool
}

// Static is a Checker with a fixed, switchable answer. It backs the
// --offline flag and tests.
type Static struct {
	online atomic.Bool
}

// NewStatic returns a Static checker with the given initial state.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

// Online implements Checker.
func (s *Static) Online(context.Context) bool {
	return s.online.Load()
}

// Set changes the reported state.
func (s *Static) Set(online bool) {
	s.online.Store(online)
}

// HTTPProbe considers the server online when a request to URL answers with
// any status below 500 within Timeout.
type HTTPProbe struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// DefaultProbeTimeout bounds a single probe request.
const DefaultProbeTimeout = 3 * time.Second

// NewHTTPProbe returns a probe against url.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPProbe{
		URL:     url,
		Timeout: timeout,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Online implements Checker.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	if p.URL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
