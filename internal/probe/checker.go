// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrTransport marks a check that failed before any HTTP status was received.
var ErrTransport = errors.New("probe transport failure")

// Checker is the network collaborator. A returned error means no decisive
// status was obtained; any status, including 404, is returned with a nil error.
type Checker interface {
	Head(ctx context.Context, url string) (int, error)
	RangeGet(ctx context.Context, url string) (int, error)
}

// HTTPChecker implements Checker over net/http. The per-request timeout is
// applied through the context.
type HTTPChecker struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPChecker wraps client. Callers pass a client from httpx.NewClient.
func NewHTTPChecker(client *http.Client, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{client: client, timeout: timeout}
}

// Head issues a HEAD request.
func (c *HTTPChecker) Head(ctx context.Context, url string) (int, error) {
	return c.do(ctx, http.MethodHead, url, nil)
}

// RangeGet fetches the first two bytes of the resource.
func (c *HTTPChecker) RangeGet(ctx context.Context, url string) (int, error) {
	return c.do(ctx, http.MethodGet, url, http.Header{"Range": []string{"bytes=0-1"}})
}

func (c *HTTPChecker) do(ctx context.Context, method, url string, header http.Header) (int, error) {
	if strings.TrimSpace(url) == "" {
		return 0, fmt.Errorf("%w: empty url", ErrTransport)
	}
	if c == nil || c.client == nil {
		return 0, fmt.Errorf("%w: client not configured", ErrTransport)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

type verdict int

const (
	verdictInconclusive verdict = iota
	verdictExists
	verdictNotFound
)

// classify interprets a lightweight-tier status. 401 and 403 mean the
// resource is present behind an access gate.
func classify(status int) verdict {
	switch status {
	case http.StatusOK, http.StatusPartialContent, http.StatusUnauthorized, http.StatusForbidden:
		return verdictExists
	case http.StatusNotFound:
		return verdictNotFound
	default:
		return verdictInconclusive
	}
}
