// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package traffic

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Source opens a fresh byte stream. Every call starts from the beginning.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

const DefaultUserAgent = "keepalive/1.0"

// HTTPSource streams the body of a GET request.
type HTTPSource struct {
	URL       string
	UserAgent string
	Client    *http.Client
}

// NewHTTPSource has no overall client timeout since a body may legitimately
// stream for a long time; the task's own deadline bounds it instead.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL:       url,
		UserAgent: DefaultUserAgent,
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       60 * time.Second,
				// Count bytes as they come off the wire.
				DisableCompression: true,
			},
		},
	}
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Open returns the response body. Client errors (4xx) are wrapped as permanent
// since retrying the same URL cannot fix them.
func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		statusErr := &StatusError{Code: resp.StatusCode}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}
	return resp.Body, nil
}
