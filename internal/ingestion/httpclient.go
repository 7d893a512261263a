package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	maxResponseBytes = 10 << 20
	userAgent        = "newsdesk/1.0 (+https://github.com/STRATINT/newsdesk)"
	defaultTimeout   = 30 * time.Second
)

// HTTPFetcher performs the GET requests shared by every collector.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client, or a client with a default timeout when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPFetcher{client: client}
}

// Get fetches url and returns at most 10 MiB of the body. Transport failures, 429 and
// 5xx responses come back as retryable network errors; other non-2xx statuses are
// network errors that are not retried.
func (f *HTTPFetcher) Get(ctx context.Context, source, url, accept string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, networkError(source, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, networkError(source, err)
		}
		return nil, NewRetryableError(networkError(source, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := networkError(source, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, NewRetryableErrorWithDelay(statusErr, retryAfter(resp.Header.Get("Retry-After")))
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, NewRetryableError(networkError(source, fmt.Errorf("read body: %w", err)))
	}
	if len(body) > maxResponseBytes {
		return nil, parseError(source, fmt.Errorf("response exceeds %d bytes", maxResponseBytes))
	}
	return body, nil
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
