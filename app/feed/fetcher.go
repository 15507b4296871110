package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bergham123/anime-news-bot/app/fault"
)

const maxBodySize = 32 << 20

// Fetcher performs bounded GET requests for feeds, article pages and images.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Get fetches url with the default timeout. Every failure is a TransientFetch fault.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	return f.GetWithTimeout(ctx, url, f.timeout)
}

func (f *Fetcher) GetWithTimeout(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = f.timeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fault.Fetch("create request", url, err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fault.Fetch("get", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.Fetch("get", url, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fault.Fetch("read response body", url, err)
	}

	return data, nil
}
