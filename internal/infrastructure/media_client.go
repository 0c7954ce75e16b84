package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yourusername/streamsave-go/internal/domain"
)

// MediaClient is the HTTP client used for all upstream media requests. It
// applies the configured user agent and per-request timeout uniformly.
type MediaClient struct {
	httpc     *http.Client
	userAgent string
}

// NewMediaClient creates a media client from download configuration
func NewMediaClient(config *domain.DownloadConfig) *MediaClient {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &MediaClient{
		httpc:     &http.Client{Timeout: timeout},
		userAgent: config.UserAgent,
	}
}

// Get issues a GET request with the configured user agent. The caller owns
// the response body.
func (c *MediaClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	return c.httpc.Do(req)
}

// GetBytes fetches a URL and returns the full body, failing on any non-200
// status
func (c *MediaClient) GetBytes(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}
