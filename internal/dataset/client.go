package dataset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client downloads the raw national dataset.
type Client struct {
	url        string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
}

// ClientConfig tunes retries of the dataset download.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// NewClient creates a new dataset client
func NewClient(url string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelayBase,
	}
}

// Fetch returns the raw JSON body of the dataset.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	resp, err := c.doRequest(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset body: %w", err)
	}
	return body, nil
}

// FetchDataset downloads and parses the dataset.
func (c *Client) FetchDataset(ctx context.Context, loc *time.Location) (*Dataset, error) {
	raw, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(raw, loc)
}

// doRequest performs HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay * time.Duration(i+1)):
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
