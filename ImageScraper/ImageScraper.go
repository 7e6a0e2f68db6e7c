package ImageScraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

const userAgent = "Washoku Scraper"

// ErrStatus is returned when a server answers with a status that is not worth retrying.
var ErrStatus = errors.New("unexpected response status")

type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// backoff returns the delay before the given retry (1-based).
func (p RetryPolicy) backoff(retry int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

type Client struct {
	httpClient *http.Client
	retry      RetryPolicy
}

func NewClient(timeout time.Duration, retry RetryPolicy) *Client {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry: retry,
	}
}

// Fetch GETs url and returns the full body, retrying transport errors, 429 and 5xx.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 1 {
			wait := c.retry.backoff(attempt - 1)
			log.Debug("Retrying ", url, " in ", wait, " (attempt ", attempt, "/", c.retry.Attempts, ")")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		body, retryable, err := c.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
		log.Warn("Fetch of ", url, " failed: ", err)
	}

	return nil, fmt.Errorf("fetch %s: %w", url, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, res.Body)
		retryable := res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500
		return nil, retryable, fmt.Errorf("%w: %s", ErrStatus, res.Status)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, true, err
	}

	return body, false, nil
}

// Download writes the body of url to path. Nothing is written if the fetch fails.
func (c *Client) Download(ctx context.Context, url string, path string) (int, error) {
	data, err := c.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}

	log.Trace("Wrote ", len(data), " bytes from ", url, " to ", path)
	return len(data), nil
}
