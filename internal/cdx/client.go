package cdx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public CDX endpoint of the archival index
const DefaultBaseURL = "https://web.archive.org/cdx/search/cdx"

const userAgent = "archive-resistance-harvester/1.2 (+https://govtools.org)"

// ClientConfig tunes a Client
type ClientConfig struct {
	BaseURL           string
	StartDate         string  // 8-digit YYYYMMDD lower bound for captures
	PageLimit         int     // rows requested per page; forces resume-key emission
	RequestTimeout    time.Duration
	RequestsPerSecond float64 // shared politeness budget across all workers
	Backoff           Backoff
}

// Client queries the CDX index API for capture records. A single Client is
// shared by all harvesters; the embedded rate limiter keeps the combined
// request rate within the politeness budget.
type Client struct {
	baseURL   string
	startDate string
	pageLimit int
	http      *http.Client
	limiter   *rate.Limiter
	backoff   Backoff
}

// NewClient creates a Client for the configured index endpoint
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		startDate: cfg.StartDate,
		pageLimit: cfg.PageLimit,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		backoff: cfg.Backoff,
	}
}

// FetchPage issues one bounded query for the domain and splits the response
// into data rows plus the optional continuation token. A successful but
// empty response yields an empty Page, which callers treat as terminal.
func (c *Client) FetchPage(ctx context.Context, domain, resumeKey string) (Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}

	params := url.Values{}
	params.Set("url", domain)
	params.Set("matchType", "domain")
	params.Set("from", c.startDate)
	params.Set("fl", "timestamp,statuscode")
	params.Set("output", "json")
	params.Set("showResumeKey", "true")
	params.Set("limit", strconv.Itoa(c.pageLimit))
	if resumeKey != "" {
		params.Set("resumeKey", resumeKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Page{}, fmt.Errorf("failed to build index request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("index request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return Page{}, fmt.Errorf("index returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Page{}, fmt.Errorf("failed to read index response: %w", err)
	}

	// An empty body is a valid terminal signal: no captures for the query
	if strings.TrimSpace(string(body)) == "" {
		return Page{}, nil
	}

	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return Page{}, fmt.Errorf("malformed index response: %w", err)
	}

	records, token := Split(rows)
	return Page{Records: records, ResumeKey: token}, nil
}

// FetchPageWithRetry wraps FetchPage with the exponential-backoff retry
// policy. After the retry budget is exhausted the last error is returned;
// the caller degrades the domain to a partial result rather than failing
// the run.
func (c *Client) FetchPageWithRetry(ctx context.Context, domain, resumeKey string) (Page, error) {
	var lastErr error

	for attempt := 0; c.backoff.ShouldRetry(attempt); attempt++ {
		if attempt > 0 {
			wait := c.backoff.Delay(attempt - 1)
			if attempt >= 3 {
				logrus.Warnf("Retry %d/%d for %s after %v: %v", attempt, c.backoff.MaxRetries, domain, wait.Round(time.Millisecond), lastErr)
			}
			select {
			case <-ctx.Done():
				return Page{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		page, err := c.FetchPage(ctx, domain, resumeKey)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		lastErr = err
	}

	return Page{}, fmt.Errorf("exhausted %d retries for %s: %w", c.backoff.MaxRetries, domain, lastErr)
}
