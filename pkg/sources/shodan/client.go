// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package shodan discovers candidate hosts through the Shodan host search API.
package shodan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"powerdnscout/pkg/metrics"
	"powerdnscout/pkg/model"
	"powerdnscout/pkg/util/workers"
)

const (
	DefaultBaseURL = "https://api.shodan.io"
	DefaultQuery   = "PowerDNS Authoritative Server Monitor"

	// PageSize is the number of matches Shodan returns per full page
	PageSize = 100

	defaultTimeout = 30 * time.Second
	maxBodySize    = 32 << 20
)

// ErrUnauthorized is returned when the API key is rejected
const ErrUnauthorized = model.Error("shodan API key rejected")

// Config contains the Shodan client settings
type Config struct {
	APIKey    string
	BaseURL   string
	MaxPages  int     // 0 = until a short page
	RateLimit float64 // requests per second (0 = no limit)
	UserAgent string
	Retry     workers.RetryConfig
}

// Client is a Shodan host search client
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
}

// Match is a single search result
type Match struct {
	IPStr    string `json:"ip_str"`
	Org      string `json:"org"`
	Location struct {
		CountryName string `json:"country_name"`
	} `json:"location"`
}

// Page is one page of search results
type Page struct {
	Number  int     `json:"-"`
	Total   int     `json:"total"`
	Matches []Match `json:"matches"`
}

// NewClient creates a new Shodan client
func NewClient(cfg Config, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = workers.DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    limiter,
		metrics:    m,
	}
}

// Page fetches a single result page (1-based), retrying transient failures
func (c *Client) Page(ctx context.Context, query string, number int) (*Page, error) {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("query", query)
	params.Set("page", strconv.Itoa(number))
	endpoint := c.cfg.BaseURL + "/shodan/host/search?" + params.Encode()

	var page *Page
	err := workers.Retry(ctx, c.cfg.Retry, func() error {
		p, err := c.fetch(ctx, endpoint)
		if errors.Is(err, ErrUnauthorized) {
			return workers.Permanent(err)
		}
		if err != nil {
			log.Printf("WARN: Shodan page %d failed: %v", number, err)
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("shodan page %d: %w", number, err)
	}

	page.Number = number
	c.metrics.PageFetched()
	return page, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", stripURL(err))
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", stripURL(err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, model.ErrRateLimited
	default:
		return nil, fmt.Errorf("%w %d", model.ErrBadStatus, resp.StatusCode)
	}

	var page Page
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return &page, nil
}

// Pages iterates result pages lazily, stopping after a short page, the
// page cap or the first error. Each range over the sequence starts again
// from page 1.
func (c *Client) Pages(ctx context.Context, query string) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		for n := 1; c.cfg.MaxPages <= 0 || n <= c.cfg.MaxPages; n++ {
			page, err := c.Page(ctx, query, n)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			if len(page.Matches) < PageSize {
				return
			}
		}
	}
}

// Discover runs a search and returns the matching hosts in order of first
// appearance. A later match for the same address replaces its metadata.
func (c *Client) Discover(ctx context.Context, query string) ([]model.Host, error) {
	if query == "" {
		query = DefaultQuery
	}
	log.Printf("INFO: Performing Shodan search for %q", query)

	var order []string
	hosts := make(map[string]model.Host)
	for page, err := range c.Pages(ctx, query) {
		if err != nil {
			return nil, err
		}
		for _, m := range page.Matches {
			if m.IPStr == "" {
				continue
			}
			if _, seen := hosts[m.IPStr]; !seen {
				order = append(order, m.IPStr)
			}
			hosts[m.IPStr] = model.Host{
				Address:      m.IPStr,
				Country:      m.Location.CountryName,
				Organization: m.Org,
			}
		}
		log.Printf("INFO: Shodan page %d: %d matches (total %d)", page.Number, len(page.Matches), page.Total)
	}

	result := make([]model.Host, 0, len(order))
	for _, addr := range order {
		result = append(result, hosts[addr])
	}
	log.Printf("INFO: Shodan search complete: %d hosts", len(result))
	return result, nil
}

// stripURL drops the request URL, which carries the API key, from
// transport errors
func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
