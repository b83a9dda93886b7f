// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package rdap resolves IP ownership from RDAP IP network objects.
package rdap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"powerdnscout/pkg/model"
	"powerdnscout/pkg/util/ipcodec"
)

const (
	DefaultBaseURL = "https://rdap.arin.net/registry"
	defaultTimeout = 10 * time.Second
	maxBodySize    = 4 << 20
)

// Client is an RDAP client
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewClient creates a new RDAP client. Registries redirect queries for
// space they do not manage, so redirects are followed.
func NewClient(baseURL, userAgent string, rateLimit float64) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), int(rateLimit)+1)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    limiter,
		userAgent:  userAgent,
	}
}

// QueryIP fetches the IP network object that contains ip
func (c *Client) QueryIP(ctx context.Context, ip netip.Addr) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ip/"+ip.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/rdap+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		log.Printf("WARN: Rate limited by RDAP server for %s", ip)
		return nil, model.ErrRateLimited
	case http.StatusNotFound:
		return nil, model.ErrNotFound
	default:
		return nil, fmt.Errorf("%w %d from RDAP server", model.ErrBadStatus, resp.StatusCode)
	}

	var response Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to parse RDAP response: %w", err)
	}

	return &response, nil
}

// Lookup resolves the owner, origin ASN and network of an address. The
// ASN is only known when the registry publishes origin AS data.
func (c *Client) Lookup(ctx context.Context, address string) (*model.OwnershipLookup, error) {
	ip, err := ipcodec.ParseIP(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidIP, err)
	}

	response, err := c.QueryIP(ctx, ip)
	if err != nil {
		return nil, err
	}

	owner, err := OwnerName(response)
	if err != nil {
		return nil, fmt.Errorf("RDAP lookup for %s: %w", address, err)
	}

	lookup := &model.OwnershipLookup{OwnerName: owner}
	if len(response.OriginAutnums) > 0 {
		lookup.ASN = response.OriginAutnums[0]
	}
	if prefix, ok := response.Prefix(); ok {
		lookup.Prefix = prefix.String()
	}

	return lookup, nil
}

// Response represents an RDAP IP network response
type Response struct {
	ObjectClassName string   `json:"objectClassName"`
	Handle          string   `json:"handle"`
	StartAddress    string   `json:"startAddress"`
	EndAddress      string   `json:"endAddress"`
	Name            string   `json:"name"`
	Country         string   `json:"country"`
	Status          []string `json:"status"`
	Entities        []Entity `json:"entities"`
	Remarks         []Remark `json:"remarks"`
	Port43          string   `json:"port43"`

	// ARIN origin AS extension
	OriginAutnums []int `json:"arin_originas0_originautnums"`
}

// Prefix returns the network range as a single prefix, when it is one
func (r *Response) Prefix() (netip.Prefix, bool) {
	start, err1 := netip.ParseAddr(r.StartAddress)
	end, err2 := netip.ParseAddr(r.EndAddress)
	if err1 != nil || err2 != nil {
		return netip.Prefix{}, false
	}
	prefix, err := ipcodec.RangeToPrefix(start, end)
	if err != nil {
		return netip.Prefix{}, false
	}
	return prefix, true
}

// Entity represents an RDAP entity
type Entity struct {
	Handle     string   `json:"handle"`
	Roles      []string `json:"roles"`
	VCardArray []any    `json:"vcardArray"`
	Entities   []Entity `json:"entities"`
}

// Remark represents an RDAP remark
type Remark struct {
	Title       string   `json:"title"`
	Description []string `json:"description"`
}

// EntityName extracts a name from an entity's vCard
func EntityName(entity *Entity) string {
	if len(entity.VCardArray) < 2 {
		return ""
	}

	// ["vcard", [["version", {}, "text", "4.0"], ["fn", {}, "text", "Name"], ...]]
	vcard, ok := entity.VCardArray[1].([]any)
	if !ok {
		return ""
	}

	for _, field := range vcard {
		parts, ok := field.([]any)
		if !ok || len(parts) < 4 {
			continue
		}
		name, ok := parts[0].(string)
		if !ok || (name != "fn" && name != "org") {
			continue
		}
		if value, ok := parts[3].(string); ok && value != "" {
			return value
		}
	}

	return ""
}
