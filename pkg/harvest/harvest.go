// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package harvest fetches and parses the statistics views of a single
// PowerDNS host.
package harvest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"powerdnscout/pkg/metrics"
	"powerdnscout/pkg/model"
	"powerdnscout/pkg/statspage"
)

const (
	DefaultPort        = 8081
	DefaultTimeout     = 5 * time.Second
	DefaultMaxPageSize = 8 << 20
)

// Config contains the harvester settings
type Config struct {
	Port      int
	Timeout     time.Duration // per view fetch
	MaxPageSize int64         // larger pages fail the view
	UserAgent   string
	Transport   Transport
}

// Transport describes how outgoing connections are made
type Transport struct {
	Proxy *ProxyConfig // nil = direct connections
}

// ProxyConfig is a SOCKS5 proxy endpoint
type ProxyConfig struct {
	Host string
	Port int
}

// Enricher attaches ownership records to client addresses
type Enricher interface {
	Enrich(ctx context.Context, addresses []string) map[string]*model.OwnershipRecord
}

// Harvester collects the query and client views of PowerDNS hosts
type Harvester struct {
	cfg      Config
	client   *http.Client
	enricher Enricher
	metrics  *metrics.Metrics
}

// New creates a harvester. The HTTP transport, including the optional
// SOCKS5 dialer, is built here and shared by every fetch.
func New(cfg Config, enricher Enricher, m *metrics.Metrics) (*Harvester, error) {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = DefaultMaxPageSize
	}

	transport, err := newTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}

	return &Harvester{
		cfg:      cfg,
		client:   &http.Client{Transport: transport},
		enricher: enricher,
		metrics:  m,
	}, nil
}

func newTransport(t Transport) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil

	if t.Proxy == nil {
		return transport, nil
	}

	addr := net.JoinHostPort(t.Proxy.Host, strconv.Itoa(t.Proxy.Port))
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
	}
	transport.DialContext = cd.DialContext
	log.Printf("INFO: Using SOCKS5 proxy: %s", addr)

	return transport, nil
}

// ViewURL returns the statistics page address of a view on host
func (h *Harvester) ViewURL(host, view string) string {
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(host, strconv.Itoa(h.cfg.Port)),
		Path:     "/",
		RawQuery: "ring=" + url.QueryEscape(view),
	}
	return u.String()
}

// Harvest fetches both views of a host concurrently. A view that cannot be
// fetched or parsed is left absent; it never affects the other view.
func (h *Harvester) Harvest(ctx context.Context, host model.Host) *model.HostRecord {
	record := model.NewHostRecord(host)

	var (
		wg      sync.WaitGroup
		queries *model.LabelAggregate
		clients map[string]*model.ClientEntry
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		queries, _ = h.fetchView(ctx, host.Address, model.ViewQueries)
	}()
	go func() {
		defer wg.Done()
		agg, err := h.fetchView(ctx, host.Address, model.ViewClients)
		if err != nil {
			return
		}
		clients = h.enrichClients(ctx, host.Address, agg)
	}()
	wg.Wait()

	record.Queries = queries
	record.Clients = clients
	h.metrics.HostDone()

	return record
}

// fetchView retrieves and parses one view. Failures are logged and counted.
func (h *Harvester) fetchView(ctx context.Context, host, view string) (*model.LabelAggregate, error) {
	target := h.ViewURL(host, view)
	log.Printf("INFO: Fetching %s", target)

	agg, err := h.get(ctx, target)
	switch {
	case err == nil:
		h.metrics.ViewFetched(view, metrics.OK)
	case errors.Is(err, context.DeadlineExceeded):
		h.metrics.ViewFetched(view, metrics.Timeout)
	default:
		h.metrics.ViewFetched(view, metrics.Failed)
	}
	if err != nil {
		log.Printf("WARN: Failed to fetch %s view from %s: %v", view, host, err)
		return nil, err
	}

	h.metrics.Dropped(view, agg.Dropped)
	log.Printf("INFO: %s view from %s: %d entries, %d rows skipped", view, host, agg.Len(), agg.Dropped)
	return agg, nil
}

func (h *Harvester) get(ctx context.Context, target string) (*model.LabelAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w %d", model.ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxPageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read page: %w", err)
	}
	if int64(len(body)) > h.cfg.MaxPageSize {
		return nil, fmt.Errorf("page larger than %d bytes", h.cfg.MaxPageSize)
	}

	return statspage.ParsePage(bytes.NewReader(body))
}

// enrichClients converts the client view into client entries and attaches
// whatever ownership could be resolved
func (h *Harvester) enrichClients(ctx context.Context, host string, agg *model.LabelAggregate) map[string]*model.ClientEntry {
	clients := make(map[string]*model.ClientEntry, agg.Len())
	addresses := make([]string, 0, agg.Len())
	for addr, entry := range agg.Entries {
		clients[addr] = &model.ClientEntry{Count: entry.Count}
		addresses = append(addresses, addr)
	}
	slices.Sort(addresses)

	if h.enricher == nil || len(addresses) == 0 {
		return clients
	}

	records := h.enricher.Enrich(ctx, addresses)
	for addr, rec := range records {
		if entry, ok := clients[addr]; ok {
			entry.Ownership = rec
		}
	}
	log.Printf("INFO: Resolved ownership for %d of %d clients of %s", len(records), len(addresses), host)

	return clients
}
