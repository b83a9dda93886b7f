// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package shodan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerdnscout/pkg/metrics"
	"powerdnscout/pkg/model"
	"powerdnscout/pkg/util/workers"
)

var fastRetry = workers.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

func match(ip, country, org string) Match {
	m := Match{IPStr: ip, Org: org}
	m.Location.CountryName = country
	return m
}

// pagesServer serves pages[n-1] for page=n and counts requests
func pagesServer(t *testing.T, pages [][]Match) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/shodan/host/search", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, DefaultQuery, r.URL.Query().Get("query"))

		n, err := strconv.Atoi(r.URL.Query().Get("page"))
		require.NoError(t, err)
		var matches []Match
		if n >= 1 && n <= len(pages) {
			matches = pages[n-1]
		}
		json.NewEncoder(w).Encode(Page{Total: 1000, Matches: matches})
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func fullPage(start int) []Match {
	matches := make([]Match, PageSize)
	for i := range matches {
		matches[i] = match(fmt.Sprintf("10.0.%d.%d", (start+i)/256, (start+i)%256), "Germany", "Example")
	}
	return matches
}

func TestDiscover(t *testing.T) {
	second := []Match{
		match("192.0.2.1", "France", "First Org"),
		match("10.0.0.0", "Netherlands", "Updated Org"),
		{IPStr: ""},
	}
	server, requests := pagesServer(t, [][]Match{fullPage(0), second})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Retry: fastRetry}, m)

	hosts, err := client.Discover(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, int32(2), requests.Load())
	assert.Len(t, hosts, PageSize+1)
	assert.Equal(t, model.Host{Address: "10.0.0.0", Country: "Netherlands", Organization: "Updated Org"}, hosts[0])
	assert.Equal(t, model.Host{Address: "192.0.2.1", Country: "France", Organization: "First Org"}, hosts[PageSize])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DiscoveryPages))
}

func TestPagesMaxPages(t *testing.T) {
	server, requests := pagesServer(t, [][]Match{fullPage(0), fullPage(100), fullPage(200)})
	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, MaxPages: 2, Retry: fastRetry}, nil)

	var numbers []int
	for page, err := range client.Pages(context.Background(), DefaultQuery) {
		require.NoError(t, err)
		numbers = append(numbers, page.Number)
	}

	assert.Equal(t, []int{1, 2}, numbers)
	assert.Equal(t, int32(2), requests.Load())
}

func TestPagesRestartable(t *testing.T) {
	server, requests := pagesServer(t, [][]Match{fullPage(0), fullPage(100)})
	client := NewClient(Config{APIKey: "test-key", BaseURL: server.URL, Retry: fastRetry}, nil)
	seq := client.Pages(context.Background(), DefaultQuery)

	for page, err := range seq {
		require.NoError(t, err)
		assert.Equal(t, 1, page.Number)
		break
	}
	assert.Equal(t, int32(1), requests.Load())

	var count int
	for _, err := range seq {
		require.NoError(t, err)
		count++
	}
	// two full pages and the empty third page
	assert.Equal(t, 3, count)
	assert.Equal(t, int32(4), requests.Load())
}

func TestPageRetriesTransientFailures(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Page{Matches: []Match{match("192.0.2.9", "", "")}})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Retry: fastRetry}, nil)
	page, err := client.Page(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, page.Matches, 1)
	assert.Equal(t, int32(2), requests.Load())
}

func TestDiscoverErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantErr      error
		wantRequests int32
	}{
		{"unauthorized is not retried", http.StatusUnauthorized, ErrUnauthorized, 1},
		{"rate limited", http.StatusTooManyRequests, model.ErrRateLimited, 3},
		{"server error", http.StatusInternalServerError, model.ErrBadStatus, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				requests.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "k", BaseURL: server.URL, Retry: fastRetry}, nil)
			hosts, err := client.Discover(context.Background(), "q")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, hosts)
			assert.Equal(t, tt.wantRequests, requests.Load())
		})
	}
}

func TestPageErrorsOmitAPIKey(t *testing.T) {
	const key = "SECRET-API-KEY-1234"

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := "http://" + ln.Addr().String()
	ln.Close()

	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	client := NewClient(Config{APIKey: key, BaseURL: closed, Retry: fastRetry}, nil)
	_, err = client.Discover(context.Background(), "q")
	require.Error(t, err)

	assert.NotContains(t, err.Error(), key)
	assert.NotContains(t, logs.String(), key)
	assert.Contains(t, logs.String(), "Shodan page 1 failed")
}
