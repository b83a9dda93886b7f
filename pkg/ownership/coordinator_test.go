// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ownership

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerdnscout/pkg/metrics"
	"powerdnscout/pkg/model"
)

// stubResolver answers from a fixed table; unknown addresses fail
type stubResolver struct {
	answers map[string]*model.OwnershipLookup
	calls   atomic.Int32
}

func (s *stubResolver) Lookup(ctx context.Context, address string) (*model.OwnershipLookup, error) {
	s.calls.Add(1)
	if l, ok := s.answers[address]; ok {
		return l, nil
	}
	return nil, fmt.Errorf("lookup %s: %w", address, model.ErrNotFound)
}

func TestEnrichKeepsSuccessesAndDropsPrefix(t *testing.T) {
	resolver := &stubResolver{answers: map[string]*model.OwnershipLookup{
		"192.0.2.1":    {ASN: 64500, OwnerName: "EXAMPLE-NET", Prefix: "192.0.2.0/24"},
		"198.51.100.7": {ASN: 64501, OwnerName: "OTHER-NET", Prefix: "198.51.100.0/24"},
	}}
	coord := NewCoordinator(resolver, Config{}, nil)

	records := coord.Enrich(context.Background(), []string{"192.0.2.1", "198.51.100.7", "203.0.113.9"})

	require.Len(t, records, 2)
	assert.Equal(t, &model.OwnershipRecord{ASN: 64500, OwnerName: "EXAMPLE-NET"}, records["192.0.2.1"])
	assert.Equal(t, &model.OwnershipRecord{ASN: 64501, OwnerName: "OTHER-NET"}, records["198.51.100.7"])
	assert.NotContains(t, records, "203.0.113.9")
}

func TestOutcomesOnePerDistinctAddress(t *testing.T) {
	resolver := &stubResolver{answers: map[string]*model.OwnershipLookup{
		"192.0.2.1": {ASN: 64500},
	}}
	coord := NewCoordinator(resolver, Config{MaxInFlight: 2}, nil)

	outcomes := coord.Outcomes(context.Background(), []string{"192.0.2.1", "192.0.2.2", "192.0.2.1"})

	require.Len(t, outcomes, 2)
	assert.Equal(t, "192.0.2.1", outcomes[0].Address)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, "192.0.2.2", outcomes[1].Address)
	assert.ErrorIs(t, outcomes[1].Err, model.ErrNotFound)
	assert.Nil(t, outcomes[1].Record)
	assert.EqualValues(t, 2, resolver.calls.Load(), "one attempt per address, no retries")
}

func TestEnrichBoundsHungLookups(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	// Ignores its context entirely for one address
	resolver := ResolverFunc(func(ctx context.Context, address string) (*model.OwnershipLookup, error) {
		if address == "192.0.2.66" {
			<-block
		}
		return &model.OwnershipLookup{ASN: 64500, OwnerName: "FAST"}, nil
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	coord := NewCoordinator(resolver, Config{Timeout: 50 * time.Millisecond}, m)

	start := time.Now()
	outcomes := coord.Outcomes(context.Background(), []string{"192.0.2.1", "192.0.2.66", "192.0.2.2"})
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.ErrorIs(t, outcomes[1].Err, model.ErrLookupTimeout)
	assert.NoError(t, outcomes[2].Err)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Lookups.WithLabelValues(metrics.OK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues(metrics.Timeout)))
}

func TestEnrichBoundsInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	resolver := ResolverFunc(func(ctx context.Context, address string) (*model.OwnershipLookup, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return &model.OwnershipLookup{ASN: 1}, nil
	})

	var addrs []string
	for i := 0; i < 100; i++ {
		addrs = append(addrs, fmt.Sprintf("10.0.0.%d", i))
	}

	coord := NewCoordinator(resolver, Config{MaxInFlight: 5}, nil)
	records := coord.Enrich(context.Background(), addrs)

	assert.Len(t, records, 100)
	assert.LessOrEqual(t, peak.Load(), int32(5))
}

func TestEnrichBoundsInFlightWithAbandonedLookups(t *testing.T) {
	release := make(chan struct{})
	var running, peak atomic.Int32

	// Ignores its context, so timed out calls keep running
	resolver := ResolverFunc(func(ctx context.Context, address string) (*model.OwnershipLookup, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		return &model.OwnershipLookup{ASN: 1}, nil
	})

	var addrs []string
	for i := 0; i < 40; i++ {
		addrs = append(addrs, fmt.Sprintf("10.1.0.%d", i))
	}

	coord := NewCoordinator(resolver, Config{MaxInFlight: 2, Timeout: 20 * time.Millisecond}, nil)
	outcomes := coord.Outcomes(context.Background(), addrs)

	require.Len(t, outcomes, 40)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, model.ErrLookupTimeout)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.LessOrEqual(t, running.Load(), int32(2))

	close(release)
	require.Eventually(t, func() bool { return running.Load() == 0 }, time.Second, 5*time.Millisecond)

	// Released slots are usable again
	records := coord.Enrich(context.Background(), []string{"10.1.1.1"})
	assert.Len(t, records, 1)
}

func TestEnrichEmpty(t *testing.T) {
	coord := NewCoordinator(&stubResolver{}, Config{}, nil)
	assert.Empty(t, coord.Enrich(context.Background(), nil))
}

func TestEnrichCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolver := &stubResolver{answers: map[string]*model.OwnershipLookup{"192.0.2.1": {ASN: 1}}}
	outcomes := NewCoordinator(resolver, Config{}, nil).Outcomes(ctx, []string{"192.0.2.1"})

	require.Len(t, outcomes, 1)
	assert.True(t, errors.Is(outcomes[0].Err, context.Canceled))
}
