// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ownership

import (
	"context"
	"errors"
	"log"
	"time"

	"powerdnscout/pkg/metrics"
	"powerdnscout/pkg/model"
	"powerdnscout/pkg/util/workers"
)

const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxInFlight = 64
)

// Config contains configuration for the enrichment coordinator
type Config struct {
	Timeout     time.Duration // per lookup
	MaxInFlight int           // concurrent lookups
	RateLimit   float64       // lookups started per second (0 = no limit)
}

// Outcome is the result of enriching a single address
type Outcome struct {
	Address string
	Record  *model.OwnershipRecord
	Err     error
}

// Coordinator fans ownership lookups out over a set of addresses. Each
// address gets exactly one attempt. A resolver call holds its in-flight
// slot until it returns, even after its lookup has timed out.
type Coordinator struct {
	resolver Resolver
	cfg      Config
	metrics  *metrics.Metrics
	slots    chan struct{}
}

// NewCoordinator creates a new enrichment coordinator
func NewCoordinator(resolver Resolver, cfg Config, m *metrics.Metrics) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	return &Coordinator{
		resolver: resolver,
		cfg:      cfg,
		metrics:  m,
		slots:    make(chan struct{}, cfg.MaxInFlight),
	}
}

// Enrich looks up every distinct address and returns the successful
// answers keyed by address. Failed lookups are logged and omitted.
func (c *Coordinator) Enrich(ctx context.Context, addresses []string) map[string]*model.OwnershipRecord {
	records := make(map[string]*model.OwnershipRecord)
	for _, o := range c.Outcomes(ctx, addresses) {
		if o.Err != nil {
			log.Printf("WARN: Could not get ownership for %s: %v", o.Address, o.Err)
			continue
		}
		records[o.Address] = o.Record
	}
	return records
}

// Outcomes runs one lookup per distinct address and reports every result,
// in the order the addresses were first given
func (c *Coordinator) Outcomes(ctx context.Context, addresses []string) []Outcome {
	unique := dedupe(addresses)
	outcomes := make([]Outcome, len(unique))
	if len(unique) == 0 {
		return outcomes
	}

	pool := workers.NewPool(ctx, workers.Config{
		Workers:   c.cfg.MaxInFlight,
		RateLimit: c.cfg.RateLimit,
	})
	defer pool.Stop()

	for i, address := range unique {
		idx := i
		addr := address
		outcomes[idx].Address = addr

		pool.Submit(idx, func(ctx context.Context) error {
			lookup, err := c.lookup(ctx, addr)
			if err != nil {
				outcomes[idx].Err = err
				return err
			}
			outcomes[idx].Record = lookup.Record()
			return nil
		})
	}

	// Tasks that never started (cancelled context) still need an outcome
	for _, r := range pool.Wait() {
		if r.Err != nil && outcomes[r.Index].Err == nil {
			outcomes[r.Index].Err = r.Err
		}
	}

	for _, o := range outcomes {
		switch {
		case o.Err == nil:
			c.metrics.LookupDone(metrics.OK)
		case errors.Is(o.Err, model.ErrLookupTimeout):
			c.metrics.LookupDone(metrics.Timeout)
		default:
			c.metrics.LookupDone(metrics.Failed)
		}
	}

	return outcomes
}

// lookup bounds a single resolver call by the configured timeout. A
// resolver that ignores its context is abandoned once the deadline passes.
func (c *Coordinator) lookup(ctx context.Context, address string) (*model.OwnershipLookup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, model.ErrLookupTimeout
		}
		return nil, ctx.Err()
	}

	type answer struct {
		lookup *model.OwnershipLookup
		err    error
	}
	done := make(chan answer, 1)
	go func() {
		defer func() { <-c.slots }()
		lookup, err := c.resolver.Lookup(ctx, address)
		done <- answer{lookup, err}
	}()

	select {
	case a := <-done:
		if a.err != nil {
			if errors.Is(a.err, context.DeadlineExceeded) {
				return nil, model.ErrLookupTimeout
			}
			return nil, a.err
		}
		if a.lookup == nil {
			return nil, model.ErrNotFound
		}
		return a.lookup, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, model.ErrLookupTimeout
		}
		return nil, ctx.Err()
	}
}

func dedupe(addresses []string) []string {
	seen := make(map[string]bool, len(addresses))
	unique := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if seen[a] {
			continue
		}
		seen[a] = true
		unique = append(unique, a)
	}
	return unique
}
