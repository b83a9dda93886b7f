// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ownership

import (
	"context"
	"errors"
	"log"
	"time"

	"powerdnscout/pkg/model"
	"powerdnscout/pkg/ownercache"
)

// Cached wraps a resolver with a persistent cache. Only successful answers
// are cached.
type Cached struct {
	resolver Resolver
	db       *ownercache.DB
	ttl      time.Duration
	now      func() time.Time
}

// NewCached creates a new cached resolver
func NewCached(resolver Resolver, db *ownercache.DB, ttl time.Duration) *Cached {
	return &Cached{
		resolver: resolver,
		db:       db,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Lookup returns a cached answer when it is still fresh, and otherwise asks
// the wrapped resolver. An expired answer is served if the upstream is
// rate limiting us.
func (c *Cached) Lookup(ctx context.Context, address string) (*model.OwnershipLookup, error) {
	cached, err := c.db.Get(address)
	if err != nil {
		log.Printf("WARN: Cache read failed for %s: %v", address, err)
		cached = nil
	}
	if cached != nil && c.now().Sub(cached.FetchedAt) < c.ttl {
		return cached.Lookup(), nil
	}

	lookup, err := c.resolver.Lookup(ctx, address)
	if err != nil {
		if errors.Is(err, model.ErrRateLimited) && cached != nil {
			log.Printf("WARN: Rate limited, using expired cache for %s", address)
			return cached.Lookup(), nil
		}
		return nil, err
	}

	entry := &ownercache.Entry{
		ASN:       lookup.ASN,
		OwnerName: lookup.OwnerName,
		FetchedAt: c.now(),
	}
	if err := c.db.Put(address, entry); err != nil {
		log.Printf("WARN: Failed to cache ownership for %s: %v", address, err)
	}

	return lookup, nil
}
