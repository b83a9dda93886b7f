// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package ownership resolves client addresses to network ownership
// (autonomous system number and owner name) and fans lookups out over
// address sets.
package ownership

import (
	"context"
	"errors"
	"fmt"

	"powerdnscout/pkg/model"
)

// Resolver performs a single ownership lookup for one address. Failures
// are returned as errors; callers treat them as "no ownership data".
type Resolver interface {
	Lookup(ctx context.Context, address string) (*model.OwnershipLookup, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(ctx context.Context, address string) (*model.OwnershipLookup, error)

func (f ResolverFunc) Lookup(ctx context.Context, address string) (*model.OwnershipLookup, error) {
	return f(ctx, address)
}

// Chain tries resolvers in order and returns the first successful answer
type Chain []Resolver

func (c Chain) Lookup(ctx context.Context, address string) (*model.OwnershipLookup, error) {
	if len(c) == 0 {
		return nil, fmt.Errorf("no ownership resolvers configured")
	}

	var errs []error
	for _, r := range c {
		lookup, err := r.Lookup(ctx, address)
		if err == nil && lookup != nil {
			return lookup, nil
		}
		if err == nil {
			err = model.ErrNotFound
		}
		if ctx.Err() != nil {
			return nil, err
		}
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("all resolvers failed for %s: %w", address, errors.Join(errs...))
}
