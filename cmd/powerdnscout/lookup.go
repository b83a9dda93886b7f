// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"powerdnscout/pkg/ownership"
)

// lookupResult is the JSON shape printed per address
type lookupResult struct {
	IP        string `json:"ip"`
	ASN       int    `json:"asn,omitempty"`
	OwnerName string `json:"owner_name,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newLookupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup ip-address...",
		Short: "resolve the network ownership of addresses with the configured resolvers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			if err := cfg.Validate(false); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			resolver, closers, err := buildResolver(cfg)
			if err != nil {
				return err
			}
			defer closeAll(closers)

			coordinator := ownership.NewCoordinator(resolver, ownership.Config{
				Timeout:     cfg.Enrichment.Timeout,
				MaxInFlight: cfg.Enrichment.MaxInFlight,
				RateLimit:   cfg.Enrichment.RateLimit,
			}, nil)

			return printOutcomes(cmd.OutOrStdout(), coordinator.Outcomes(cmd.Context(), args))
		},
	}
}

func printOutcomes(w io.Writer, outcomes []ownership.Outcome) error {
	results := make([]lookupResult, 0, len(outcomes))
	for _, o := range outcomes {
		r := lookupResult{IP: o.Address}
		if o.Err != nil {
			r.Error = o.Err.Error()
		} else {
			r.ASN = o.Record.ASN
			r.OwnerName = o.Record.OwnerName
		}
		results = append(results, r)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
