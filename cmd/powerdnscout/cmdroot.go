// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

// options holds the command line flags
type options struct {
	configPath  string
	jsonOutput  bool
	outputDir   string
	hostsFile   string
	workers     int
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "powerdnscout [flags]",
		Short:        "powerdnscout gathers DNS query and client statistics from open PowerDNS resolvers",
		Version:      version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if opts.workers < 0 || opts.workers > 256 {
				return fmt.Errorf("--workers out of range [0..256]")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return scout(cmd.Context(), opts, cmd.Flags().Changed("config"))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "config.json", "configuration file (JSON or YAML)")
	rootCmd.Flags().BoolVarP(&opts.jsonOutput, "json", "j", false, "write the report as JSON")
	rootCmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "report directory (overrides report.dir)")
	rootCmd.Flags().StringVar(&opts.hostsFile, "hosts-file", "", "read candidate hosts from a file instead of searching Shodan")
	rootCmd.Flags().IntVar(&opts.workers, "workers", 0, "hosts harvested concurrently (overrides harvest.workers)")
	rootCmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(newLookupCmd(opts))
	return rootCmd
}
