// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"powerdnscout/pkg/config"
	"powerdnscout/pkg/discovery"
	"powerdnscout/pkg/harvest"
	"powerdnscout/pkg/metrics"
	"powerdnscout/pkg/ownercache"
	"powerdnscout/pkg/ownership"
	"powerdnscout/pkg/pipeline"
	"powerdnscout/pkg/report"
	"powerdnscout/pkg/sources/cymru"
	"powerdnscout/pkg/sources/maxmind"
	"powerdnscout/pkg/sources/rdap"
	"powerdnscout/pkg/sources/shodan"
)

// scout runs discovery, harvesting and correlation and writes the report
func scout(ctx context.Context, opts *options, explicitConfig bool) error {
	cfg, err := loadConfig(opts.configPath, explicitConfig)
	if err != nil {
		return err
	}
	if opts.outputDir != "" {
		cfg.Report.Dir = opts.outputDir
	}
	if opts.workers > 0 {
		cfg.Harvest.Workers = opts.workers
	}
	if err := cfg.Validate(opts.hostsFile == ""); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if opts.metricsAddr != "" {
		stop := serveMetrics(opts.metricsAddr, reg)
		defer stop()
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
	}, m)

	var transport harvest.Transport
	if p := cfg.Proxy(); p != nil {
		transport.Proxy = &harvest.ProxyConfig{Host: p.Host, Port: p.Port}
	}
	harvester, err := harvest.New(harvest.Config{
		Port:      cfg.Harvest.Port,
		Timeout:   cfg.Harvest.Timeout,
		UserAgent: cfg.Harvest.UserAgent,
		Transport: transport,
	}, coordinator, m)
	if err != nil {
		return err
	}

	hosts, err := newSource(cfg, opts, m).Discover(ctx)
	if err != nil {
		return err
	}

	rep, err := pipeline.New(harvester, cfg.Harvest.Workers).Run(ctx, hosts)
	if err != nil {
		return err
	}

	_, err = report.Write(cfg.Report.Dir, rep, opts.jsonOutput, time.Now())
	return err
}

// loadConfig reads the configuration file. A missing default config.json
// is fine when running from a hosts file.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		log.Printf("WARN: %s not found, using defaults", path)
		return config.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newSource(cfg *config.Config, opts *options, m *metrics.Metrics) discovery.Source {
	if opts.hostsFile != "" {
		return discovery.File{Path: opts.hostsFile}
	}
	client := shodan.NewClient(shodan.Config{
		APIKey:    cfg.ShodanAPIKey,
		BaseURL:   cfg.Shodan.BaseURL,
		MaxPages:  cfg.Shodan.MaxPages,
		RateLimit: cfg.Shodan.RateLimit,
		UserAgent: cfg.Harvest.UserAgent,
	}, m)
	return discovery.Search{Client: client, Query: cfg.Shodan.Query}
}

// buildResolver assembles the configured resolvers into a chain, behind
// the ownership cache when one is configured
func buildResolver(cfg *config.Config) (ownership.Resolver, []io.Closer, error) {
	enr := cfg.Enrichment
	var chain ownership.Chain
	var closers []io.Closer

	for _, name := range enr.Resolvers {
		switch name {
		case config.ResolverCymru:
			chain = append(chain, cymru.NewClient(enr.Nameserver, enr.Timeout))
		case config.ResolverMaxMind:
			reader, err := maxmind.Open(enr.MMDBASN)
			if err != nil {
				closeAll(closers)
				return nil, nil, err
			}
			closers = append(closers, reader)
			chain = append(chain, reader)
		case config.ResolverRDAP:
			chain = append(chain, rdap.NewClient(enr.RDAPURL, cfg.Harvest.UserAgent, enr.RDAPRateLimit))
		default:
			closeAll(closers)
			return nil, nil, fmt.Errorf("unknown resolver %q", name)
		}
	}

	if enr.CacheDB == "" {
		return chain, closers, nil
	}

	db, err := ownercache.Open(enr.CacheDB)
	if err != nil {
		closeAll(closers)
		return nil, nil, err
	}
	if n, err := db.Prune(time.Now().Add(-enr.CacheTTL)); err != nil {
		log.Printf("WARN: Failed to prune ownership cache: %v", err)
	} else if n > 0 {
		log.Printf("INFO: Pruned %d expired ownership cache entries", n)
	}
	closers = append(closers, db)

	return ownership.NewCached(chain, db, enr.CacheTTL), closers, nil
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Printf("WARN: close failed: %v", err)
		}
	}
}

// serveMetrics exposes reg on addr until the returned function is called
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Printf("INFO: Serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("ERROR: Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("WARN: Metrics server shutdown failed: %v", err)
		}
	}
}
