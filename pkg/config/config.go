// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package config loads the powerdnscout configuration file. JSON is valid
// YAML, so the classic config.json layout loads as is.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey overrides the API key from the file when set
const EnvAPIKey = "SHODAN_API_KEY"

// Ownership resolvers that can be listed in enrichment.resolvers
const (
	ResolverCymru   = "cymru"
	ResolverMaxMind = "maxmind"
	ResolverRDAP    = "rdap"
)

// Config is the top-level configuration
type Config struct {
	ShodanAPIKey string       `yaml:"SHODAN_API_KEY"`
	UseSocks     bool         `yaml:"use_socks"`
	SocksProxy   *ProxyConfig `yaml:"socks_proxy"`

	Shodan     ShodanConfig     `yaml:"shodan"`
	Harvest    HarvestConfig    `yaml:"harvest"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Report     ReportConfig     `yaml:"report"`
}

// ProxyConfig is a SOCKS5 proxy endpoint
type ProxyConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ShodanConfig controls host discovery
type ShodanConfig struct {
	Query     string  `yaml:"query"`
	MaxPages  int     `yaml:"max_pages"` // 0 = no cap
	RateLimit float64 `yaml:"rate_limit"`
	BaseURL   string  `yaml:"base_url"`
}

// HarvestConfig controls statistics page retrieval
type HarvestConfig struct {
	Port      int           `yaml:"port"`
	Timeout   time.Duration `yaml:"timeout"`
	Workers   int           `yaml:"workers"`
	UserAgent string        `yaml:"user_agent"`
}

// EnrichmentConfig controls client ownership lookups
type EnrichmentConfig struct {
	Resolvers     []string      `yaml:"resolvers"` // tried in order
	Timeout       time.Duration `yaml:"timeout"`
	MaxInFlight   int           `yaml:"max_in_flight"`
	RateLimit     float64       `yaml:"rate_limit"`      // lookups started per second, all resolvers
	Nameserver    string        `yaml:"nameserver"`      // cymru, "host:port"
	MMDBASN       string        `yaml:"mmdb_asn"`        // maxmind
	RDAPURL       string        `yaml:"rdap_url"`        // rdap
	RDAPRateLimit float64       `yaml:"rdap_rate_limit"` // rdap requests per second, 0 = no limit
	CacheDB       string        `yaml:"cache_db"`        // empty disables the cache
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// ReportConfig controls report output
type ReportConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a configuration file and applies defaults and the
// environment override
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.ShodanAPIKey = key
	}
	if c.Shodan.Query == "" {
		c.Shodan.Query = "PowerDNS Authoritative Server Monitor"
	}
	if c.Harvest.Port <= 0 {
		c.Harvest.Port = 8081
	}
	if c.Harvest.Timeout <= 0 {
		c.Harvest.Timeout = 5 * time.Second
	}
	if c.Harvest.Workers <= 0 {
		c.Harvest.Workers = 4
	}
	if c.Harvest.UserAgent == "" {
		c.Harvest.UserAgent = "powerdnscout/1.0"
	}
	if len(c.Enrichment.Resolvers) == 0 {
		c.Enrichment.Resolvers = []string{ResolverCymru}
	}
	if c.Enrichment.Timeout <= 0 {
		c.Enrichment.Timeout = 5 * time.Second
	}
	if c.Enrichment.MaxInFlight <= 0 {
		c.Enrichment.MaxInFlight = 64
	}
	if c.Enrichment.CacheTTL <= 0 {
		c.Enrichment.CacheTTL = 7 * 24 * time.Hour
	}
	if c.Report.Dir == "" {
		c.Report.Dir = "logs"
	}
}

// Proxy returns the SOCKS5 proxy to use, or nil for direct connections
func (c *Config) Proxy() *ProxyConfig {
	if !c.UseSocks {
		return nil
	}
	return c.SocksProxy
}

// Validate checks the configuration for a run. The API key is only needed
// when hosts are discovered through Shodan.
func (c *Config) Validate(needAPIKey bool) error {
	var errs []error

	if needAPIKey && c.ShodanAPIKey == "" {
		errs = append(errs, fmt.Errorf("SHODAN_API_KEY is required"))
	}
	if c.UseSocks {
		if c.SocksProxy == nil || c.SocksProxy.Host == "" {
			errs = append(errs, fmt.Errorf("use_socks requires socks_proxy.host"))
		} else if c.SocksProxy.Port <= 0 || c.SocksProxy.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid socks_proxy.port %d", c.SocksProxy.Port))
		}
	}
	if c.Harvest.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid harvest.port %d", c.Harvest.Port))
	}
	for _, r := range c.Enrichment.Resolvers {
		if !slices.Contains([]string{ResolverCymru, ResolverMaxMind, ResolverRDAP}, r) {
			errs = append(errs, fmt.Errorf("unknown resolver %q", r))
		}
	}
	if slices.Contains(c.Enrichment.Resolvers, ResolverMaxMind) && c.Enrichment.MMDBASN == "" {
		errs = append(errs, fmt.Errorf("resolver %q requires enrichment.mmdb_asn", ResolverMaxMind))
	}

	return errors.Join(errs...)
}
