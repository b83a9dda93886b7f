// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package cymru resolves IP ownership through the Team Cymru IP to ASN
// mapping DNS zones.
package cymru

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"powerdnscout/pkg/model"
	"powerdnscout/pkg/util/ipcodec"
)

const (
	OriginZone  = "origin.asn.cymru.com"
	Origin6Zone = "origin6.asn.cymru.com"
	ASNZone     = "asn.cymru.com"

	defaultNameserver = "1.1.1.1:53"
	defaultTimeout    = 5 * time.Second
)

// Client queries the Cymru DNS zones through a recursive nameserver
type Client struct {
	nameserver string
	udp        *dns.Client
	tcp        *dns.Client
}

// NewClient creates a client using nameserver ("host:port"). An empty
// nameserver selects the first one from /etc/resolv.conf.
func NewClient(nameserver string, timeout time.Duration) *Client {
	if nameserver == "" {
		nameserver = SystemNameserver()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		nameserver: nameserver,
		udp:        &dns.Client{Net: "udp", Timeout: timeout},
		tcp:        &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

// SystemNameserver returns the first nameserver from /etc/resolv.conf
func SystemNameserver() string {
	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(cfg.Servers) == 0 {
		return defaultNameserver
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port)
}

// Lookup returns the origin ASN, announced prefix and AS name of an address.
// Failing to resolve the AS name is not an error.
func (c *Client) Lookup(ctx context.Context, address string) (*model.OwnershipLookup, error) {
	addr, err := ipcodec.ParseIP(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidIP, err)
	}

	txts, err := c.queryTXT(ctx, ipcodec.ReverseName(addr, OriginZone, Origin6Zone))
	if err != nil {
		return nil, fmt.Errorf("origin lookup for %s: %w", address, err)
	}

	lookup, err := ParseOrigin(txts[0])
	if err != nil {
		return nil, err
	}

	names, err := c.queryTXT(ctx, fmt.Sprintf("AS%d.%s.", lookup.ASN, ASNZone))
	if err != nil {
		log.Printf("WARN: AS name lookup failed for AS%d: %v", lookup.ASN, err)
		return lookup, nil
	}
	lookup.OwnerName = ParseASName(names[0])

	return lookup, nil
}

// queryTXT returns the TXT strings answered for name
func (c *Client) queryTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	r, _, err := c.udp.ExchangeContext(ctx, msg, c.nameserver)
	if err == nil && r.Truncated {
		r, _, err = c.tcp.ExchangeContext(ctx, msg, c.nameserver)
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	switch r.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, model.ErrNotFound
	default:
		return nil, fmt.Errorf("query for %s returned %s", name, dns.RcodeToString[r.Rcode])
	}

	var txts []string
	for _, rr := range r.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			txts = append(txts, strings.Join(txt.Txt, ""))
		}
	}
	if len(txts) == 0 {
		return nil, model.ErrNotFound
	}
	return txts, nil
}

// ParseOrigin parses an origin answer such as
// "15169 | 8.8.8.0/24 | US | arin | 2023-12-28". When several origin ASNs
// are listed the first one is used.
func ParseOrigin(txt string) (*model.OwnershipLookup, error) {
	fields := splitFields(txt)
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed origin answer %q", txt)
	}

	asns := strings.Fields(fields[0])
	if len(asns) == 0 {
		return nil, fmt.Errorf("malformed origin answer %q", txt)
	}
	asn, err := strconv.Atoi(asns[0])
	if err != nil {
		return nil, fmt.Errorf("invalid ASN in origin answer %q: %w", txt, err)
	}

	prefix, err := ipcodec.NormalizePrefix(fields[1])
	if err != nil {
		return nil, fmt.Errorf("invalid prefix in origin answer %q: %w", txt, err)
	}

	return &model.OwnershipLookup{ASN: asn, Prefix: prefix}, nil
}

// ParseASName extracts the owner from an AS answer such as
// "15169 | US | arin | 2000-03-30 | GOOGLE - Google LLC, US"
func ParseASName(txt string) string {
	fields := splitFields(txt)
	if len(fields) < 5 {
		return ""
	}
	return fields[len(fields)-1]
}

func splitFields(txt string) []string {
	parts := strings.Split(txt, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
