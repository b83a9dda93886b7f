// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package ipcodec

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

const (
	// Key prefix for LevelDB cache entries
	PrefixCache = "cache:"
)

// CacheKey creates a cache key
func CacheKey(category, key string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", PrefixCache, category, key))
}

// ParseIP parses an IP address string, unmapping IPv4-in-IPv6 addresses
func ParseIP(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid IP address: %w", err)
	}
	return addr.Unmap(), nil
}

// ReverseName builds a reverse-lookup style DNS name for an address below
// the given zones: dotted reversed octets for IPv4 under zone4, reversed
// nibbles for IPv6 under zone6. The result is fully qualified.
//
//	ReverseName(8.8.4.4, "origin.asn.cymru.com", ...) = "4.4.8.8.origin.asn.cymru.com."
func ReverseName(addr netip.Addr, zone4, zone6 string) string {
	var sb strings.Builder
	if addr.Is4() {
		b := addr.As4()
		for i := len(b) - 1; i >= 0; i-- {
			sb.WriteString(strconv.Itoa(int(b[i])))
			sb.WriteByte('.')
		}
		sb.WriteString(strings.TrimSuffix(zone4, "."))
	} else {
		const hex = "0123456789abcdef"
		b := addr.As16()
		for i := len(b) - 1; i >= 0; i-- {
			sb.WriteByte(hex[b[i]&0x0f])
			sb.WriteByte('.')
			sb.WriteByte(hex[b[i]>>4])
			sb.WriteByte('.')
		}
		sb.WriteString(strings.TrimSuffix(zone6, "."))
	}
	sb.WriteByte('.')
	return sb.String()
}

// NormalizePrefix normalizes a CIDR prefix string
func NormalizePrefix(cidr string) (string, error) {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return "", err
	}
	return prefix.Masked().String(), nil
}

// RangeToPrefix returns the prefix that covers exactly [start, end]
func RangeToPrefix(start, end netip.Addr) (netip.Prefix, error) {
	if !start.IsValid() || !end.IsValid() || start.Is4() != end.Is4() {
		return netip.Prefix{}, fmt.Errorf("invalid range %s - %s", start, end)
	}

	for bits := 0; bits <= start.BitLen(); bits++ {
		p := netip.PrefixFrom(start, bits).Masked()
		if p.Addr() == start && LastAddr(p) == end {
			return p, nil
		}
	}
	return netip.Prefix{}, fmt.Errorf("range %s - %s is not a single prefix", start, end)
}

// LastAddr returns the last (broadcast) address in a prefix
func LastAddr(prefix netip.Prefix) netip.Addr {
	prefix = prefix.Masked()
	bits := prefix.Bits()

	b := prefix.Addr().AsSlice()
	hostBits := len(b)*8 - bits
	for i := 0; i < hostBits; i++ {
		bitPos := bits + i
		b[bitPos/8] |= 1 << (7 - bitPos%8)
	}

	last, _ := netip.AddrFromSlice(b)
	return last
}
