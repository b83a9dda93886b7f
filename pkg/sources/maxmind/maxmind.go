// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package maxmind resolves IP ownership from a local GeoLite2/GeoIP2 ASN
// database.
package maxmind

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"powerdnscout/pkg/model"
	"powerdnscout/pkg/util/ipcodec"
)

// Reader answers ownership lookups from an ASN database
type Reader struct {
	asn *geoip2.Reader
}

// Open opens the ASN database at path
func Open(path string) (*Reader, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ASN database: %w", err)
	}
	if t := db.Metadata().DatabaseType; t != "GeoLite2-ASN" && t != "GeoIP2-ASN" {
		db.Close()
		return nil, fmt.Errorf("%s is a %s database, not an ASN database", path, t)
	}
	return &Reader{asn: db}, nil
}

// Close closes the database reader
func (r *Reader) Close() error {
	return r.asn.Close()
}

// Lookup returns the ASN and AS organization of an address. The database
// lookup is local, so ctx is not consulted.
func (r *Reader) Lookup(_ context.Context, address string) (*model.OwnershipLookup, error) {
	ip, err := ipcodec.ParseIP(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidIP, err)
	}

	record, err := r.asn.ASN(net.IP(ip.AsSlice()))
	if err != nil {
		return nil, fmt.Errorf("ASN lookup failed: %w", err)
	}
	return fromRecord(record)
}

// fromRecord converts a database record. Addresses missing from the
// database come back as an empty record.
func fromRecord(record *geoip2.ASN) (*model.OwnershipLookup, error) {
	if record == nil || record.AutonomousSystemNumber == 0 {
		return nil, model.ErrNotFound
	}
	return &model.OwnershipLookup{
		ASN:       int(record.AutonomousSystemNumber),
		OwnerName: record.AutonomousSystemOrganization,
	}, nil
}
