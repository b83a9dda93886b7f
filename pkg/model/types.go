// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package model

import (
	"encoding/json"
	"fmt"
)

// Statistics views exposed by a PowerDNS monitoring endpoint
const (
	ViewQueries = "unauth-queries"
	ViewClients = "remotes"
)

// Host is a candidate resolver host as supplied by discovery
type Host struct {
	Address      string
	Country      string
	Organization string
}

// HostRecord holds everything harvested from a single resolver host.
// Queries and Clients are independently optional: nil means the view
// could not be fetched.
type HostRecord struct {
	Address      string                  `json:"-"`
	Country      string                  `json:"country"`
	Organization string                  `json:"org"`
	Queries      *LabelAggregate         `json:"dns_queries,omitempty"`
	Clients      map[string]*ClientEntry `json:"remotes,omitempty"`
}

// NewHostRecord creates an empty record for a discovered host
func NewHostRecord(h Host) *HostRecord {
	return &HostRecord{
		Address:      h.Address,
		Country:      h.Country,
		Organization: h.Organization,
	}
}

// Entry is a single parsed table entry. A scalar entry only carries Count;
// a compound entry also carries the qualifiers seen for its primary key.
type Entry struct {
	Count    int64
	Subtypes []string
	Compound bool
}

// MarshalJSON renders scalar entries as a bare number and compound entries
// as {"count": n, "query_type": [...]}
func (e *Entry) MarshalJSON() ([]byte, error) {
	if !e.Compound {
		return json.Marshal(e.Count)
	}
	subtypes := e.Subtypes
	if subtypes == nil {
		subtypes = []string{}
	}
	return json.Marshal(struct {
		Count    int64    `json:"count"`
		Subtypes []string `json:"query_type"`
	}{e.Count, subtypes})
}

// UnmarshalJSON accepts both shapes produced by MarshalJSON
func (e *Entry) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*e = Entry{Count: n}
		return nil
	}
	var c struct {
		Count    int64    `json:"count"`
		Subtypes []string `json:"query_type"`
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}
	*e = Entry{Count: c.Count, Subtypes: c.Subtypes, Compound: true}
	return nil
}

// LabelAggregate is the typed result of parsing one statistics table
type LabelAggregate struct {
	Entries map[string]*Entry
	Dropped int // rows skipped by the parser, not serialized
}

// NewLabelAggregate returns an empty aggregate
func NewLabelAggregate() *LabelAggregate {
	return &LabelAggregate{Entries: make(map[string]*Entry)}
}

// Len returns the number of distinct keys
func (a *LabelAggregate) Len() int {
	return len(a.Entries)
}

// Get returns the entry for key, or nil
func (a *LabelAggregate) Get(key string) *Entry {
	return a.Entries[key]
}

func (a *LabelAggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Entries)
}

func (a *LabelAggregate) UnmarshalJSON(data []byte) error {
	entries := make(map[string]*Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	a.Entries = entries
	return nil
}

// ClientEntry is one distinct client address seen in a host's client view
type ClientEntry struct {
	Count     int64            `json:"count"`
	Ownership *OwnershipRecord `json:"whois,omitempty"`
}

// OwnershipRecord is the network ownership attached to a client address
type OwnershipRecord struct {
	ASN       int    `json:"asn,omitempty"`        // 0 when unknown
	OwnerName string `json:"owner_name,omitempty"` // AS or organization name
}

// OwnershipLookup is the raw answer of an ownership lookup service.
// Prefix is never carried into the report.
type OwnershipLookup struct {
	ASN       int
	OwnerName string
	Prefix    string // announced prefix (CIDR notation), if known
}

// Record drops the lookup fields that are not reported
func (l *OwnershipLookup) Record() *OwnershipRecord {
	if l == nil {
		return nil
	}
	return &OwnershipRecord{ASN: l.ASN, OwnerName: l.OwnerName}
}

// Report is the merged result of a pipeline run
type Report struct {
	Hosts      map[string]*HostRecord `json:"hosts"`
	Correlated map[string][]string    `json:"correlated"`
	Order      []string               `json:"-"` // host addresses in discovery order
}

// Error types
type Error string

const (
	ErrNotFound       Error = "address not found"
	ErrInvalidIP      Error = "invalid IP address"
	ErrDatabaseClosed Error = "database is closed"
	ErrRateLimited    Error = "rate limited by upstream service"
	ErrLookupTimeout  Error = "ownership lookup timed out"
	ErrNoHosts        Error = "no candidate hosts"
	ErrNoTable        Error = "no table found in page"
	ErrBadStatus      Error = "unexpected HTTP status"
)

func (e Error) Error() string {
	return string(e)
}
