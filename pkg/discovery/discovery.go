// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package discovery produces the candidate resolver hosts for a run.
package discovery

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"powerdnscout/pkg/model"
	"powerdnscout/pkg/sources/shodan"
)

// Source yields candidate hosts
type Source interface {
	Discover(ctx context.Context) ([]model.Host, error)
}

// Search discovers hosts through a Shodan query
type Search struct {
	Client *shodan.Client
	Query  string
}

func (s Search) Discover(ctx context.Context) ([]model.Host, error) {
	hosts, err := s.Client.Discover(ctx, s.Query)
	if err != nil {
		return nil, fmt.Errorf("shodan discovery: %w", err)
	}
	return hosts, nil
}

// File reads hosts from a local file, one "address[,country[,org]]" per
// line. Lines starting with # are comments.
type File struct {
	Path string
}

func (f File) Discover(_ context.Context) ([]model.Host, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hosts file: %w", err)
	}
	defer file.Close()

	hosts, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	log.Printf("INFO: Loaded %d hosts from %s", len(hosts), f.Path)
	return hosts, nil
}

// Parse reads a hosts list. Fields may be quoted when they contain commas.
func Parse(r io.Reader) ([]model.Host, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var hosts []model.Host
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid hosts list: %w", err)
		}

		if len(record) > 3 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected at most 3 fields, got %d", line, len(record))
		}

		host := model.Host{Address: strings.TrimSpace(record[0])}
		if host.Address == "" {
			continue
		}
		if len(record) > 1 {
			host.Country = strings.TrimSpace(record[1])
		}
		if len(record) > 2 {
			host.Organization = strings.TrimSpace(record[2])
		}
		hosts = append(hosts, host)
	}

	return hosts, nil
}
