// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package report persists pipeline reports as JSON or as a text summary.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"powerdnscout/pkg/model"
)

// DefaultDir is where reports are written unless configured otherwise
const DefaultDir = "logs"

// Filename returns the dated report path inside dir
func Filename(dir string, date time.Time, asJSON bool) string {
	ext := "txt"
	if asJSON {
		ext = "json"
	}
	return filepath.Join(dir, fmt.Sprintf("open_powerdns_resolvers_%s.%s", date.Format("20060102"), ext))
}

// Write stores the report under dir and returns the file path
func Write(dir string, r *model.Report, asJSON bool, now time.Time) (string, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	path := Filename(dir, now, asJSON)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}

	if asJSON {
		err = WriteJSON(f, r)
	} else {
		err = WriteText(f, r)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", path, err)
	}

	log.Printf("INFO: Report written to %s", path)
	return path, nil
}

// WriteJSON writes the report as indented JSON
func WriteJSON(w io.Writer, r *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(r)
}

// WriteText writes the human readable summary. Hosts appear in discovery
// order; queries, clients and shared clients are sorted.
func WriteText(w io.Writer, r *model.Report) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "Summary:")
	for _, addr := range hostOrder(r) {
		rec := r.Hosts[addr]
		fmt.Fprintf(bw, "\nIP: %s\n", addr)
		fmt.Fprintf(bw, "Country: %s \nOrg: %s\n\n", rec.Country, rec.Organization)

		fmt.Fprintln(bw, "DNS queries:")
		if rec.Queries != nil {
			for _, key := range slices.Sorted(maps.Keys(rec.Queries.Entries)) {
				writeQuery(bw, key, rec.Queries.Entries[key])
			}
		}

		fmt.Fprintln(bw, "\nRemote clients:")
		for _, client := range slices.Sorted(maps.Keys(rec.Clients)) {
			owner := "N/A"
			if o := rec.Clients[client].Ownership; o != nil && o.OwnerName != "" {
				owner = o.OwnerName
			}
			fmt.Fprintf(bw, "%-15s: %s\n", client, owner)
		}
	}

	fmt.Fprintln(bw, "\nCommon DNS clients:")
	for _, client := range slices.Sorted(maps.Keys(r.Correlated)) {
		fmt.Fprintf(bw, "%-15s seen in resolvers: %s\n", client, strings.Join(r.Correlated[client], ", "))
	}

	return bw.Flush()
}

func writeQuery(w io.Writer, key string, e *model.Entry) {
	if !e.Compound {
		fmt.Fprintf(w, "%s, Count: %d\n", key, e.Count)
		return
	}
	fmt.Fprintf(w, "%s, Count: %d, Query Type: %s\n", key, e.Count, strings.Join(e.Subtypes, ", "))
}

// hostOrder returns Order, or the sorted host addresses for reports that
// were not produced by a pipeline run
func hostOrder(r *model.Report) []string {
	if len(r.Order) == len(r.Hosts) {
		return r.Order
	}
	return slices.Sorted(maps.Keys(r.Hosts))
}
