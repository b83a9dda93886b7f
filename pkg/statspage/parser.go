// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package statspage

import (
	"io"
	"strconv"
	"strings"

	"powerdnscout/pkg/model"
)

// Separator splits a compound label into primary key and qualifier
const Separator = "/"

// reserved labels are summary rows, not data
var reserved = map[string]bool{
	"Total:": true,
	"Rest:":  true,
}

// Parse converts table rows into a LabelAggregate. The first row is the
// header. Malformed rows are skipped and counted in Dropped; Parse never
// fails.
//
// A key that is seen as compound at least once stays compound: an earlier
// scalar value for it is discarded, and later scalar rows are ignored.
func Parse(rows []Row) *model.LabelAggregate {
	agg := model.NewLabelAggregate()
	if len(rows) == 0 {
		return agg
	}

	for _, row := range rows[1:] {
		if len(row) < 2 {
			agg.Dropped++
			continue
		}

		label := strings.TrimSpace(row[0])
		if reserved[label] {
			agg.Dropped++
			continue
		}

		value, ok := parseCount(row[1])
		if !ok {
			agg.Dropped++
			continue
		}

		key, qualifier, compound := strings.Cut(label, Separator)
		if !compound {
			if existing, ok := agg.Entries[label]; ok && existing.Compound {
				agg.Dropped++
				continue
			}
			agg.Entries[label] = &model.Entry{Count: value}
			continue
		}

		// Only the first qualifier counts, e.g. "example.com/A/extra" -> "A"
		qualifier, _, _ = strings.Cut(qualifier, Separator)

		entry, ok := agg.Entries[key]
		if !ok || !entry.Compound {
			if ok {
				agg.Dropped++
			}
			entry = &model.Entry{Compound: true, Subtypes: []string{}}
			agg.Entries[key] = entry
		}
		entry.Count += value
		entry.Subtypes = append(entry.Subtypes, qualifier)
	}

	return agg
}

// ParsePage extracts the first table of an HTML page and parses it
func ParsePage(r io.Reader) (*model.LabelAggregate, error) {
	rows, err := ExtractRows(r)
	if err != nil {
		return nil, err
	}
	return Parse(rows), nil
}

// parseCount accepts a base-10 integer >= 0
func parseCount(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
