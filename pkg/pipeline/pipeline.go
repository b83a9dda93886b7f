// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

// Package pipeline harvests a set of resolver hosts and correlates the
// clients they have in common.
package pipeline

import (
	"context"
	"log"
	"slices"

	"github.com/gammazero/workerpool"

	"powerdnscout/pkg/model"
)

// DefaultWorkers is the number of hosts harvested concurrently
const DefaultWorkers = 4

// Harvester produces the record of a single host
type Harvester interface {
	Harvest(ctx context.Context, host model.Host) *model.HostRecord
}

// Pipeline runs harvests on a bounded pool of workers
type Pipeline struct {
	harvester Harvester
	workers   int
}

// New creates a pipeline. workers <= 0 selects DefaultWorkers; 1 harvests
// hosts sequentially.
func New(h Harvester, workers int) *Pipeline {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pipeline{harvester: h, workers: workers}
}

// Run harvests every distinct host and assembles the report. Only an empty
// host set is an error; per-host failures leave partial records.
func (p *Pipeline) Run(ctx context.Context, hosts []model.Host) (*model.Report, error) {
	hosts = uniqueHosts(hosts)
	if len(hosts) == 0 {
		return nil, model.ErrNoHosts
	}

	log.Printf("INFO: Harvesting %d hosts with %d workers", len(hosts), p.workers)

	records := make([]*model.HostRecord, len(hosts))
	wp := workerpool.New(p.workers)
	for i, host := range hosts {
		wp.Submit(func() {
			records[i] = p.harvester.Harvest(ctx, host)
		})
	}
	wp.StopWait()

	report := &model.Report{
		Hosts: make(map[string]*model.HostRecord, len(records)),
		Order: make([]string, 0, len(records)),
	}
	for i, rec := range records {
		if rec == nil {
			rec = model.NewHostRecord(hosts[i])
		}
		report.Hosts[rec.Address] = rec
		report.Order = append(report.Order, rec.Address)
	}
	report.Correlated = Shared(Correlate(records))

	log.Printf("INFO: Harvest complete: %d hosts, %d shared clients", len(report.Hosts), len(report.Correlated))
	return report, nil
}

// Correlate maps every client address to the hosts that reported it, in
// record order. Records without a client view contribute nothing.
func Correlate(records []*model.HostRecord) map[string][]string {
	index := make(map[string][]string)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		for addr := range rec.Clients {
			if !slices.Contains(index[addr], rec.Address) {
				index[addr] = append(index[addr], rec.Address)
			}
		}
	}
	return index
}

// Shared keeps the clients seen by at least two hosts
func Shared(index map[string][]string) map[string][]string {
	shared := make(map[string][]string)
	for addr, hosts := range index {
		if len(hosts) >= 2 {
			shared[addr] = hosts
		}
	}
	return shared
}

// uniqueHosts drops repeated addresses, keeping the first occurrence
func uniqueHosts(hosts []model.Host) []model.Host {
	seen := make(map[string]bool, len(hosts))
	unique := make([]model.Host, 0, len(hosts))
	for _, h := range hosts {
		if seen[h.Address] {
			continue
		}
		seen[h.Address] = true
		unique = append(unique, h)
	}
	return unique
}
