// Package provisioner binds newly observed devices to VLANs.
//
// A batch of provision requests is grouped by target bridge through the
// bridge mapping, each bridge receives one additive EnsureVLANsOnBridge call
// with the union of its VLANs, and only after every bridge succeeded are the
// requests handed to the confirmation queue, which finalizes the adapter tag
// once the adapter exists.
package provisioner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"bridgeagent/internal/api"
	"bridgeagent/internal/bridgelock"
	"bridgeagent/internal/metrics"
	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

const subsystem = "Provisioner"

// Enqueuer accepts requests for confirmation.
type Enqueuer interface {
	Add(requests ...model.ProvisionRequest)
}

// Dispatcher provisions batches of requests.
type Dispatcher struct {
	bridges  api.BridgeAPI
	reporter api.DeviceReporter
	queue    Enqueuer
	mapping  model.BridgeMapping
	locks    *bridgelock.Locks
	metrics  *metrics.Metrics
}

// NewDispatcher creates a dispatcher. locks must be the table shared with the
// reconciler; a nil table gets a private one.
func NewDispatcher(bridges api.BridgeAPI, reporter api.DeviceReporter, queue Enqueuer, mapping model.BridgeMapping, locks *bridgelock.Locks, m *metrics.Metrics) *Dispatcher {
	if locks == nil {
		locks = bridgelock.New()
	}
	return &Dispatcher{
		bridges:  bridges,
		reporter: reporter,
		queue:    queue,
		mapping:  mapping,
		locks:    locks,
		metrics:  m,
	}
}

// group is the set of VLANs needed on one bridge.
type group struct {
	bridgeID string
	vlans    model.VLANSet
}

// Provision ensures the VLANs of every mapped request are on its bridge and
// then enqueues all requests for confirmation. Requests without a mapping
// are logged and contribute no VLAN.
func (d *Dispatcher) Provision(ctx context.Context, requests []model.ProvisionRequest) error {
	groups, unmapped := d.groupByBridge(requests)
	d.metrics.RecordUnmapped(unmapped)

	bridgeIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		bridgeIDs = append(bridgeIDs, g.bridgeID)
	}

	// The bridge locks are held until the requests are enqueued, so a heal
	// running in between cannot see the new VLANs as stale.
	return d.locks.DoAll(bridgeIDs, func() error {
		for _, g := range groups {
			if err := ctx.Err(); err != nil {
				return err
			}
			logging.Debug(subsystem, "Ensuring VLANs %v on bridge %s", model.SortedVLANs(g.vlans), g.bridgeID)
			if err := d.bridges.EnsureVLANsOnBridge(ctx, g.bridgeID, g.vlans); err != nil {
				return api.NewTransientBackendError(fmt.Sprintf("ensure VLANs on %s", g.bridgeID), err)
			}
		}

		d.queue.Add(requests...)
		logging.Debug(subsystem, "Successfully provisioned %d devices", len(requests))
		return nil
	})
}

// AttemptProvision runs Provision and, when it fails, reports every request
// in the batch down. The returned error is a *BatchProvisionError.
func (d *Dispatcher) AttemptProvision(ctx context.Context, requests []model.ProvisionRequest) error {
	logging.Debug(subsystem, "Provisioning devices for MAC addresses [ %s ]", joinMACs(requests))

	err := d.Provision(ctx, requests)
	d.metrics.RecordProvisionBatch(len(requests), err)
	if err == nil {
		return nil
	}

	for _, req := range requests {
		if downErr := d.reporter.UpdateDeviceDown(ctx, req.DeviceID()); downErr != nil {
			logging.Error(subsystem, downErr, "Failed to report device down for %s", req.MACAddress)
		}
	}
	return &BatchProvisionError{Requests: requests, Err: err}
}

func (d *Dispatcher) groupByBridge(requests []model.ProvisionRequest) ([]group, int) {
	byBridge := make(map[string]model.VLANSet)
	unmapped := 0
	for _, req := range requests {
		bridgeID, ok := d.mapping.Lookup(req.PhysicalNetwork)
		if !ok {
			unmapped++
			err := &MappingError{PhysicalNetwork: req.PhysicalNetwork, MACAddress: req.MACAddress}
			logging.Warn(subsystem, "%v; unable to determine the provisioning action", err)
			continue
		}
		if !req.HasVLAN() {
			continue
		}
		if _, ok := byBridge[bridgeID]; !ok {
			byBridge[bridgeID] = model.NewVLANSet()
		}
		byBridge[bridgeID].Add(req.SegmentationID)
	}

	groups := make([]group, 0, len(byBridge))
	for id, vlans := range byBridge {
		groups = append(groups, group{bridgeID: id, vlans: vlans})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].bridgeID < groups[j].bridgeID })
	return groups, unmapped
}

func joinMACs(requests []model.ProvisionRequest) string {
	macs := make([]string, 0, len(requests))
	for _, r := range requests {
		macs = append(macs, r.MACAddress)
	}
	return strings.Join(macs, " ")
}
