package reconciler

import (
	"context"
	"errors"
	"fmt"

	"bridgeagent/internal/api"
	"bridgeagent/internal/bridgelock"
	"bridgeagent/internal/clock"
	"bridgeagent/internal/metrics"
	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

const subsystem = "Reconciler"

// PendingSource exposes the VLANs of provision requests still waiting for
// their adapter. Those VLANs must survive cleanup.
type PendingSource interface {
	PendingVLANs() model.VLANSet
}

// Options tunes the heal cycle.
type Options struct {
	// AutomatedCleanup enables removal of stale VLANs.
	AutomatedCleanup bool

	// DeferCleanupOnBoot skips removals on the first heal after startup.
	DeferCleanupOnBoot bool
}

// Engine converges the VLAN membership of every bridge with what the
// controller, the running adapters and the pending confirmations require.
type Engine struct {
	controller api.ControllerAPI
	bridges    api.BridgeAPI
	devices    api.DeviceAPI
	pending    PendingSource
	mapping    model.BridgeMapping
	locks      *bridgelock.Locks
	opts       Options

	clock   clock.Clock
	metrics *metrics.Metrics
	stats   *HealStats
}

// EngineConfig holds the collaborators of an Engine.
type EngineConfig struct {
	Controller api.ControllerAPI
	Bridges    api.BridgeAPI
	Devices    api.DeviceAPI
	Pending    PendingSource
	Mapping    model.BridgeMapping
	Locks      *bridgelock.Locks
	Options    Options
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Stats      *HealStats
}

// NewEngine creates a reconciliation engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Locks == nil {
		cfg.Locks = bridgelock.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = NewHealStats()
	}
	return &Engine{
		controller: cfg.Controller,
		bridges:    cfg.Bridges,
		devices:    cfg.Devices,
		pending:    cfg.Pending,
		mapping:    cfg.Mapping,
		locks:      cfg.Locks,
		opts:       cfg.Options,
		clock:      cfg.Clock,
		metrics:    cfg.Metrics,
		stats:      cfg.Stats,
	}
}

// Stats returns the heal history tracker.
func (e *Engine) Stats() *HealStats {
	return e.stats
}

// HealAndOptimize runs one heal cycle and discards the report.
func (e *Engine) HealAndOptimize(ctx context.Context, isBoot bool) error {
	_, err := e.Heal(ctx, isBoot)
	return err
}

// Heal runs one heal cycle:
//
//  1. Ensure every VLAN the controller wants for an observed adapter is on
//     the adapter's mapped bridge.
//  2. Remove VLANs that nothing needs any more. A VLAN is kept when it
//     belongs to the bridge's primary load group, is used by any adapter on
//     the bridge, or is pending confirmation.
//
// A second run against an unchanged inventory issues no bridge calls.
func (e *Engine) Heal(ctx context.Context, isBoot bool) (HealReport, error) {
	report := HealReport{Boot: isBoot, StartedAt: e.clock.Now()}

	err := e.heal(ctx, &report)
	report.Duration = e.clock.Now().Sub(report.StartedAt)

	e.stats.RecordHeal(report, err)
	e.metrics.RecordHeal(report.counts())

	if err != nil {
		logging.Error(subsystem, err, "Heal and optimize failed")
		return report, err
	}
	if report.Changed() {
		logging.Info(subsystem, "Heal and optimize complete: %s", report)
	} else {
		logging.Debug(subsystem, "Heal and optimize complete, no changes (%d devices)", report.Devices)
	}
	return report, nil
}

func (e *Engine) heal(ctx context.Context, report *HealReport) error {
	adapters, err := e.devices.ListAdapters(ctx, "")
	if err != nil {
		return api.NewTransientBackendError("list adapters", err)
	}
	report.Devices = len(adapters)

	bridges, err := e.bridges.ListBridges(ctx)
	if err != nil {
		return api.NewTransientBackendError("list bridges", err)
	}

	required := make(map[string]model.VLANSet, len(bridges))
	controllerRequired := make(map[string]model.VLANSet, len(bridges))
	for _, b := range bridges {
		required[b.ID] = model.NewVLANSet()
		controllerRequired[b.ID] = model.NewVLANSet()
	}

	if err := e.addControllerVLANs(ctx, adapters, required, controllerRequired); err != nil {
		return err
	}

	for _, a := range adapters {
		set, ok := required[a.BridgeID]
		if !ok {
			logging.Debug(subsystem, "Adapter %s is internal only", a.MAC)
			continue
		}
		set.Append(model.SortedVLANs(a.VLANs())...)
	}

	for _, b := range bridges {
		required[b.ID].Append(model.SortedVLANs(b.PrimaryVLANs())...)
	}

	cleanup := e.opts.AutomatedCleanup
	if report.Boot && e.opts.DeferCleanupOnBoot {
		logging.Info(subsystem, "Deferring VLAN cleanup until after the first heal")
		cleanup = false
	}
	report.CleanupSkipped = !cleanup

	var errs []error
	for _, b := range bridges {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		br := BridgeReport{BridgeID: b.ID}
		err := e.locks.Do(b.ID, func() error {
			return e.healBridge(ctx, b.ID, controllerRequired[b.ID], required[b.ID], cleanup, &br)
		})
		if err != nil {
			br.Error = err.Error()
			errs = append(errs, err)
		}
		report.Bridges = append(report.Bridges, br)
	}

	return errors.Join(errs...)
}

// addControllerVLANs asks the controller about every observed MAC and adds
// the VLAN of each known device to its mapped bridge.
func (e *Engine) addControllerVLANs(ctx context.Context, adapters []model.DeviceInventory, required, controllerRequired map[string]model.VLANSet) error {
	if len(adapters) == 0 {
		return nil
	}

	macs := make([]string, 0, len(adapters))
	for _, a := range adapters {
		macs = append(macs, model.NormalizeMAC(a.MAC))
	}

	details, err := e.controller.GetDevicesDetailsList(ctx, macs)
	if err != nil {
		return api.NewTransientBackendError("get device details", err)
	}

	for _, d := range details {
		if !d.Known() {
			continue
		}
		vlan, ok := d.VLAN()
		if !ok {
			continue
		}
		bridgeID, ok := e.mapping.Lookup(d.PhysicalNetwork)
		if !ok {
			continue
		}
		if _, present := required[bridgeID]; !present {
			continue
		}
		required[bridgeID].Add(vlan)
		controllerRequired[bridgeID].Add(vlan)
	}
	return nil
}

// healBridge must be called with the bridge lock held. Removal candidates are
// checked against pending VLANs and a fresh adapter listing, both read under
// the lock and in that order: a confirmation leaves the queue only after its
// adapter is tagged, so a VLAN confirmed in between is seen on the adapter.
func (e *Engine) healBridge(ctx context.Context, bridgeID string, wanted, required model.VLANSet, cleanup bool, br *BridgeReport) error {
	present, err := e.bridges.ListVLANs(ctx, bridgeID)
	if err != nil {
		return api.NewTransientBackendError(fmt.Sprintf("list VLANs of %s", bridgeID), err)
	}

	missing := wanted.Difference(present)
	if missing.Cardinality() > 0 {
		logging.Info(subsystem, "Adding VLANs %v to bridge %s", model.SortedVLANs(missing), bridgeID)
		if err := e.bridges.EnsureVLANsOnBridge(ctx, bridgeID, missing); err != nil {
			return api.NewTransientBackendError(fmt.Sprintf("ensure VLANs on %s", bridgeID), err)
		}
		br.Added = model.SortedVLANs(missing)
		present = present.Union(missing)
	}

	if !cleanup || present.Difference(required).Cardinality() == 0 {
		return nil
	}

	keep := required.Clone()
	if e.pending != nil {
		keep = keep.Union(e.pending.PendingVLANs())
	}
	inUse, err := e.adapterVLANs(ctx, bridgeID)
	if err != nil {
		return err
	}
	keep = keep.Union(inUse)

	for _, vlan := range model.SortedVLANs(present.Difference(keep)) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn(subsystem, "Cleaning up VLAN %d from bridge %s, it is no longer in use", vlan, bridgeID)
		if err := e.bridges.RemoveVLANFromBridge(ctx, bridgeID, vlan); err != nil {
			logging.Error(subsystem, err, "Failed to remove VLAN %d from bridge %s", vlan, bridgeID)
			br.Failed = append(br.Failed, vlan)
			continue
		}
		br.Removed = append(br.Removed, vlan)
	}
	return nil
}

// adapterVLANs returns the VLANs used by the adapters currently on bridgeID.
func (e *Engine) adapterVLANs(ctx context.Context, bridgeID string) (model.VLANSet, error) {
	adapters, err := e.devices.ListAdapters(ctx, "")
	if err != nil {
		return nil, api.NewTransientBackendError("list adapters", err)
	}
	vlans := model.NewVLANSet()
	for _, a := range adapters {
		if a.BridgeID == bridgeID {
			vlans.Append(model.SortedVLANs(a.VLANs())...)
		}
	}
	return vlans, nil
}
