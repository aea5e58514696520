package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"bridgeagent/internal/api"
	"bridgeagent/internal/bridgelock"
	"bridgeagent/internal/clock"
	"bridgeagent/internal/config"
	"bridgeagent/internal/confirmation"
	"bridgeagent/internal/controller"
	"bridgeagent/internal/metrics"
	"bridgeagent/internal/model"
	"bridgeagent/internal/poller"
	"bridgeagent/internal/provisioner"
	"bridgeagent/internal/reconciler"
	"bridgeagent/pkg/logging"
)

// Detector watches the host for new adapters.
type Detector interface {
	Run(ctx context.Context) error
	Collect(ctx context.Context) ([]model.ProvisionRequest, error)
}

// Dependencies are the external systems the services talk to.
type Dependencies struct {
	Controller api.ControllerAPI
	Bridges    api.BridgeAPI
	Devices    api.DeviceAPI

	// Detector and Identity are optional.
	Detector Detector
	Identity *controller.Identity

	Notifier controller.Notifier
	Clock    clock.Clock
}

// Services holds every running component of the agent.
type Services struct {
	Mapping model.BridgeMapping
	Metrics *metrics.Metrics

	Ports      *poller.PortBuffer
	Queue      *confirmation.Queue
	Engine     *reconciler.Engine
	Dispatcher *provisioner.Dispatcher
	Poller     *poller.Poller
	Heartbeat  *controller.Heartbeat

	// Server is nil when the notification endpoint is disabled.
	Server *controller.Server

	Detector Detector
	Identity *controller.Identity
}

// ResolveMapping parses the configured bridge mappings and checks them
// against the bridges present on the host.
func ResolveMapping(ctx context.Context, bridges api.BridgeAPI, raw string) (model.BridgeMapping, error) {
	mapping, err := model.ParseBridgeMappings(raw)
	if err != nil {
		return model.BridgeMapping{}, err
	}

	inventory, err := bridges.ListBridges(ctx)
	if err != nil {
		return model.BridgeMapping{}, fmt.Errorf("failed to list bridges: %w", err)
	}

	resolved, err := mapping.Resolve(inventory)
	if err != nil {
		return model.BridgeMapping{}, err
	}
	logging.Info("Bootstrap", "Bridge mappings: %s", resolved)
	return resolved, nil
}

// checkCleanupScope returns the mapped bridges that have no uplink port when
// automated cleanup is enabled. The live VLANs of such a bridge are its own
// VLANs, which are also its primary load group, so cleanup never removes
// anything there.
func checkCleanupScope(mapping model.BridgeMapping, cleanup bool) []string {
	if !cleanup {
		return nil
	}
	uplinks := mapping.Uplinks()
	var bridges []string
	for _, id := range mapping.BridgeIDs() {
		if uplinks[id] != "" {
			continue
		}
		logging.Warn("Bootstrap", "Bridge %s has no uplink in the bridge mappings, automated VLAN cleanup will not remove VLANs from it", id)
		bridges = append(bridges, id)
	}
	return bridges
}

// InitializeServices wires the components together. mapping must already be
// resolved against the host.
func InitializeServices(cfg config.Config, mapping model.BridgeMapping, deps Dependencies) *Services {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}

	m := metrics.New()
	locks := bridgelock.New()
	ports := poller.NewPortBuffer()

	queue := confirmation.NewQueue(deps.Devices, deps.Controller, confirmation.Options{
		Timeout: cfg.Agent.ConfirmationTimeout,
		Tick:    cfg.Agent.ConfirmationTick,
		Clock:   deps.Clock,
		Metrics: m,
	})

	engine := reconciler.NewEngine(reconciler.EngineConfig{
		Controller: deps.Controller,
		Bridges:    deps.Bridges,
		Devices:    deps.Devices,
		Pending:    queue,
		Mapping:    mapping,
		Locks:      locks,
		Options: reconciler.Options{
			AutomatedCleanup:   cfg.Agent.AutomatedVLANCleanup,
			DeferCleanupOnBoot: cfg.Agent.DeferCleanupOnBoot,
		},
		Clock:   deps.Clock,
		Metrics: m,
	})

	dispatcher := provisioner.NewDispatcher(deps.Bridges, deps.Controller, queue, mapping, locks, m)

	var detector poller.ServerDetector
	if deps.Detector != nil {
		detector = deps.Detector
	}
	p := poller.New(deps.Controller, ports, engine, dispatcher, detector, poller.Options{
		Host:                    cfg.Host,
		PollingInterval:         cfg.Agent.PollingIntervalDuration(),
		HealAndOptimizeInterval: cfg.Agent.HealIntervalDuration(),
		ExceptionInterval:       cfg.Agent.ExceptionIntervalDuration(),
		Clock:                   deps.Clock,
	})

	heartbeat := controller.NewHeartbeat(controller.HeartbeatConfig{
		Host:     cfg.Host,
		Reporter: deps.Controller,
		Interval: cfg.Agent.ReportIntervalDuration(),
		Configurations: map[string]any{
			"bridge_mappings":        mapping.String(),
			"automated_vlan_cleanup": cfg.Agent.AutomatedVLANCleanup,
		},
		Devices:  queue.Len,
		Notifier: deps.Notifier,
		Clock:    deps.Clock,
		Metrics:  m,
	})

	var server *controller.Server
	if cfg.Listen.Address != "" {
		server = controller.NewServer(controller.ServerConfig{
			Address:  cfg.Listen.Address,
			Host:     cfg.Host,
			Sink:     ports,
			Queue:    queue,
			Heals:    engine.Stats(),
			Identity: deps.Identity,
			Metrics:  m.Handler(),
		})
	}

	return &Services{
		Mapping:    mapping,
		Metrics:    m,
		Ports:      ports,
		Queue:      queue,
		Engine:     engine,
		Dispatcher: dispatcher,
		Poller:     p,
		Heartbeat:  heartbeat,
		Server:     server,
		Detector:   deps.Detector,
		Identity:   deps.Identity,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (s *Services) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.Queue.Run(ctx) })
	g.Go(func() error { return s.Poller.Run(ctx) })
	g.Go(func() error { return s.Heartbeat.Run(ctx) })
	if s.Server != nil {
		g.Go(func() error { return s.Server.Run(ctx) })
	}
	if s.Detector != nil {
		g.Go(func() error { return s.Detector.Run(ctx) })
	}
	if s.Identity != nil {
		g.Go(func() error { return s.Identity.Watch(ctx) })
	}

	logging.Info("Services", "Agent started with %d mapped physical networks", s.Mapping.Len())
	err := g.Wait()
	logging.Info("Services", "Agent stopped")
	return err
}
