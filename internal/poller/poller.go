// Package poller drives the agent's main control loop.
//
// Each tick the Poller optionally runs a heal cycle, collects provision
// requests from the controller's port notifications and from a server-side
// detector, deduplicates them by (MAC, partition) and hands the batch to the
// provisioner. Any error puts the loop into a backoff sleep; the loop only
// returns when its context is cancelled.
package poller

import (
	"context"
	"time"

	"bridgeagent/internal/api"
	"bridgeagent/internal/clock"
	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

const subsystem = "Poller"

// Default intervals.
const (
	DefaultPollingInterval         = 2 * time.Second
	DefaultHealAndOptimizeInterval = 300 * time.Second
	DefaultExceptionInterval       = 5 * time.Second
)

// Healer converges bridge state with the desired state.
type Healer interface {
	HealAndOptimize(ctx context.Context, isBoot bool) error
}

// Provisioner provisions a deduplicated batch of requests.
type Provisioner interface {
	AttemptProvision(ctx context.Context, requests []model.ProvisionRequest) error
}

// ServerDetector reports devices noticed on the host itself, independently
// of the controller's notifications.
type ServerDetector interface {
	Collect(ctx context.Context) ([]model.ProvisionRequest, error)
}

// Options configures a Poller.
type Options struct {
	// Host is this agent's host name; ports bound elsewhere are ignored.
	Host string

	PollingInterval         time.Duration
	HealAndOptimizeInterval time.Duration
	ExceptionInterval       time.Duration

	Clock clock.Clock
}

// Poller is the polling controller.
type Poller struct {
	controller  api.ControllerAPI
	ports       *PortBuffer
	healer      Healer
	provisioner Provisioner
	detector    ServerDetector
	opts        Options

	lastHeal time.Time
	booted   bool
}

// New creates a Poller. detector may be nil.
func New(controller api.ControllerAPI, ports *PortBuffer, healer Healer, provisioner Provisioner, detector ServerDetector, opts Options) *Poller {
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = DefaultPollingInterval
	}
	if opts.HealAndOptimizeInterval <= 0 {
		opts.HealAndOptimizeInterval = DefaultHealAndOptimizeInterval
	}
	if opts.ExceptionInterval <= 0 {
		opts.ExceptionInterval = DefaultExceptionInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if ports == nil {
		ports = NewPortBuffer()
	}
	return &Poller{
		controller:  controller,
		ports:       ports,
		healer:      healer,
		provisioner: provisioner,
		detector:    detector,
		opts:        opts,
	}
}

// Ports returns the buffer that receives port notifications.
func (p *Poller) Ports() *PortBuffer {
	return p.ports
}

// Run loops until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	logging.Info(subsystem, "Starting polling loop (polling %s, heal %s, backoff %s)",
		p.opts.PollingInterval, p.opts.HealAndOptimizeInterval, p.opts.ExceptionInterval)

	for {
		sleep := p.opts.PollingInterval

		busy, err := p.RunOnce(ctx)
		switch {
		case ctx.Err() != nil:
			logging.Info(subsystem, "Polling loop stopped")
			return nil
		case err != nil:
			if api.IsTransient(err) {
				logging.Warn(subsystem, "Backend call failed, the agent will retry: %v", err)
			} else {
				logging.Error(subsystem, err, "Error has been encountered and logged, the agent will retry")
			}
			sleep = p.opts.ExceptionInterval
		case busy:
			// Work was found; look again immediately.
			continue
		default:
			logging.Debug(subsystem, "No changes, sleeping %s", sleep)
		}

		if err := clock.Sleep(ctx, p.opts.Clock, sleep); err != nil {
			logging.Info(subsystem, "Polling loop stopped")
			return nil
		}
	}
}

// RunOnce performs a single tick. It reports whether a batch was
// dispatched.
func (p *Poller) RunOnce(ctx context.Context) (bool, error) {
	if err := p.maybeHeal(ctx); err != nil {
		return false, err
	}

	fromController, err := p.requestsFromController(ctx)
	if err != nil {
		return false, err
	}

	var fromServer []model.ProvisionRequest
	if p.detector != nil {
		fromServer, err = p.detector.Collect(ctx)
		if err != nil {
			return false, err
		}
	}

	batch := model.Dedup(fromController, fromServer)
	if len(batch) == 0 {
		return false, nil
	}

	logging.Info(subsystem, "Provisioning %d devices", len(batch))
	return true, p.provisioner.AttemptProvision(ctx, batch)
}

func (p *Poller) maybeHeal(ctx context.Context) error {
	now := p.opts.Clock.Now()
	if !p.lastHeal.IsZero() && now.Sub(p.lastHeal) <= p.opts.HealAndOptimizeInterval {
		return nil
	}

	isBoot := !p.booted
	logging.Debug(subsystem, "Performing heal and optimization of system (boot: %t)", isBoot)
	if err := p.healer.HealAndOptimize(ctx, isBoot); err != nil {
		return err
	}
	p.booted = true
	p.lastHeal = p.opts.Clock.Now()
	return nil
}

// requestsFromController turns buffered port notifications into provision
// requests. Ports are put back when the controller cannot be reached.
func (p *Poller) requestsFromController(ctx context.Context) ([]model.ProvisionRequest, error) {
	ports := p.ports.Drain()
	if len(ports) == 0 {
		return nil, nil
	}

	macs := make([]string, 0, len(ports))
	for _, port := range ports {
		macs = append(macs, port.MACAddress)
	}

	details, err := p.controller.GetDevicesDetailsList(ctx, macs)
	if err != nil {
		p.ports.Requeue(ports)
		return nil, api.NewTransientBackendError("get device details", err)
	}

	var requests []model.ProvisionRequest
	for _, port := range ports {
		if port.ID == "" {
			continue
		}
		if port.BindingHostID != p.opts.Host {
			logging.Debug(subsystem, "Port %s is bound to host %q, ignoring", port.ID, port.BindingHostID)
			continue
		}
		for _, d := range details {
			if d.PortID == "" || d.PortID != port.ID {
				continue
			}
			requests = append(requests, model.NewProvisionRequest(d, model.PartitionIDFromDeviceID(port.DeviceID)))
		}
	}
	return requests, nil
}
