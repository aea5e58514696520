package netbridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"bridgeagent/internal/api"
	"bridgeagent/internal/clock"
	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

// DefaultResubscribeInterval is the wait before resubscribing after the
// link update stream closed.
const DefaultResubscribeInterval = 5 * time.Second

type subscribeFunc func(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error

// Detector watches link updates and buffers provision requests for adapters
// that appear on managed bridges.
type Detector struct {
	backend    *Backend
	controller api.ControllerAPI
	subscribe  subscribeFunc
	clock      clock.Clock

	mu      sync.Mutex
	pending []model.ProvisionRequest

	// seen remembers the identity of each adapter link so repeated updates
	// for an unchanged port do not produce new requests.
	seen map[int]string
}

// NewDetector creates a detector for the bridges managed by backend.
func NewDetector(backend *Backend, controller api.ControllerAPI) *Detector {
	return &Detector{
		backend:    backend,
		controller: controller,
		subscribe: func(ch chan<- netlink.LinkUpdate, done <-chan struct{}) error {
			return netlink.LinkSubscribeWithOptions(ch, done, netlink.LinkSubscribeOptions{
				ErrorCallback: func(err error) {
					logging.Warn(subsystem, "Link subscription error: %v", err)
				},
			})
		},
		clock: clock.RealClock{},
		seen:  make(map[int]string),
	}
}

// Run consumes link updates until ctx is cancelled, resubscribing when the
// stream ends.
func (d *Detector) Run(ctx context.Context) error {
	for {
		err := d.watch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logging.Warn(subsystem, "Link update stream ended, resubscribing in %s: %v", DefaultResubscribeInterval, err)
		if clock.Sleep(ctx, d.clock, DefaultResubscribeInterval) != nil {
			return nil
		}
	}
}

func (d *Detector) watch(ctx context.Context) error {
	updates := make(chan netlink.LinkUpdate, 64)
	done := make(chan struct{})
	defer close(done)

	if err := d.subscribe(updates, done); err != nil {
		return err
	}
	logging.Info(subsystem, "Watching link updates for new adapters")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return errors.New("link update channel closed")
			}
			d.handle(ctx, upd)
		}
	}
}

func (d *Detector) handle(ctx context.Context, upd netlink.LinkUpdate) {
	if upd.Link == nil {
		return
	}
	attrs := upd.Link.Attrs()

	if upd.Header.Type == unix.RTM_DELLINK {
		d.forget(attrs.Index)
		return
	}
	if upd.Header.Type != unix.RTM_NEWLINK {
		return
	}

	s, err := d.backend.snapshot()
	if err != nil {
		logging.Warn(subsystem, "Unable to inspect link %s: %v", attrs.Name, err)
		return
	}
	adapter, ok := s.adapter(upd.Link)
	if !ok {
		d.forget(attrs.Index)
		return
	}

	identity := adapter.MAC + "|" + adapter.PartitionID + "|" + adapter.BridgeID
	if !d.remember(attrs.Index, identity) {
		return
	}

	details, err := d.controller.GetDevicesDetailsList(ctx, []string{adapter.MAC})
	if err != nil {
		// Let the next update for this link retry the lookup.
		d.forget(attrs.Index)
		logging.Warn(subsystem, "Unable to look up device %s: %v", adapter.MAC, err)
		return
	}

	for _, detail := range details {
		// The controller returns a bare record for devices it does not manage.
		if !detail.Known() {
			continue
		}
		req := model.NewProvisionRequest(detail, adapter.PartitionID)
		logging.Info(subsystem, "Detected adapter %s on bridge %s", req, adapter.BridgeID)

		d.mu.Lock()
		d.pending = append(d.pending, req)
		d.mu.Unlock()
	}
}

// remember records identity for the link and reports whether it changed.
func (d *Detector) remember(index int, identity string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[index] == identity {
		return false
	}
	d.seen[index] = identity
	return true
}

func (d *Detector) forget(index int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, index)
}

// Collect drains the buffered requests.
func (d *Detector) Collect(_ context.Context) ([]model.ProvisionRequest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reqs := d.pending
	d.pending = nil
	return reqs, nil
}
