package confirmation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bridgeagent/internal/api"
	"bridgeagent/internal/clock"
	"bridgeagent/internal/metrics"
	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

const subsystem = "ConfirmationQueue"

// DefaultTimeout is the number of ticks an entry waits for its adapter.
const DefaultTimeout = 300

// DefaultTick is the period between two passes over the pending entries.
const DefaultTick = time.Second

var errAdapterNotFound = errors.New("no matching adapter found")

// Entry is a pending provision request.
type Entry struct {
	Request model.ProvisionRequest

	// Attempts counts the ticks on which the adapter could not be confirmed.
	Attempts int

	// LastError is why the latest attempt failed.
	LastError error
}

// Options configures a Queue.
type Options struct {
	// Timeout is the number of failed attempts after which an entry fails.
	Timeout int

	// Tick is the period between passes.
	Tick time.Duration

	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Queue holds provision requests until their adapter is confirmed or the
// entry times out.
type Queue struct {
	devices  api.DeviceAPI
	reporter api.DeviceReporter

	timeout int
	tick    time.Duration
	clock   clock.Clock
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries []*Entry
}

// NewQueue creates an empty queue. Zero option values fall back to the defaults.
func NewQueue(devices api.DeviceAPI, reporter api.DeviceReporter, opts Options) *Queue {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Queue{
		devices:  devices,
		reporter: reporter,
		timeout:  opts.Timeout,
		tick:     opts.Tick,
		clock:    opts.Clock,
		metrics:  opts.Metrics,
	}
}

// Add appends requests to the queue. A request whose key is already pending
// is ignored; the same adapter may be reported by more than one source.
func (q *Queue) Add(requests ...model.ProvisionRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, req := range requests {
		if q.indexLocked(req.Key()) >= 0 {
			logging.Debug(subsystem, "Request for %s already pending, ignoring", req.Key())
			continue
		}
		q.entries = append(q.entries, &Entry{Request: req})
	}
	q.metrics.SetPendingConfirmations(len(q.entries))
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a copy of the pending entries.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, *e)
	}
	return out
}

// PendingVLANs returns the segmentation ids of all pending entries.
func (q *Queue) PendingVLANs() model.VLANSet {
	q.mu.Lock()
	defer q.mu.Unlock()

	vlans := model.NewVLANSet()
	for _, e := range q.entries {
		if e.Request.HasVLAN() {
			vlans.Add(e.Request.SegmentationID)
		}
	}
	return vlans
}

// Run processes the queue every tick until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	logging.Info(subsystem, "Starting confirmation queue (tick %s, timeout %d attempts)", q.tick, q.timeout)
	for {
		q.Tick(ctx)

		if err := clock.Sleep(ctx, q.clock, q.tick); err != nil {
			logging.Info(subsystem, "Confirmation queue stopped")
			return nil
		}
	}
}

// Tick makes one pass over a snapshot of the pending entries. Entries added
// during the pass are handled on the next tick. Panics are recovered so the
// queue keeps running.
func (q *Queue) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(subsystem, fmt.Errorf("panic: %v", r), "Recovered from panic while processing the confirmation queue")
		}
	}()

	snapshot := q.snapshot()
	if len(snapshot) == 0 {
		return
	}

	for _, e := range snapshot {
		if ctx.Err() != nil {
			return
		}
		q.process(ctx, e)
	}
}

func (q *Queue) snapshot() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func (q *Queue) process(ctx context.Context, e *Entry) {
	req := e.Request

	adapters, err := q.devices.ListAdapters(ctx, req.LparID)
	if err == nil {
		adapter, found := model.FindAdapterByMAC(req.MACAddress, adapters)
		if !found {
			err = errAdapterNotFound
		} else if err = q.confirm(ctx, req, adapter); err == nil {
			q.remove(req.Key())
			q.metrics.RecordConfirmed()
			return
		}
	}
	if !errors.Is(err, errAdapterNotFound) {
		logging.Warn(subsystem, "Failed to confirm adapter %s: %v", req, err)
	}

	if q.recordAttempt(e, err) < q.timeout {
		return
	}

	q.fail(ctx, req, adapters, err)
	q.remove(req.Key())
	q.metrics.RecordConfirmationFailed()
}

func (q *Queue) confirm(ctx context.Context, req model.ProvisionRequest, adapter model.DeviceInventory) error {
	if req.HasVLAN() && adapter.PVID != req.SegmentationID {
		logging.Info(subsystem, "Updating PVID of %s from %d to %d", req.MACAddress, adapter.PVID, req.SegmentationID)
		if err := q.devices.UpdateAdapterVLANTag(ctx, adapter, req.SegmentationID); err != nil {
			return fmt.Errorf("failed to update VLAN tag: %w", err)
		}
	}

	logging.Info(subsystem, "Sending device up for %s", req.MACAddress)
	if err := q.reporter.UpdateDeviceUp(ctx, req.DeviceID()); err != nil {
		return fmt.Errorf("failed to report device up: %w", err)
	}
	return nil
}

func (q *Queue) fail(ctx context.Context, req model.ProvisionRequest, adapters []model.DeviceInventory, cause error) {
	logging.Error(subsystem, cause, "Unable to set VLAN %d on %s after %d attempts",
		req.SegmentationID, req.MACAddress, q.timeout)
	for i, a := range adapters {
		logging.Error(subsystem, nil, "Existing adapter %d of partition %s: mac %s, pvid %d", i, req.LparID, a.MAC, a.PVID)
	}

	if err := q.reporter.UpdateDeviceDown(ctx, req.DeviceID()); err != nil {
		logging.Error(subsystem, err, "Failed to report device down for %s", req.MACAddress)
	}
}

func (q *Queue) recordAttempt(e *Entry, cause error) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	e.Attempts++
	e.LastError = cause
	return e.Attempts
}

func (q *Queue) remove(key model.RequestKey) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexLocked(key); i >= 0 {
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
	}
	q.metrics.SetPendingConfirmations(len(q.entries))
}

func (q *Queue) indexLocked(key model.RequestKey) int {
	for i, e := range q.entries {
		if e.Request.Key() == key {
			return i
		}
	}
	return -1
}
