package fake

import (
	"context"
	"sync"

	"bridgeagent/internal/model"
)

// Controller is an in-memory api.ControllerAPI.
type Controller struct {
	mu sync.Mutex

	// Details maps a normalised MAC to the record returned for it.
	Details map[string]model.DeviceDetail

	DetailsErr error
	UpErr      error
	DownErr    error
	StateErr   error

	DetailCalls [][]string
	Up          []string
	Down        []string
	States      []model.AgentState
}

// NewController creates a controller that knows the given devices.
func NewController(details ...model.DeviceDetail) *Controller {
	c := &Controller{Details: make(map[string]model.DeviceDetail)}
	for _, d := range details {
		c.Details[model.NormalizeMAC(d.MACAddress)] = d
	}
	return c
}

// AddDetail makes a device known to the controller.
func (c *Controller) AddDetail(d model.DeviceDetail) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Details[model.NormalizeMAC(d.MACAddress)] = d
}

// GetDevicesDetailsList returns one record per MAC. Unknown MACs produce a
// record with only the device field set.
func (c *Controller) GetDevicesDetailsList(_ context.Context, macs []string) ([]model.DeviceDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.DetailCalls = append(c.DetailCalls, append([]string(nil), macs...))
	if c.DetailsErr != nil {
		return nil, c.DetailsErr
	}

	out := make([]model.DeviceDetail, 0, len(macs))
	for _, mac := range macs {
		if d, ok := c.Details[model.NormalizeMAC(mac)]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, model.DeviceDetail{Device: mac})
	}
	return out, nil
}

func (c *Controller) UpdateDeviceUp(_ context.Context, device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.UpErr != nil {
		return c.UpErr
	}
	c.Up = append(c.Up, device)
	return nil
}

func (c *Controller) UpdateDeviceDown(_ context.Context, device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Down reports are recorded even when they fail so tests can count attempts.
	c.Down = append(c.Down, device)
	return c.DownErr
}

func (c *Controller) ReportState(_ context.Context, state model.AgentState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StateErr != nil {
		return c.StateErr
	}
	c.States = append(c.States, state)
	return nil
}

// UpReports returns a copy of the device-up reports.
func (c *Controller) UpReports() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Up...)
}

// DownReports returns a copy of the device-down reports.
func (c *Controller) DownReports() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Down...)
}
