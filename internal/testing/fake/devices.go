package fake

import (
	"context"
	"sync"

	"bridgeagent/internal/model"
)

// TagUpdate records one UpdateAdapterVLANTag call.
type TagUpdate struct {
	MAC  string
	VLAN int
}

// Devices is an in-memory api.DeviceAPI.
type Devices struct {
	mu sync.Mutex

	adapters []model.DeviceInventory

	ListErr   error
	UpdateErr error

	Updates   []TagUpdate
	ListCalls int
}

// NewDevices creates a device backend holding the given adapters.
func NewDevices(adapters ...model.DeviceInventory) *Devices {
	return &Devices{adapters: adapters}
}

// AddAdapter makes an adapter visible, as if the hypervisor just created it.
func (d *Devices) AddAdapter(a model.DeviceInventory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.adapters = append(d.adapters, a)
}

func (d *Devices) ListAdapters(_ context.Context, partitionID string) ([]model.DeviceInventory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ListCalls++
	if d.ListErr != nil {
		return nil, d.ListErr
	}

	var out []model.DeviceInventory
	for _, a := range d.adapters {
		if partitionID == "" || a.PartitionID == partitionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *Devices) UpdateAdapterVLANTag(_ context.Context, adapter model.DeviceInventory, vlan int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.UpdateErr != nil {
		return d.UpdateErr
	}
	d.Updates = append(d.Updates, TagUpdate{MAC: adapter.MAC, VLAN: vlan})
	for i := range d.adapters {
		if model.NormalizeMAC(d.adapters[i].MAC) == model.NormalizeMAC(adapter.MAC) {
			d.adapters[i].PVID = vlan
		}
	}
	return nil
}

// TagUpdates returns a copy of the recorded tag updates.
func (d *Devices) TagUpdates() []TagUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]TagUpdate(nil), d.Updates...)
}
