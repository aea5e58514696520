package api

import (
	"context"

	"bridgeagent/internal/model"
)

// ControllerAPI is the remote network controller as seen by the agent.
// Implementations bind the agent id and host at construction.
type ControllerAPI interface {
	// GetDevicesDetailsList returns the controller records for the given MACs.
	// Unknown MACs come back as records without a MAC address.
	GetDevicesDetailsList(ctx context.Context, macs []string) ([]model.DeviceDetail, error)

	// UpdateDeviceUp tells the controller the device is wired and tagged.
	UpdateDeviceUp(ctx context.Context, device string) error

	// UpdateDeviceDown tells the controller the device could not be provisioned.
	UpdateDeviceDown(ctx context.Context, device string) error

	// ReportState is the agent liveness heartbeat.
	ReportState(ctx context.Context, state model.AgentState) error
}

// BridgeAPI manages VLAN membership of the host's network bridges.
type BridgeAPI interface {
	ListBridges(ctx context.Context) ([]model.BridgeInventory, error)
	ListVLANs(ctx context.Context, bridgeID string) (model.VLANSet, error)

	// EnsureVLANsOnBridge adds any missing VLANs. It never removes.
	EnsureVLANsOnBridge(ctx context.Context, bridgeID string, vlans model.VLANSet) error

	RemoveVLANFromBridge(ctx context.Context, bridgeID string, vlan int) error
}

// DeviceAPI exposes the virtual adapters of the host's partitions.
type DeviceAPI interface {
	// ListAdapters returns the adapters of one partition, or of every
	// partition when partitionID is empty.
	ListAdapters(ctx context.Context, partitionID string) ([]model.DeviceInventory, error)

	UpdateAdapterVLANTag(ctx context.Context, adapter model.DeviceInventory, vlan int) error
}

// DeviceReporter is the subset of ControllerAPI used to report device state.
type DeviceReporter interface {
	UpdateDeviceUp(ctx context.Context, device string) error
	UpdateDeviceDown(ctx context.Context, device string) error
}
