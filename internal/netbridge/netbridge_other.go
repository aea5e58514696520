//go:build !linux

package netbridge

import (
	"context"
	"errors"

	"bridgeagent/internal/api"
	"bridgeagent/internal/model"
)

// ErrUnsupported is returned on platforms without Linux bridges.
var ErrUnsupported = errors.New("linux bridge backend is only supported on linux")

// Backend is unavailable on this platform.
type Backend struct{}

// Open always fails on this platform.
func Open(model.BridgeMapping) (*Backend, error) {
	return nil, ErrUnsupported
}

func (b *Backend) WithMapping(model.BridgeMapping) *Backend { return b }
func (b *Backend) Close()                                  {}

func (b *Backend) ListBridges(context.Context) ([]model.BridgeInventory, error) {
	return nil, ErrUnsupported
}

func (b *Backend) ListVLANs(context.Context, string) (model.VLANSet, error) {
	return nil, ErrUnsupported
}

func (b *Backend) EnsureVLANsOnBridge(context.Context, string, model.VLANSet) error {
	return ErrUnsupported
}

func (b *Backend) RemoveVLANFromBridge(context.Context, string, int) error {
	return ErrUnsupported
}

func (b *Backend) ListAdapters(context.Context, string) ([]model.DeviceInventory, error) {
	return nil, ErrUnsupported
}

func (b *Backend) UpdateAdapterVLANTag(context.Context, model.DeviceInventory, int) error {
	return ErrUnsupported
}

// Detector is unavailable on this platform.
type Detector struct{}

func NewDetector(*Backend, api.ControllerAPI) *Detector { return &Detector{} }

func (d *Detector) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (d *Detector) Collect(context.Context) ([]model.ProvisionRequest, error) {
	return nil, nil
}
