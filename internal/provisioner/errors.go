package provisioner

import (
	"fmt"

	"bridgeagent/internal/model"
)

// MappingError reports a request whose physical network has no bridge.
// The request is dropped for this cycle; it is not retried internally.
type MappingError struct {
	PhysicalNetwork string
	MACAddress      string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("unable to determine the network bridge for physical network %q (device %s)", e.PhysicalNetwork, e.MACAddress)
}

// BatchProvisionError is returned by AttemptProvision when a batch failed.
// Every request in Requests has been reported down.
type BatchProvisionError struct {
	Requests []model.ProvisionRequest
	Err      error
}

func (e *BatchProvisionError) Error() string {
	return fmt.Sprintf("failed to provision batch of %d devices: %v", len(e.Requests), e.Err)
}

func (e *BatchProvisionError) Unwrap() error {
	return e.Err
}
