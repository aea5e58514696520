package poller

import (
	"sync"

	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

// PortBuffer collects port-update notifications pushed by the controller
// until the next polling tick drains them.
type PortBuffer struct {
	mu    sync.Mutex
	ports []model.Port
}

// NewPortBuffer creates an empty buffer.
func NewPortBuffer() *PortBuffer {
	return &PortBuffer{}
}

// PortUpdate records a port the controller reports as updated.
func (b *PortBuffer) PortUpdate(port model.Port) {
	logging.Info(subsystem, "Controller indicated port update for %s, checking if hosted by this system", port.MACAddress)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports = append(b.ports, port)
}

// NetworkDelete is accepted for completeness; network deletion needs no
// local action since stale VLANs are removed by the next heal.
func (b *PortBuffer) NetworkDelete(networkID string) {
	logging.Debug(subsystem, "Network delete received for network %s", networkID)
}

// Drain returns the buffered ports and empties the buffer.
func (b *PortBuffer) Drain() []model.Port {
	b.mu.Lock()
	defer b.mu.Unlock()
	ports := b.ports
	b.ports = nil
	return ports
}

// Requeue puts ports back at the front of the buffer, ahead of anything that
// arrived since they were drained.
func (b *PortBuffer) Requeue(ports []model.Port) {
	if len(ports) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports = append(append([]model.Port(nil), ports...), b.ports...)
}

// Len returns the number of buffered ports.
func (b *PortBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ports)
}
