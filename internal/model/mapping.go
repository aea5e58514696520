package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultPhysicalNetwork is assumed when no mapping is configured and the
// host has exactly one bridge.
const DefaultPhysicalNetwork = "default"

var (
	// ErrNoBridges is returned when the host has no managed bridges.
	ErrNoBridges = errors.New("no network bridges found on the host")

	// ErrMultipleBridgesNoMapping is returned when the mapping is empty but
	// the host has more than one bridge, so the default cannot be inferred.
	ErrMultipleBridgesNoMapping = errors.New("bridge mappings are empty and the host has multiple network bridges")
)

// UnknownBridgeError reports a mapping that names a bridge the host does not have.
type UnknownBridgeError struct {
	PhysicalNetwork string
	BridgeID        string
}

func (e *UnknownBridgeError) Error() string {
	return fmt.Sprintf("bridge %s mapped for physical network %s was not found on the host", e.BridgeID, e.PhysicalNetwork)
}

// BridgeTarget is the mapping target of a physical network.
type BridgeTarget struct {
	BridgeID string

	// Uplink is the optional third field of a mapping entry, naming the
	// bridge's trunk port.
	Uplink string
}

// BridgeMapping maps physical network names to bridges. It is built once at
// startup and read-only afterwards.
type BridgeMapping struct {
	entries map[string]BridgeTarget
}

// NewBridgeMapping builds a mapping from physical network to bridge id.
func NewBridgeMapping(entries map[string]string) BridgeMapping {
	m := BridgeMapping{entries: make(map[string]BridgeTarget, len(entries))}
	for physnet, bridge := range entries {
		m.entries[physnet] = BridgeTarget{BridgeID: bridge}
	}
	return m
}

// ParseBridgeMappings parses "physnet:bridge[:extra],physnet2:bridge2" into
// a mapping. An empty string yields an empty mapping.
func ParseBridgeMappings(raw string) (BridgeMapping, error) {
	m := BridgeMapping{entries: make(map[string]BridgeTarget)}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		fields := strings.Split(entry, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return BridgeMapping{}, fmt.Errorf("invalid bridge mapping %q: expected physical_network:bridge_id[:extra]", entry)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if fields[0] == "" || fields[1] == "" {
			return BridgeMapping{}, fmt.Errorf("invalid bridge mapping %q: empty physical network or bridge", entry)
		}
		if _, dup := m.entries[fields[0]]; dup {
			return BridgeMapping{}, fmt.Errorf("invalid bridge mapping %q: physical network %s mapped twice", entry, fields[0])
		}

		target := BridgeTarget{BridgeID: fields[1]}
		if len(fields) == 3 {
			target.Uplink = fields[2]
		}
		m.entries[fields[0]] = target
	}

	return m, nil
}

// Resolve validates the mapping against the bridges present on the host.
// An empty mapping resolves to DefaultPhysicalNetwork on the single bridge.
func (m BridgeMapping) Resolve(bridges []BridgeInventory) (BridgeMapping, error) {
	if len(bridges) == 0 {
		return BridgeMapping{}, ErrNoBridges
	}

	if m.Len() == 0 {
		if len(bridges) > 1 {
			return BridgeMapping{}, ErrMultipleBridgesNoMapping
		}
		return NewBridgeMapping(map[string]string{DefaultPhysicalNetwork: bridges[0].ID}), nil
	}

	present := make(map[string]bool, len(bridges))
	for _, b := range bridges {
		present[b.ID] = true
	}
	for _, physnet := range m.PhysicalNetworks() {
		target := m.entries[physnet]
		if !present[target.BridgeID] {
			return BridgeMapping{}, &UnknownBridgeError{PhysicalNetwork: physnet, BridgeID: target.BridgeID}
		}
	}
	return m, nil
}

// Lookup returns the bridge id mapped to the physical network.
func (m BridgeMapping) Lookup(physnet string) (string, bool) {
	target, ok := m.entries[physnet]
	if !ok {
		return "", false
	}
	return target.BridgeID, true
}

// Target returns the full mapping target of the physical network.
func (m BridgeMapping) Target(physnet string) (BridgeTarget, bool) {
	target, ok := m.entries[physnet]
	return target, ok
}

// Len returns the number of mapped physical networks.
func (m BridgeMapping) Len() int {
	return len(m.entries)
}

// PhysicalNetworks returns the mapped physical networks, sorted.
func (m BridgeMapping) PhysicalNetworks() []string {
	out := make([]string, 0, len(m.entries))
	for physnet := range m.entries {
		out = append(out, physnet)
	}
	sort.Strings(out)
	return out
}

// BridgeIDs returns the distinct mapped bridge ids, sorted.
func (m BridgeMapping) BridgeIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, target := range m.entries {
		if !seen[target.BridgeID] {
			seen[target.BridgeID] = true
			out = append(out, target.BridgeID)
		}
	}
	sort.Strings(out)
	return out
}

// Uplinks returns bridge id to uplink port for entries that name one.
func (m BridgeMapping) Uplinks() map[string]string {
	out := make(map[string]string)
	for _, target := range m.entries {
		if target.Uplink != "" {
			out[target.BridgeID] = target.Uplink
		}
	}
	return out
}

func (m BridgeMapping) String() string {
	parts := make([]string, 0, len(m.entries))
	for _, physnet := range m.PhysicalNetworks() {
		target := m.entries[physnet]
		part := physnet + ":" + target.BridgeID
		if target.Uplink != "" {
			part += ":" + target.Uplink
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ",")
}
