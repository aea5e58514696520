package model

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// VLANSet is a set of VLAN ids.
type VLANSet = mapset.Set[int]

// NewVLANSet returns a VLANSet holding the given ids.
func NewVLANSet(vlans ...int) VLANSet {
	return mapset.NewSet[int](vlans...)
}

// SortedVLANs returns the members of s in ascending order.
func SortedVLANs(s VLANSet) []int {
	if s == nil {
		return nil
	}
	out := s.ToSlice()
	slices.Sort(out)
	return out
}

// LoadGroup is a VLAN grouping within a bridge.
type LoadGroup struct {
	PVID        int
	TaggedVLANs []int
}

// VLANs returns the PVID and tagged VLANs of the group.
func (g LoadGroup) VLANs() VLANSet {
	s := NewVLANSet(g.TaggedVLANs...)
	if g.PVID > 0 {
		s.Add(g.PVID)
	}
	return s
}

// BridgeInventory is a snapshot of one bridge.
type BridgeInventory struct {
	ID string

	// LoadGroups is ordered; the first group is primary and its VLANs are
	// never removed.
	LoadGroups []LoadGroup

	// VLANs is the live set of VLANs bridged to the physical network.
	VLANs VLANSet
}

// PrimaryVLANs returns the VLANs of the primary load group, or an empty set
// when the bridge reports no load groups.
func (b BridgeInventory) PrimaryVLANs() VLANSet {
	if len(b.LoadGroups) == 0 {
		return NewVLANSet()
	}
	return b.LoadGroups[0].VLANs()
}

// DeviceInventory is a snapshot of one virtual adapter.
type DeviceInventory struct {
	MAC         string
	PVID        int
	TaggedVLANs []int
	PartitionID string

	// BridgeID is the bridge the adapter is attached to. Empty means the
	// adapter is internal only.
	BridgeID string

	// Handle is backend specific and passed back on updates.
	Handle any
}

// VLANs returns every VLAN the adapter uses.
func (d DeviceInventory) VLANs() VLANSet {
	s := NewVLANSet(d.TaggedVLANs...)
	if d.PVID > 0 {
		s.Add(d.PVID)
	}
	return s
}

// FindAdapterByMAC returns the adapter whose MAC matches, comparing in
// normalised form.
func FindAdapterByMAC(mac string, adapters []DeviceInventory) (DeviceInventory, bool) {
	mac = NormalizeMAC(mac)
	for _, a := range adapters {
		if NormalizeMAC(a.MAC) == mac {
			return a, true
		}
	}
	return DeviceInventory{}, false
}
