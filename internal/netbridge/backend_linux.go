package netbridge

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"

	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

const subsystem = "NetBridge"

// AliasPrefix marks a link alias that names the owning partition.
const AliasPrefix = "vm:"

// netlinkHandle is the subset of *netlink.Handle used by the backend.
type netlinkHandle interface {
	LinkList() ([]netlink.Link, error)
	LinkByName(name string) (netlink.Link, error)
	LinkByIndex(index int) (netlink.Link, error)
	BridgeVlanList() (map[int32][]*nl.BridgeVlanInfo, error)
	BridgeVlanAdd(link netlink.Link, vid uint16, pvid, untagged, self, master bool) error
	BridgeVlanDel(link netlink.Link, vid uint16, pvid, untagged, self, master bool) error
}

// Backend implements api.BridgeAPI and api.DeviceAPI for Linux bridges.
type Backend struct {
	h netlinkHandle

	// uplinks maps a managed bridge to its uplink port; an empty value means
	// the bridge has none. A nil map manages every bridge on the host.
	uplinks map[string]string

	closer func()
}

// Open connects to netlink in the current network namespace.
func Open(mapping model.BridgeMapping) (*Backend, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("failed to open netlink handle: %w", err)
	}
	b := newBackend(h, mapping)
	b.closer = h.Close
	return b, nil
}

func newBackend(h netlinkHandle, mapping model.BridgeMapping) *Backend {
	b := &Backend{h: h}
	if mapping.Len() > 0 {
		b.uplinks = make(map[string]string)
		for _, id := range mapping.BridgeIDs() {
			b.uplinks[id] = ""
		}
		for id, uplink := range mapping.Uplinks() {
			b.uplinks[id] = uplink
		}
	}
	return b
}

// WithMapping returns a backend on the same handle managing the bridges of
// mapping. Used once the mapping has been resolved against the host.
func (b *Backend) WithMapping(mapping model.BridgeMapping) *Backend {
	nb := newBackend(b.h, mapping)
	nb.closer = b.closer
	return nb
}

// Close releases the netlink handle.
func (b *Backend) Close() {
	if b.closer != nil {
		b.closer()
	}
}

func (b *Backend) managed(name string) bool {
	if b.uplinks == nil {
		return true
	}
	_, ok := b.uplinks[name]
	return ok
}

// snapshot is one consistent read of links and VLANs.
type snapshot struct {
	links   []netlink.Link
	byIndex map[int]netlink.Link
	vlans   map[int32][]*nl.BridgeVlanInfo
	bridges map[int]string // managed bridge index to name
	uplinks map[int]bool   // uplink port indexes
}

func (b *Backend) snapshot() (*snapshot, error) {
	links, err := b.h.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	vlans, err := b.h.BridgeVlanList()
	if err != nil {
		return nil, fmt.Errorf("failed to list bridge VLANs: %w", err)
	}

	s := &snapshot{
		links:   links,
		byIndex: make(map[int]netlink.Link, len(links)),
		vlans:   vlans,
		bridges: make(map[int]string),
		uplinks: make(map[int]bool),
	}
	byName := make(map[string]netlink.Link, len(links))
	for _, l := range links {
		attrs := l.Attrs()
		s.byIndex[attrs.Index] = l
		byName[attrs.Name] = l
		if l.Type() == "bridge" && b.managed(attrs.Name) {
			s.bridges[attrs.Index] = attrs.Name
		}
	}
	for _, name := range b.uplinks {
		if l, ok := byName[name]; ok && name != "" {
			s.uplinks[l.Attrs().Index] = true
		}
	}
	return s, nil
}

func (s *snapshot) bridgeIndex(name string) (int, bool) {
	for idx, n := range s.bridges {
		if n == name {
			return idx, true
		}
	}
	return 0, false
}

// splitVLANs separates a port's VLAN entries into its PVID and tagged VLANs.
func splitVLANs(infos []*nl.BridgeVlanInfo) (int, []int) {
	pvid := 0
	var tagged []int
	for _, info := range infos {
		if info.PortVID() {
			pvid = int(info.Vid)
			continue
		}
		tagged = append(tagged, int(info.Vid))
	}
	sort.Ints(tagged)
	return pvid, tagged
}

func vlanSet(infos []*nl.BridgeVlanInfo) model.VLANSet {
	s := model.NewVLANSet()
	for _, info := range infos {
		s.Add(int(info.Vid))
	}
	return s
}

// ListBridges returns the managed bridges found on the host.
func (b *Backend) ListBridges(_ context.Context) ([]model.BridgeInventory, error) {
	s, err := b.snapshot()
	if err != nil {
		return nil, err
	}

	out := make([]model.BridgeInventory, 0, len(s.bridges))
	for idx, name := range s.bridges {
		pvid, tagged := splitVLANs(s.vlans[int32(idx)])
		live, err := b.liveVLANs(s, name)
		if err != nil {
			return nil, err
		}
		out = append(out, model.BridgeInventory{
			ID:         name,
			LoadGroups: []model.LoadGroup{{PVID: pvid, TaggedVLANs: tagged}},
			VLANs:      live,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListVLANs returns the live VLANs of a bridge.
func (b *Backend) ListVLANs(_ context.Context, bridgeID string) (model.VLANSet, error) {
	s, err := b.snapshot()
	if err != nil {
		return nil, err
	}
	return b.liveVLANs(s, bridgeID)
}

func (b *Backend) liveVLANs(s *snapshot, bridgeID string) (model.VLANSet, error) {
	link, _, err := b.vlanTarget(s, bridgeID)
	if err != nil {
		return nil, err
	}
	return vlanSet(s.vlans[int32(link.Attrs().Index)]), nil
}

// vlanTarget returns the link whose VLANs are the bridge's live set and
// whether it is the bridge itself.
func (b *Backend) vlanTarget(s *snapshot, bridgeID string) (netlink.Link, bool, error) {
	idx, ok := s.bridgeIndex(bridgeID)
	if !ok {
		return nil, false, fmt.Errorf("bridge %s not found", bridgeID)
	}

	uplink := b.uplinks[bridgeID]
	if uplink == "" {
		return s.byIndex[idx], true, nil
	}

	for _, l := range s.links {
		attrs := l.Attrs()
		if attrs.Name != uplink {
			continue
		}
		if attrs.MasterIndex != idx {
			return nil, false, fmt.Errorf("uplink %s is not a port of bridge %s", uplink, bridgeID)
		}
		return l, false, nil
	}
	return nil, false, fmt.Errorf("uplink %s of bridge %s not found", uplink, bridgeID)
}

// EnsureVLANsOnBridge adds the VLANs missing from the bridge's uplink.
func (b *Backend) EnsureVLANsOnBridge(_ context.Context, bridgeID string, vlans model.VLANSet) error {
	s, err := b.snapshot()
	if err != nil {
		return err
	}
	link, self, err := b.vlanTarget(s, bridgeID)
	if err != nil {
		return err
	}

	present := vlanSet(s.vlans[int32(link.Attrs().Index)])
	for _, vlan := range model.SortedVLANs(vlans.Difference(present)) {
		if err := validVLAN(vlan); err != nil {
			return err
		}
		if err := b.h.BridgeVlanAdd(link, uint16(vlan), false, false, self, !self); err != nil {
			return fmt.Errorf("failed to add VLAN %d to %s: %w", vlan, link.Attrs().Name, err)
		}
		logging.Info(subsystem, "Added VLAN %d to %s of bridge %s", vlan, link.Attrs().Name, bridgeID)
	}
	return nil
}

// RemoveVLANFromBridge deletes a VLAN from the bridge's uplink.
func (b *Backend) RemoveVLANFromBridge(_ context.Context, bridgeID string, vlan int) error {
	if err := validVLAN(vlan); err != nil {
		return err
	}
	s, err := b.snapshot()
	if err != nil {
		return err
	}
	link, self, err := b.vlanTarget(s, bridgeID)
	if err != nil {
		return err
	}
	if err := b.h.BridgeVlanDel(link, uint16(vlan), false, false, self, !self); err != nil {
		return fmt.Errorf("failed to remove VLAN %d from %s: %w", vlan, link.Attrs().Name, err)
	}
	return nil
}

// ListAdapters returns the VM ports of managed bridges, optionally limited to
// one partition.
func (b *Backend) ListAdapters(_ context.Context, partitionID string) ([]model.DeviceInventory, error) {
	s, err := b.snapshot()
	if err != nil {
		return nil, err
	}

	var out []model.DeviceInventory
	for _, l := range s.links {
		adapter, ok := s.adapter(l)
		if !ok {
			continue
		}
		if partitionID != "" && adapter.PartitionID != partitionID {
			continue
		}
		out = append(out, adapter)
	}
	return out, nil
}

// adapter converts a link into a DeviceInventory when it is a VM port of a
// managed bridge.
func (s *snapshot) adapter(l netlink.Link) (model.DeviceInventory, bool) {
	attrs := l.Attrs()
	bridgeID, ok := s.bridges[attrs.MasterIndex]
	if !ok || s.uplinks[attrs.Index] {
		return model.DeviceInventory{}, false
	}
	partition := PartitionFromAlias(attrs.Alias)
	if partition == "" {
		return model.DeviceInventory{}, false
	}

	pvid, tagged := splitVLANs(s.vlans[int32(attrs.Index)])
	return model.DeviceInventory{
		MAC:         normalizeHardwareAddr(attrs.HardwareAddr),
		PVID:        pvid,
		TaggedVLANs: tagged,
		PartitionID: partition,
		BridgeID:    bridgeID,
		Handle:      attrs.Index,
	}, true
}

// UpdateAdapterVLANTag makes vlan the untagged PVID of the adapter's port and
// removes the previous PVID.
func (b *Backend) UpdateAdapterVLANTag(_ context.Context, adapter model.DeviceInventory, vlan int) error {
	if err := validVLAN(vlan); err != nil {
		return err
	}
	idx, ok := adapter.Handle.(int)
	if !ok {
		return fmt.Errorf("adapter %s has no link handle", adapter.MAC)
	}
	link, err := b.h.LinkByIndex(idx)
	if err != nil {
		return fmt.Errorf("failed to find link of adapter %s: %w", adapter.MAC, err)
	}

	if err := b.h.BridgeVlanAdd(link, uint16(vlan), true, true, false, true); err != nil {
		return fmt.Errorf("failed to set PVID %d on %s: %w", vlan, link.Attrs().Name, err)
	}
	if adapter.PVID > 0 && adapter.PVID != vlan {
		if err := b.h.BridgeVlanDel(link, uint16(adapter.PVID), false, false, false, true); err != nil {
			return fmt.Errorf("failed to remove old PVID %d from %s: %w", adapter.PVID, link.Attrs().Name, err)
		}
	}
	return nil
}

// PartitionFromAlias extracts the partition id from a link alias. Aliases
// without the "vm:" prefix are used verbatim; an empty alias yields "".
func PartitionFromAlias(alias string) string {
	alias = strings.TrimSpace(alias)
	alias = strings.TrimPrefix(alias, AliasPrefix)
	if alias == "" {
		return ""
	}
	return model.PartitionIDFromDeviceID(alias)
}

func normalizeHardwareAddr(hw net.HardwareAddr) string {
	return model.NormalizeMAC(hw.String())
}

func validVLAN(vlan int) error {
	if vlan < 1 || vlan > 4094 {
		return fmt.Errorf("invalid VLAN id %d", vlan)
	}
	return nil
}
