package netbridge

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netlink/nl"
)

type vlanOp struct {
	Link     string
	VID      int
	PVID     bool
	Untagged bool
	Self     bool
	Master   bool
	Delete   bool
}

// fakeNetlink keeps links and per-port VLAN entries in memory.
type fakeNetlink struct {
	mu    sync.Mutex
	links []netlink.Link
	vlans map[int32][]*nl.BridgeVlanInfo
	ops   []vlanOp

	addErr error
}

func newFakeNetlink() *fakeNetlink {
	return &fakeNetlink{vlans: make(map[int32][]*nl.BridgeVlanInfo)}
}

func (f *fakeNetlink) addBridge(index int, name string) {
	f.links = append(f.links, &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Index: index, Name: name}})
}

func (f *fakeNetlink) addPort(index int, name string, master int, mac, alias string) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(err)
	}
	f.links = append(f.links, &netlink.Device{LinkAttrs: netlink.LinkAttrs{
		Index:        index,
		Name:         name,
		MasterIndex:  master,
		HardwareAddr: hw,
		Alias:        alias,
	}})
}

func (f *fakeNetlink) setVLANs(index int, pvid int, tagged ...int) {
	var infos []*nl.BridgeVlanInfo
	if pvid > 0 {
		infos = append(infos, &nl.BridgeVlanInfo{Vid: uint16(pvid), Flags: nl.BRIDGE_VLAN_INFO_PVID | nl.BRIDGE_VLAN_INFO_UNTAGGED})
	}
	for _, v := range tagged {
		infos = append(infos, &nl.BridgeVlanInfo{Vid: uint16(v)})
	}
	f.vlans[int32(index)] = infos
}

func (f *fakeNetlink) LinkList() ([]netlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]netlink.Link(nil), f.links...), nil
}

func (f *fakeNetlink) LinkByName(name string) (netlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Attrs().Name == name {
			return l, nil
		}
	}
	return nil, fmt.Errorf("link %s not found", name)
}

func (f *fakeNetlink) LinkByIndex(index int) (netlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Attrs().Index == index {
			return l, nil
		}
	}
	return nil, fmt.Errorf("link %d not found", index)
}

func (f *fakeNetlink) BridgeVlanList() (map[int32][]*nl.BridgeVlanInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int32][]*nl.BridgeVlanInfo, len(f.vlans))
	for k, v := range f.vlans {
		out[k] = append([]*nl.BridgeVlanInfo(nil), v...)
	}
	return out, nil
}

func (f *fakeNetlink) BridgeVlanAdd(link netlink.Link, vid uint16, pvid, untagged, self, master bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, vlanOp{Link: link.Attrs().Name, VID: int(vid), PVID: pvid, Untagged: untagged, Self: self, Master: master})
	if f.addErr != nil {
		return f.addErr
	}

	idx := int32(link.Attrs().Index)
	var flags uint16
	if pvid {
		flags |= nl.BRIDGE_VLAN_INFO_PVID
		// A port has a single PVID.
		for _, info := range f.vlans[idx] {
			info.Flags &^= nl.BRIDGE_VLAN_INFO_PVID
		}
	}
	if untagged {
		flags |= nl.BRIDGE_VLAN_INFO_UNTAGGED
	}
	kept := f.vlans[idx][:0]
	for _, info := range f.vlans[idx] {
		if int(info.Vid) != int(vid) {
			kept = append(kept, info)
		}
	}
	f.vlans[idx] = append(kept, &nl.BridgeVlanInfo{Vid: vid, Flags: flags})
	sort.Slice(f.vlans[idx], func(i, j int) bool { return f.vlans[idx][i].Vid < f.vlans[idx][j].Vid })
	return nil
}

func (f *fakeNetlink) BridgeVlanDel(link netlink.Link, vid uint16, pvid, untagged, self, master bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, vlanOp{Link: link.Attrs().Name, VID: int(vid), PVID: pvid, Untagged: untagged, Self: self, Master: master, Delete: true})

	idx := int32(link.Attrs().Index)
	kept := f.vlans[idx][:0]
	for _, info := range f.vlans[idx] {
		if info.Vid != vid {
			kept = append(kept, info)
		}
	}
	f.vlans[idx] = kept
	return nil
}

func (f *fakeNetlink) recorded() []vlanOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vlanOp(nil), f.ops...)
}
