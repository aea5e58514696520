// Package netbridge manages VLAN-filtering Linux bridges over netlink.
//
// Each managed bridge is named by the bridge mapping. The optional third
// field of a mapping entry names the bridge's uplink port, the trunk towards
// the physical network:
//
//	default:br0:eth1
//
// The VLANs configured on the uplink are the bridge's live VLANs, the ones
// reconciliation adds and removes. VLANs on the bridge device itself (its
// "self" entry) carry host traffic and form the primary load group, which is
// never removed. Without an uplink the self entry is used for both.
//
// Every other port enslaved to a managed bridge is a virtual adapter when its
// link alias names a partition, following the libvirt convention
// "vm:<partition>". Ports without an alias are not treated as adapters. An
// adapter's PVID is its untagged port VLAN.
//
// The Detector subscribes to link updates and turns newly attached adapters
// that the controller knows about into provision requests.
package netbridge
