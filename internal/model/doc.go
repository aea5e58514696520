// Package model holds the value types shared by the reconciliation core:
// provision requests and their dedup key, bridge and adapter inventory
// snapshots, the physical network to bridge mapping, and controller records.
//
// Types in this package carry no behaviour beyond construction, lookups and
// normalisation. They are safe to copy; none of them hold references to the
// backends that produced them except DeviceInventory.Handle, which is opaque.
package model
