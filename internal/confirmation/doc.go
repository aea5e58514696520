// Package confirmation waits for provisioned adapters to appear and then
// finalizes their VLAN tag.
//
// The controller usually announces a port before the hypervisor has created
// the virtual adapter behind it. The provisioning dispatcher therefore only
// prepares the bridge and hands each request to the Queue. The Queue runs on
// its own fixed tick, independent of the polling loop, and on every tick it
// looks for each pending request's adapter:
//
//   - Found: the adapter's PVID is set to the requested VLAN if it differs,
//     the device is reported up and the entry is removed.
//   - Not found, or the update failed: the entry's attempt counter is
//     incremented. Once it reaches the configured timeout the device is
//     reported down and the entry is removed.
//
// The timeout is counted in ticks rather than wall-clock time, so a slow
// inventory backend stretches the deadline instead of starving entries.
//
// The Queue is the only component that removes entries. Add ignores requests
// whose (MAC, partition) key is already pending.
package confirmation
