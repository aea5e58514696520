// Package reconciler implements the heal and optimize cycle that converges
// bridge VLAN membership with the desired state.
//
// # Desired state
//
// For every managed bridge the engine computes the set of VLANs that must
// stay bridged to the physical network:
//
//   - VLANs the controller assigns to adapters observed on the host, for
//     adapters whose physical network maps to the bridge
//   - every VLAN in use by an adapter attached to the bridge, whether or not
//     the controller manages it
//   - the VLANs of the bridge's primary load group
//   - the VLANs of provision requests still pending confirmation
//
// Controller VLANs that are missing are added first. Everything else on the
// bridge is stale and is removed one VLAN at a time; a failed removal is
// logged and does not stop the others.
//
// # Safety
//
// All mutations of a bridge happen under its lock in bridgelock, shared with
// the provisioning dispatcher. Removals can be disabled entirely
// (AutomatedCleanup) or deferred on the first heal after startup
// (DeferCleanupOnBoot) so that requests dispatched before a restart get a
// chance to repopulate the confirmation queue.
//
// # Usage
//
//	engine := reconciler.NewEngine(reconciler.EngineConfig{
//	    Controller: client,
//	    Bridges:    backend,
//	    Devices:    backend,
//	    Pending:    queue,
//	    Mapping:    mapping,
//	    Locks:      locks,
//	    Options:    reconciler.Options{AutomatedCleanup: true},
//	})
//	report, err := engine.Heal(ctx, true)
//
// Each run yields a HealReport which is logged, exported as metrics, and
// retained in HealStats for the status endpoint.
package reconciler
