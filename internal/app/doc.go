// Package app bootstraps and runs the agent.
//
// # Architecture Overview
//
//  1. Bootstrap (bootstrap.go): logging, configuration loading and
//     validation, opening the Linux bridge backend and resolving the bridge
//     mapping against the bridges actually present on the host.
//  2. Configuration (config.go): the command line settings that drive
//     bootstrap.
//  3. Services (services.go): builds every component in dependency order and
//     runs them under one errgroup.
//  4. Modes (modes.go): signal handling for the long running agent.
//
// # Service Graph
//
//	PortBuffer ──► Poller ──► Dispatcher ──► ConfirmationQueue
//	                 │             │                 │
//	                 ▼             ▼                 ▼
//	          Reconciler ◄── bridge locks      controller (device up/down)
//
// The notification server feeds the PortBuffer, the link detector feeds the
// poller, and the heartbeat reports the queue length to the controller.
//
// # Startup Failures
//
// Startup fails, and the process exits, when the configuration is invalid,
// the host has no bridges, the mapping names a bridge that does not exist,
// or the mapping is empty while the host has several bridges. Nothing after
// startup terminates the process; runtime errors are logged and retried.
package app
