// Package logging provides the structured logging facade used across bridgeagent.
//
// The package wraps Go's standard slog package behind a small set of
// subsystem-scoped helpers so that every component logs in the same shape:
// a message, a subsystem attribute naming the component, and an optional
// error attribute.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stdout)
//
//	logging.Info("Poller", "No changes, sleeping %s", interval)
//	logging.Warn("Provisioner", "No bridge mapped for physical network %s", physnet)
//	logging.Error("Reconciler", err, "Failed to remove VLAN %d from %s", vlan, bridge)
//
// # Levels
//
//   - Debug: per-tick detail (sleeping, snapshot sizes)
//   - Info: state transitions (device up, heal summaries)
//   - Warn: corrective or degraded actions (VLAN cleanup, dropped requests)
//   - Error: failed external calls and terminal per-request failures
//
// Until Init is called, Debug and Info are discarded and Warn/Error are written
// to stderr, which keeps early bootstrap failures visible.
package logging
