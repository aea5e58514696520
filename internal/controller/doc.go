// Package controller connects the agent to the remote network controller.
//
// It holds the agent's three controller-facing pieces:
//
//   - Client, a JSON over HTTP(S) implementation of api.ControllerAPI with
//     retries (hashicorp/go-retryablehttp) and optional mutual TLS.
//   - Server, the inbound endpoint (gorilla/mux) where the controller pushes
//     port-update and network-delete notifications, plus health, status
//     and metrics routes.
//   - Heartbeat, which periodically reports the agent state and keeps the
//     systemd watchdog fed.
//
// # Mutual TLS
//
// When an identity directory is configured, the client presents the
// certificate in tls.crt/tls.key and trusts ca.crt. An Identity reloads the
// files whenever they change on disk, so certificate rotation needs no
// restart:
//
//	id, err := controller.LoadIdentity(controller.IdentityConfig{Dir: "/etc/bridgeagent/pki"})
//	client, err := controller.NewClient(controller.ClientConfig{URL: url, Host: host, Identity: id})
//	go id.Watch(ctx)
package controller
