// Package config loads the agent configuration.
//
// Configuration lives in a single directory (default /etc/bridgeagent,
// overridable with --config-path) containing config.yaml. Defaults are
// applied first, the YAML file is overlaid on top, and command line flags
// override both. A missing config.yaml is not an error.
//
// # File Format
//
//	host: compute-01
//	agent:
//	  pollingInterval: 2            # seconds
//	  healAndOptimizeInterval: 300  # seconds
//	  exceptionInterval: 5          # seconds
//	  confirmationTimeout: 300      # attempts
//	  confirmationTick: 1s
//	  reportInterval: 30            # seconds, 0 disables
//	  automatedVlanCleanup: true
//	  deferCleanupOnBoot: false
//	  bridgeMappings: "default:br0:eth1"
//	controller:
//	  url: https://controller:9696
//	  identityDir: /etc/bridgeagent/pki
//	  timeout: 30s
//	  maxRetries: 3
//	listen:
//	  address: 127.0.0.1:9797
//	logging:
//	  level: info
//	  format: text
//
// # Validation
//
// Validate checks every field and returns all problems at once as a
// ConfigurationErrorCollection, each entry carrying suggestions for the
// operator.
package config
