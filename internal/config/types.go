package config

import "time"

// Config is the top-level agent configuration.
type Config struct {
	// Host is the name the controller knows this hypervisor by.
	Host string `yaml:"host"`

	Agent      AgentConfig      `yaml:"agent"`
	Controller ControllerConfig `yaml:"controller"`
	Listen     ListenConfig     `yaml:"listen"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AgentConfig tunes the polling loop and VLAN management.
type AgentConfig struct {
	PollingInterval         int           `yaml:"pollingInterval"`         // seconds between idle ticks
	HealAndOptimizeInterval int           `yaml:"healAndOptimizeInterval"` // seconds between reconciliations
	ExceptionInterval       int           `yaml:"exceptionInterval"`       // seconds to back off after a failed tick
	ConfirmationTimeout     int           `yaml:"confirmationTimeout"`     // confirmation attempts before giving up
	ConfirmationTick        time.Duration `yaml:"confirmationTick"`
	ReportInterval          int           `yaml:"reportInterval"` // seconds, 0 disables state reports

	AutomatedVLANCleanup bool   `yaml:"automatedVlanCleanup"`
	DeferCleanupOnBoot   bool   `yaml:"deferCleanupOnBoot"`
	BridgeMappings       string `yaml:"bridgeMappings"`
}

// ControllerConfig locates the network controller.
type ControllerConfig struct {
	URL     string `yaml:"url"`
	AgentID string `yaml:"agentId,omitempty"`

	// IdentityDir holds tls.crt, tls.key and ca.crt. Empty disables mutual TLS.
	IdentityDir string `yaml:"identityDir,omitempty"`

	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries"`
}

// ListenConfig is the notification endpoint.
type ListenConfig struct {
	// Address is host:port. Empty disables the endpoint.
	Address string `yaml:"address"`
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// PollingIntervalDuration is the idle sleep between poller ticks.
func (a AgentConfig) PollingIntervalDuration() time.Duration {
	return seconds(a.PollingInterval)
}

// HealIntervalDuration is the time between reconciliations.
func (a AgentConfig) HealIntervalDuration() time.Duration {
	return seconds(a.HealAndOptimizeInterval)
}

// ExceptionIntervalDuration is the backoff after a failed tick.
func (a AgentConfig) ExceptionIntervalDuration() time.Duration {
	return seconds(a.ExceptionInterval)
}

// ReportIntervalDuration is the heartbeat period.
func (a AgentConfig) ReportIntervalDuration() time.Duration {
	return seconds(a.ReportInterval)
}
