package config

import (
	"os"
	"time"
)

const (
	DefaultConfigPath = "/etc/bridgeagent"

	DefaultPollingInterval         = 2
	DefaultHealAndOptimizeInterval = 300
	DefaultExceptionInterval       = 5
	DefaultConfirmationTimeout     = 300
	DefaultConfirmationTick        = time.Second
	DefaultReportInterval          = 30

	DefaultControllerTimeout    = 30 * time.Second
	DefaultControllerMaxRetries = 3

	DefaultListenAddress = "127.0.0.1:9797"
)

// hostname is swapped in tests.
var hostname = os.Hostname

// GetDefaultConfig returns the configuration used when config.yaml is absent.
func GetDefaultConfig() Config {
	host, err := hostname()
	if err != nil {
		host = ""
	}

	return Config{
		Host: host,
		Agent: AgentConfig{
			PollingInterval:         DefaultPollingInterval,
			HealAndOptimizeInterval: DefaultHealAndOptimizeInterval,
			ExceptionInterval:       DefaultExceptionInterval,
			ConfirmationTimeout:     DefaultConfirmationTimeout,
			ConfirmationTick:        DefaultConfirmationTick,
			ReportInterval:          DefaultReportInterval,
			AutomatedVLANCleanup:    true,
		},
		Controller: ControllerConfig{
			Timeout:    DefaultControllerTimeout,
			MaxRetries: DefaultControllerMaxRetries,
		},
		Listen: ListenConfig{
			Address: DefaultListenAddress,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
