package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

// Validate checks the configuration and returns every problem found, or nil.
func (c Config) Validate() error {
	var errs ConfigurationErrorCollection

	if strings.TrimSpace(c.Host) == "" {
		errs.AddValidation("host", "is required",
			"Set host in config.yaml or pass --host")
	}

	validatePositive(&errs, "agent.pollingInterval", c.Agent.PollingInterval)
	validatePositive(&errs, "agent.healAndOptimizeInterval", c.Agent.HealAndOptimizeInterval)
	validatePositive(&errs, "agent.exceptionInterval", c.Agent.ExceptionInterval)
	validatePositive(&errs, "agent.confirmationTimeout", c.Agent.ConfirmationTimeout)
	if c.Agent.ConfirmationTick <= 0 {
		errs.AddValidation("agent.confirmationTick", fmt.Sprintf("must be a positive duration, got %s", c.Agent.ConfirmationTick),
			"Use a Go duration such as 1s")
	}
	if c.Agent.ReportInterval < 0 {
		errs.AddValidation("agent.reportInterval", fmt.Sprintf("must not be negative, got %d", c.Agent.ReportInterval),
			"Use 0 to disable state reports")
	}
	if _, err := model.ParseBridgeMappings(c.Agent.BridgeMappings); err != nil {
		errs.AddValidation("agent.bridgeMappings", err.Error(),
			"Use comma separated physical_network:bridge[:uplink] entries, e.g. default:br0:eth1")
	}

	validateControllerURL(&errs, c.Controller)
	if c.Controller.Timeout <= 0 {
		errs.AddValidation("controller.timeout", "must be a positive duration")
	}
	if c.Controller.MaxRetries < 0 {
		errs.AddValidation("controller.maxRetries", "must not be negative")
	}

	if c.Listen.Address != "" {
		if _, _, err := net.SplitHostPort(c.Listen.Address); err != nil {
			errs.AddValidation("listen.address", err.Error(),
				"Use host:port, e.g. 127.0.0.1:9797, or leave empty to disable the endpoint")
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs.AddValidation("logging.level", err.Error(), "Use one of debug, info, warn, error")
	}
	switch logging.Format(c.Logging.Format) {
	case "", logging.FormatText, logging.FormatJSON:
	default:
		errs.AddValidation("logging.format", fmt.Sprintf("unknown format %q", c.Logging.Format), "Use text or json")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validatePositive(errs *ConfigurationErrorCollection, field string, v int) {
	if v <= 0 {
		errs.AddValidation(field, fmt.Sprintf("must be greater than zero, got %d", v))
	}
}

func validateControllerURL(errs *ConfigurationErrorCollection, c ControllerConfig) {
	if c.URL == "" {
		errs.AddValidation("controller.url", "is required", "Set controller.url, e.g. https://controller:9696")
		return
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" {
		errs.AddValidation("controller.url", fmt.Sprintf("invalid URL %q", c.URL))
		return
	}
	switch u.Scheme {
	case "http":
		if c.IdentityDir != "" {
			errs.AddValidation("controller.identityDir", "client certificates require an https controller URL",
				"Switch controller.url to https or remove controller.identityDir")
		}
	case "https":
	default:
		errs.AddValidation("controller.url", fmt.Sprintf("unsupported scheme %q", u.Scheme), "Use http or https")
	}
}
