package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"bridgeagent/internal/config"
	"bridgeagent/internal/controller"
	"bridgeagent/internal/model"
	"bridgeagent/internal/netbridge"
	"bridgeagent/pkg/logging"
)

// Application is the bootstrapped agent.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "/etc/bridgeagent", "")
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	settings config.Config
	services *Services
	closer   func()
}

// NewApplication loads and validates the configuration, opens the bridge
// backend, resolves the bridge mapping and builds every service. Any error
// here is fatal.
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := netbridge.Open(mustParseMapping(settings.Agent.BridgeMappings))
	if err != nil {
		return nil, fmt.Errorf("failed to open bridge backend: %w", err)
	}

	mapping, err := ResolveMapping(ctx, backend, settings.Agent.BridgeMappings)
	if err != nil {
		backend.Close()
		logging.Error("Bootstrap", err, "Invalid bridge mappings")
		return nil, fmt.Errorf("invalid bridge mappings: %w", err)
	}
	backend = backend.WithMapping(mapping)
	checkCleanupScope(mapping, settings.Agent.AutomatedVLANCleanup)

	var identity *controller.Identity
	if settings.Controller.IdentityDir != "" {
		identity, err = controller.LoadIdentity(controller.IdentityConfig{Dir: settings.Controller.IdentityDir})
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to load controller identity: %w", err)
		}
	}

	client, err := controller.NewClient(controller.ClientConfig{
		URL:        settings.Controller.URL,
		AgentID:    agentID(settings),
		Host:       settings.Host,
		Timeout:    settings.Controller.Timeout,
		MaxRetries: settings.Controller.MaxRetries,
		Identity:   identity,
	})
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to create controller client: %w", err)
	}

	services := InitializeServices(settings, mapping, Dependencies{
		Controller: client,
		Bridges:    backend,
		Devices:    backend,
		Detector:   netbridge.NewDetector(backend, client),
		Identity:   identity,
	})

	return &Application{
		config:   cfg,
		settings: settings,
		services: services,
		closer:   backend.Close,
	}, nil
}

// LoadSettings loads config.yaml, applies command line overrides, validates
// the result and initialises logging from it.
func LoadSettings(cfg *Config) (config.Config, error) {
	// Early logging so configuration problems are visible.
	initLogging(cfg.Debug, config.LoggingConfig{})

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}
	settings, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", configPath)
		return config.Config{}, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	if cfg.Host != "" {
		settings.Host = cfg.Host
	}
	if cfg.Debug {
		settings.Logging.Level = "debug"
	}

	if err := settings.Validate(); err != nil {
		var errs config.ConfigurationErrorCollection
		if errors.As(err, &errs) {
			fmt.Fprintln(os.Stderr, errs.GetDetailedReport())
		}
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	initLogging(cfg.Debug, settings.Logging)
	return settings, nil
}

func initLogging(debug bool, lc config.LoggingConfig) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	if debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.Format(lc.Format), os.Stdout)
}

// mustParseMapping parses a mapping that Validate has already accepted.
func mustParseMapping(raw string) model.BridgeMapping {
	m, err := model.ParseBridgeMappings(raw)
	if err != nil {
		panic(fmt.Sprintf("bridge mappings passed validation but do not parse: %v", err))
	}
	return m
}

func agentID(settings config.Config) string {
	if settings.Controller.AgentID != "" {
		return settings.Controller.AgentID
	}
	return "bridgeagent-" + settings.Host
}

// Services returns the running components.
func (a *Application) Services() *Services {
	return a.services
}

// Run runs the agent until ctx is cancelled or SIGINT/SIGTERM arrives.
func (a *Application) Run(ctx context.Context) error {
	defer a.closer()
	return runAgent(ctx, a.services)
}
