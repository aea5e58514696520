package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"bridgeagent/pkg/logging"
)

const configFileName = "config.yaml"

// LoadConfig reads config.yaml from configPath on top of the defaults.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, NewConfigurationError(configFilePath, "", "io", fmt.Sprintf("cannot read configuration: %v", err))
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, NewConfigurationErrorWithDetails(configFilePath, "", "parse",
			"malformed configuration", err.Error(),
			[]string{"Check the YAML syntax and key names against the documented layout"})
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}
