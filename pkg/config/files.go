package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadYAML loads configuration from a YAML file. Durations may be written
// as "25ms" or "5s".
func LoadYAML(path string, target interface{}) error {
	return readInto(path, "YAML", yaml.Unmarshal, target)
}

// LoadJSON loads configuration from a JSON file. Durations are nanoseconds.
func LoadJSON(path string, target interface{}) error {
	return readInto(path, "JSON", json.Unmarshal, target)
}

// SaveYAML writes config as YAML.
func SaveYAML(path string, config interface{}) error {
	return writeFrom(path, "YAML", yaml.Marshal, config)
}

// SaveJSON writes config as indented JSON.
func SaveJSON(path string, config interface{}) error {
	return writeFrom(path, "JSON", func(v interface{}) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}, config)
}

func readInto(path, format string, unmarshal func([]byte, interface{}) error, target interface{}) error {
	// #nosec G304 -- path is the operator's -config flag.
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s file %s: %w", format, path, err)
	}
	if err := unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", format, err)
	}
	return nil
}

func writeFrom(path, format string, marshal func(interface{}) ([]byte, error), config interface{}) error {
	data, err := marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", format, err)
	}
	// Store DSNs may carry credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s file: %w", format, err)
	}
	return nil
}
