package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InjectFault sets a single named fault preset in path's fault_injection
// section, clearing any previously active fault first — only one fault
// preset is active at a time, mirroring the CLI's behavior.
func InjectFault(path string, name string) error {
	preset, ok := FaultPresets[name]
	if !ok {
		return fmt.Errorf("config: unknown fault preset %q", name)
	}
	return rewriteFaults(path, preset)
}

// ClearFaults resets path's fault_injection section to all-zero values.
func ClearFaults(path string) error {
	return rewriteFaults(path, FaultConfig{})
}

// rewriteFaults replaces fault_injection wholesale rather than merging
// into the existing values the way cli.py's faults.update(...) does;
// intentional simplification, so unlike the original only one fault
// preset can be active at a time here.
func rewriteFaults(path string, faults FaultConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return &ConfigError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	doc.FaultInjection = faults

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return &ConfigError{Path: path, Err: fmt.Errorf("encode: %w", err)}
	}
	return os.WriteFile(path, out, 0o644)
}
