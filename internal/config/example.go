package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DumpExample writes an example configuration to the provided writer
func DumpExample(w io.Writer) error {
	example := Default()
	example.Node = "living-room"
	example.Diagnostics.Enabled = true
	example.Bindings = map[string]map[string]string{
		"heartbeat": {
			"interval": "30000",
			"enabled":  "true",
		},
	}
	example.Items = []ItemBinding{
		{Item: "Clock", Binding: "heartbeat", Config: "datetime"},
		{Item: "Uptime", Binding: "heartbeat", Config: "epoch"},
	}

	var node yaml.Node
	if err := node.Encode(example); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := `# =============================================================================
# homebus Example Configuration
# =============================================================================
# Copy this file to config.yaml and modify it according to your needs.
# TOML (.toml) and JSON (.json) files with the same keys are accepted too.
#
# Environment variable overrides follow the pattern: HOMEBUS_<SECTION>_<KEY>
# Example: HOMEBUS_THREADPOOL_EVENTS_MAX, HOMEBUS_LOG_LEVEL
# =============================================================================

`
	if _, err := fmt.Fprint(w, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	footer := `
# =============================================================================
# Notes:
# =============================================================================
#
# 1. Thread pools:
#    - "bindings" runs binding command and update handlers
#    - "events" delivers bus events to subscribers
#    - "background" runs periodic binding executions
#
# 2. Bindings:
#    - Each entry under "bindings" is posted as the binding's properties
#    - Each entry under "items" is posted as an item configuration
#    - An empty item config removes the item from its binding
#
# 3. Diagnostics:
#    - Serves /health, /ready, /metrics and /api/v1 on host:port
# =============================================================================
`
	if _, err := fmt.Fprint(w, footer); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}

	return nil
}
