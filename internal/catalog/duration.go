package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes "45s" / "2m30s" style literals from YAML and JSON.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("catalog: duration must be a string like \"45s\": %w", err)
	}
	return d.parse(raw)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("catalog: duration must be a string like \"45s\": %w", err)
	}
	return d.parse(raw)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) parse(raw string) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("catalog: bad duration %q: %w", raw, err)
	}
	if parsed < 0 {
		return fmt.Errorf("catalog: duration %q must not be negative", raw)
	}
	*d = Duration(parsed)
	return nil
}
