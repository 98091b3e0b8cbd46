// Package types contains configuration types shared by the config and
// component packages.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/c360/stormbridge/errors"
)

// ComponentType is the role a component plays in a topology.
type ComponentType string

// Component types.
const (
	ComponentTypeSpout ComponentType = "spout"
	ComponentTypeBolt  ComponentType = "bolt"
)

// String implements fmt.Stringer.
func (ct ComponentType) String() string {
	return string(ct)
}

// ComponentConfig describes one component instance. The instance name is the
// key it is stored under in the components map.
type ComponentConfig struct {
	Type    ComponentType   `json:"type"`             // spout or bolt
	Name    string          `json:"name"`             // factory name, e.g. "mqtt", "cassandra"
	Enabled bool            `json:"enabled"`          // disabled components are skipped
	Input   string          `json:"input,omitempty"`  // subject a bolt consumes
	Output  string          `json:"output,omitempty"` // subject emitted tuples are published on
	Config  json.RawMessage `json:"config,omitempty"` // factory-specific configuration
}

// Validate checks the fields every component needs.
func (c ComponentConfig) Validate() error {
	if c.Type == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
			"component type cannot be empty")
	}
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
			"component factory name cannot be empty")
	}

	switch c.Type {
	case ComponentTypeSpout:
		if c.Output == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
				"spout needs an output subject")
		}
	case ComponentTypeBolt:
		if c.Input == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "ComponentConfig", "Validate",
				"bolt needs an input subject")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ComponentConfig", "Validate",
			fmt.Sprintf("invalid component type: %s", c.Type))
	}
	return nil
}
