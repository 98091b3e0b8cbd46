package component

// Metadata describes a registered factory.
type Metadata struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "spout" or "bolt"
	Protocol    string `json:"protocol"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// ConfigSchema describes the configuration a factory accepts.
type ConfigSchema struct {
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single configuration property.
type PropertySchema struct {
	Type        string   `json:"type"` // "string", "int", "bool", "array", "object"
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}
