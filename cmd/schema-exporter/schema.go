package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/componentregistry"
)

// ComponentSchema is the exported JSON Schema of one component config.
type ComponentSchema struct {
	Schema      string                    `json:"$schema"`
	ID          string                    `json:"$id"`
	Type        string                    `json:"type"`
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Properties  map[string]PropertySchema `json:"properties"`
	Required    []string                  `json:"required"`
	Metadata    component.Metadata        `json:"x-component-metadata"`
}

// PropertySchema is a JSON Schema property definition.
type PropertySchema struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Default     any             `json:"default,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Items       *PropertySchema `json:"items,omitempty"`
}

func newRegistry() (*component.Registry, error) {
	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// extractSchema converts a registered config schema to JSON Schema.
func extractSchema(meta component.Metadata, schema component.ConfigSchema) ComponentSchema {
	properties := make(map[string]PropertySchema, len(schema.Properties))
	for propName, prop := range schema.Properties {
		p := PropertySchema{
			Type:        mapTypeToJSONSchema(prop.Type),
			Description: prop.Description,
			Default:     prop.Default,
			Enum:        prop.Enum,
		}
		if prop.Type == "array" {
			p.Items = &PropertySchema{Type: "string"}
		}
		properties[propName] = p
	}

	// Required is an empty array rather than null
	required := append([]string{}, schema.Required...)
	sort.Strings(required)

	return ComponentSchema{
		Schema:      "http://json-schema.org/draft-07/schema#",
		ID:          fmt.Sprintf("%s.v1.json", meta.Name),
		Type:        "object",
		Title:       fmt.Sprintf("%s Configuration", meta.Name),
		Description: meta.Description,
		Properties:  properties,
		Required:    required,
		Metadata:    meta,
	}
}

// mapTypeToJSONSchema maps component property types to JSON Schema types.
func mapTypeToJSONSchema(propType string) string {
	switch propType {
	case "int":
		return "integer"
	case "float":
		return "number"
	case "bool":
		return "boolean"
	case "array":
		return "array"
	case "object", "cache":
		return "object"
	default:
		return "string"
	}
}

// componentSchemas returns the schema of every registered component by name.
func componentSchemas(registry *component.Registry) (map[string]ComponentSchema, error) {
	out := make(map[string]ComponentSchema)
	for name, meta := range registry.ListAvailable() {
		schema, err := registry.GetComponentSchema(name)
		if err != nil {
			return nil, err
		}
		out[name] = extractSchema(meta, schema)
	}
	return out, nil
}

// exportSchemas writes <name>.v1.json for every component and returns the
// written paths, sorted.
func exportSchemas(registry *component.Registry, outDir string) ([]string, error) {
	schemas, err := componentSchemas(registry)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	written := make([]string, 0, len(schemas))
	for _, schema := range schemas {
		outFile := filepath.Join(outDir, schema.ID)
		if err := writeJSONSchema(outFile, schema); err != nil {
			return nil, fmt.Errorf("write schema for %s: %w", schema.Metadata.Name, err)
		}
		written = append(written, outFile)
	}
	sort.Strings(written)
	return written, nil
}

func writeJSONSchema(filename string, schema ComponentSchema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

type indexEntry struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Protocol    string `yaml:"protocol,omitempty"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Schema      string `yaml:"schema"`
}

// writeIndex writes a YAML catalogue of the registered components.
func writeIndex(registry *component.Registry, path string) error {
	available := registry.ListAvailable()
	names := make([]string, 0, len(available))
	for name := range available {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]indexEntry, 0, len(names))
	for _, name := range names {
		meta := available[name]
		entries = append(entries, indexEntry{
			Name:        meta.Name,
			Type:        meta.Type,
			Protocol:    meta.Protocol,
			Version:     meta.Version,
			Description: meta.Description,
			Schema:      name + ".v1.json",
		})
	}

	data, err := yaml.Marshal(map[string]any{"components": entries})
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	header := strings.TrimSpace(`
# stormbridge component index
# Generated by schema-exporter; do not edit.
`) + "\n\n"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}
