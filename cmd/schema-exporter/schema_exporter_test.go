package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/stormbridge/component"
)

func TestMapTypeToJSONSchema(t *testing.T) {
	tests := map[string]string{
		"int":    "integer",
		"float":  "number",
		"bool":   "boolean",
		"array":  "array",
		"object": "object",
		"cache":  "object",
		"enum":   "string",
		"string": "string",
	}
	for in, want := range tests {
		assert.Equal(t, want, mapTypeToJSONSchema(in), in)
	}
}

func TestExtractSchema(t *testing.T) {
	meta := component.Metadata{Name: "demo", Type: "bolt", Description: "demo bolt", Version: "1.0.0"}
	schema := extractSchema(meta, component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"hosts": {Type: "array", Description: "Hosts"},
			"port":  {Type: "int", Default: 9042},
			"mode":  {Type: "enum", Enum: []string{"a", "b"}},
		},
		Required: []string{"port", "hosts"},
	})

	assert.Equal(t, "demo.v1.json", schema.ID)
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"hosts", "port"}, schema.Required)
	require.NotNil(t, schema.Properties["hosts"].Items)
	assert.Equal(t, "string", schema.Properties["hosts"].Items.Type)
	assert.Equal(t, "integer", schema.Properties["port"].Type)
	assert.Equal(t, []string{"a", "b"}, schema.Properties["mode"].Enum)
	assert.Equal(t, meta, schema.Metadata)
}

func TestExportSchemas(t *testing.T) {
	registry, err := newRegistry()
	require.NoError(t, err)

	dir := t.TempDir()
	written, err := exportSchemas(registry, dir)
	require.NoError(t, err)
	assert.Len(t, written, len(registry.ListAvailable()))

	data, err := os.ReadFile(filepath.Join(dir, "cassandra.v1.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "http://json-schema.org/draft-07/schema#", doc["$schema"])
	assert.Contains(t, doc["required"], "keyspace")
	assert.Contains(t, doc, "x-component-metadata")
}

func TestWriteIndex(t *testing.T) {
	registry, err := newRegistry()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "index.yaml")
	require.NoError(t, writeIndex(registry, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var index struct {
		Components []indexEntry `yaml:"components"`
	}
	require.NoError(t, yaml.Unmarshal(data, &index))
	require.Len(t, index.Components, len(registry.ListAvailable()))

	names := make([]string, 0, len(index.Components))
	for _, c := range index.Components {
		names = append(names, c.Name)
		assert.Equal(t, c.Name+".v1.json", c.Schema)
	}
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "mqtt")
}

func TestValidateConfig(t *testing.T) {
	registry, err := newRegistry()
	require.NoError(t, err)
	schemas, err := componentSchemas(registry)
	require.NoError(t, err)
	cassandra := schemas["cassandra"]

	errs, err := validateConfig(cassandra, []byte(`{
		"hosts": ["db1"], "keyspace": "ks", "table": "t", "columns": ["a"], "port": 9042
	}`))
	require.NoError(t, err)
	assert.Empty(t, errs)

	errs, err = validateConfig(cassandra, []byte(`{"hosts": ["db1"], "port": "nine"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, errs)
}

func TestCheckConfigFile(t *testing.T) {
	registry, err := newRegistry()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "topology.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"components": {
			"sensors": {"type": "spout", "name": "mqtt", "enabled": true,
				"config": {"brokers": ["tcp://localhost:1883"], "topics": ["a/#"]}},
			"store": {"type": "bolt", "name": "cassandra", "enabled": true,
				"config": {"hosts": ["db1"], "table": "t", "columns": ["a"]}},
			"mystery": {"type": "bolt", "name": "nope", "enabled": true}
		}
	}`), 0o644))

	problems, err := checkConfigFile(registry, path)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Contains(t, problems[0], "mystery")
	assert.Contains(t, problems[1], "store (cassandra)")
	assert.Contains(t, problems[1], "keyspace")
}
