package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const topologyJSON = `{
	"caches": {
		"devices": {"kind": "local", "max_size": 1000}
	},
	"components": {
		"mqtt-sensors": {
			"type": "spout", "name": "mqtt", "enabled": true,
			"output": "stormbridge.raw.sensors",
			"config": {"brokers": ["tcp://broker:1883"], "topics": ["sensors/#"]}
		},
		"convert-sensors": {
			"type": "bolt", "name": "convert", "enabled": true,
			"input": "stormbridge.raw.sensors", "output": "stormbridge.messages",
			"config": {"converter": "json"}
		},
		"device-lookup": {
			"type": "bolt", "name": "cache_lookup", "enabled": true,
			"input": "stormbridge.messages", "output": "stormbridge.enriched",
			"config": {"cache": "devices", "key_path": "message.header.source"}
		},
		"cassandra-sink": {
			"type": "bolt", "name": "cassandra", "enabled": true,
			"input": "stormbridge.enriched",
			"config": {"hosts": ["cassandra"], "keyspace": "iot", "table": "events", "columns": ["id", "ts", "body"]}
		}
	}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stormbridge.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_Validate(t *testing.T) {
	path := writeConfig(t, topologyJSON)
	require.NoError(t, run([]string{"--validate", "--log-level", "error", "--config", path}))
}

func TestRun_ValidateReportsComponentErrors(t *testing.T) {
	path := writeConfig(t, `{
		"components": {
			"cassandra-sink": {
				"type": "bolt", "name": "cassandra", "enabled": true,
				"input": "stormbridge.enriched",
				"config": {"hosts": ["cassandra"], "keyspace": "bad keyspace", "table": "events", "columns": ["id"]}
			},
			"unknown": {
				"type": "bolt", "name": "nosuchfactory", "enabled": true, "input": "a"
			}
		}
	}`)
	err := run([]string{"--validate", "--log-level", "error", "--config", path})
	require.Error(t, err)
	assert.ErrorContains(t, err, "cassandra-sink")
	assert.ErrorContains(t, err, "unknown")
}

func TestRun_BadConfig(t *testing.T) {
	path := writeConfig(t, `{"nats": {"urls": []}}`)
	err := run([]string{"--validate", "--log-level", "error", "--config", path})
	assert.Error(t, err)
}

func TestRun_Version(t *testing.T) {
	assert.NoError(t, run([]string{"--version"}))
}
